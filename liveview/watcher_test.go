// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveview

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/danielhkuo/dinner-bell/feed"
)

const longWait = 5 * time.Second

var errConnClosed = errors.New("connection closed")

// fakeConn is a scripted feed connection. Frames pushed by the test are
// handed to ReadJSON one at a time through a real JSON round trip, so the
// wire encoding is exercised; the channel is unbuffered, so a completed
// push means the watcher has consumed the frame.
type fakeConn struct {
	frames chan interface{}
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan interface{}),
		errs:   make(chan error),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	select {
	case frame := <-c.frames:
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, v)
	case err := <-c.errs:
		return err
	case <-c.closed:
		return errConnClosed
	}
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, frame interface{}) {
	t.Helper()
	select {
	case c.frames <- frame:
	case <-c.closed:
		t.Fatalf("Pushed frame on closed connection")
	case <-time.After(longWait):
		t.Fatalf("Timed out pushing frame")
	}
}

func (c *fakeConn) fail(t *testing.T, err error) {
	t.Helper()
	select {
	case c.errs <- err:
	case <-time.After(longWait):
		t.Fatalf("Timed out injecting read error")
	}
}

// fakeDialer hands out scripted connections in order, or a fixed error.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	dials int
}

func (d *fakeDialer) dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no connection scripted")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func ack() feed.SubscribedAck {
	return feed.SubscribedAck{
		Status:  feed.StatusSubscribed,
		Table:   feed.TableMealVote,
		ScopeID: "session-1",
	}
}

func stopWatcher(t *testing.T, w *FeedWatcher) {
	t.Helper()
	w.Kill()
	done := make(chan error, 1)
	go func() { done <- w.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watcher exited with error: %v", err)
		}
	case <-time.After(longWait):
		t.Fatalf("Timed out waiting for watcher to stop")
	}
}

func expectEvent(t *testing.T, w *FeedWatcher) feed.Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(longWait):
		t.Fatalf("Timed out waiting for feed event")
		return feed.Event{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(longWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestWatcherDeliversEventsAfterAck(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	w, err := NewFeedWatcher(WatcherConfig{Dial: dialer.dial, Clock: clk})
	if err != nil {
		t.Fatalf("NewFeedWatcher failed: %v", err)
	}
	defer stopWatcher(t, w)

	conn.push(t, ack())

	// A frame without a type field (like a repeated ack) is not a row
	// change and must not surface as one.
	conn.push(t, ack())
	conn.push(t, feed.Event{Type: feed.Insert, Table: feed.TableMealVote, ScopeID: "session-1"})

	ev := expectEvent(t, w)
	if ev.Type != feed.Insert {
		t.Errorf("Expected insert event, got %v", ev.Type)
	}
	if ev.Table != feed.TableMealVote {
		t.Errorf("Expected table %q, got %q", feed.TableMealVote, ev.Table)
	}
	if got := w.Status(); got != StatusHealthy {
		t.Errorf("Expected status healthy, got %v", got)
	}
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("Expected 1 dial, got %d", got)
	}
}

func TestWatcherReconnectsAfterReadError(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}

	w, err := NewFeedWatcher(WatcherConfig{Dial: dialer.dial, Clock: clk})
	if err != nil {
		t.Fatalf("NewFeedWatcher failed: %v", err)
	}
	defer stopWatcher(t, w)

	conn1.push(t, ack())
	conn1.push(t, feed.Event{Type: feed.Insert, Table: feed.TableMealVote, ScopeID: "session-1"})
	expectEvent(t, w)

	// Drop the connection. The first reconnect attempt happens without
	// any backoff, so no clock advance is needed.
	conn1.fail(t, io.ErrUnexpectedEOF)

	conn2.push(t, ack())
	conn2.push(t, feed.Event{Type: feed.Update, Table: feed.TableMealVote, ScopeID: "session-1"})

	ev := expectEvent(t, w)
	if ev.Type != feed.Update {
		t.Errorf("Expected update event after reconnect, got %v", ev.Type)
	}
	if got := dialer.dialCount(); got != 2 {
		t.Errorf("Expected 2 dials, got %d", got)
	}
	if got := w.Status(); got != StatusHealthy {
		t.Errorf("Expected status healthy after reconnect, got %v", got)
	}
}

func TestWatcherRejectsConnWithoutAck(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}

	w, err := NewFeedWatcher(WatcherConfig{Dial: dialer.dial, Clock: clk})
	if err != nil {
		t.Fatalf("NewFeedWatcher failed: %v", err)
	}
	defer stopWatcher(t, w)

	// First frame is a row event, not the subscribed ack. The watcher
	// must treat the connection as broken and retry after one delay.
	conn1.push(t, feed.Event{Type: feed.Insert, Table: feed.TableMealVote, ScopeID: "session-1"})

	if err := clk.WaitAdvance(500*time.Millisecond, longWait, 1); err != nil {
		t.Fatalf("WaitAdvance failed: %v", err)
	}

	conn2.push(t, ack())
	conn2.push(t, feed.Event{Type: feed.Insert, Table: feed.TableMealVote, ScopeID: "session-1"})
	expectEvent(t, w)

	if got := dialer.dialCount(); got != 2 {
		t.Errorf("Expected 2 dials, got %d", got)
	}
}

func TestWatcherAbandonsAfterThreeFailures(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	dialer := &fakeDialer{err: errors.New("connection refused")}

	w, err := NewFeedWatcher(WatcherConfig{Dial: dialer.dial, Clock: clk})
	if err != nil {
		t.Fatalf("NewFeedWatcher failed: %v", err)
	}

	// Attempt 1 fails immediately; attempts 2 and 3 follow 500ms and
	// then 1s later.
	if err := clk.WaitAdvance(500*time.Millisecond, longWait, 1); err != nil {
		t.Fatalf("WaitAdvance to attempt 2 failed: %v", err)
	}
	if err := clk.WaitAdvance(time.Second, longWait, 1); err != nil {
		t.Fatalf("WaitAdvance to attempt 3 failed: %v", err)
	}

	if err := w.Wait(); err != nil {
		t.Errorf("Expected clean exit after abandoning, got %v", err)
	}
	if got := w.Status(); got != StatusAbandoned {
		t.Errorf("Expected status abandoned, got %v", got)
	}
	if got := dialer.dialCount(); got != 3 {
		t.Errorf("Expected exactly 3 dials, got %d", got)
	}
}

func TestWatcherStopsDuringBackoff(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	dialer := &fakeDialer{err: errors.New("connection refused")}

	w, err := NewFeedWatcher(WatcherConfig{Dial: dialer.dial, Clock: clk})
	if err != nil {
		t.Fatalf("NewFeedWatcher failed: %v", err)
	}

	waitFor(t, "first dial attempt", func() bool { return dialer.dialCount() == 1 })
	stopWatcher(t, w)

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("Expected no further dials after Kill, got %d", got)
	}
}

func TestWatcherConfigValidation(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	dialer := &fakeDialer{}

	if _, err := NewFeedWatcher(WatcherConfig{Clock: clk}); err == nil {
		t.Errorf("Expected error for missing Dial")
	}
	if _, err := NewFeedWatcher(WatcherConfig{Dial: dialer.dial}); err == nil {
		t.Errorf("Expected error for missing Clock")
	}
}
