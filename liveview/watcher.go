// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"gopkg.in/tomb.v2"

	"github.com/danielhkuo/dinner-bell/feed"
)

// Conn is the read side of one feed subscription. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadJSON(v interface{}) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a new feed connection. It is called again after every
// connection loss, so it must be safe to invoke repeatedly.
type DialFunc func(ctx context.Context) (Conn, error)

// WatcherStatus describes the health of the feed subscription.
type WatcherStatus int

const (
	// StatusEstablishing means the first connection has not completed yet.
	StatusEstablishing WatcherStatus = iota
	// StatusHealthy means events are flowing.
	StatusHealthy
	// StatusDegraded means the connection dropped and reconnection is
	// in progress.
	StatusDegraded
	// StatusAbandoned means reconnection attempts were exhausted. The
	// watcher delivers no further events; consumers fall back to polling.
	StatusAbandoned
)

func (s WatcherStatus) String() string {
	switch s {
	case StatusEstablishing:
		return "establishing"
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusAbandoned:
		return "abandoned"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// WatcherConfig holds the dependencies and tuning for a FeedWatcher.
type WatcherConfig struct {
	// Dial opens a feed connection that has not yet acked.
	Dial DialFunc

	// Clock drives retry backoff and establishment deadlines.
	Clock clock.Clock

	// MaxAttempts bounds each reconnection cycle. Zero means 3.
	MaxAttempts int

	// RetryDelay is the delay before the second attempt; it doubles on
	// each failure after that. Zero means 500ms.
	RetryDelay time.Duration

	// MaxRetryDelay caps the doubling. Zero means 5s.
	MaxRetryDelay time.Duration

	// EstablishTimeout bounds the dial plus the wait for the subscribed
	// ack. Zero means 5s.
	EstablishTimeout time.Duration
}

// Validate returns an error if the config cannot run a watcher.
func (c WatcherConfig) Validate() error {
	if c.Dial == nil {
		return errors.New("nil Dial not valid")
	}
	if c.Clock == nil {
		return errors.New("nil Clock not valid")
	}
	return nil
}

// FeedWatcher maintains one feed subscription, reconnecting with doubled
// delays when the connection drops. After MaxAttempts consecutive
// failures it gives up for good; events are advisory, so consumers keep
// a polling path alive regardless.
type FeedWatcher struct {
	tomb tomb.Tomb
	cfg  WatcherConfig

	events chan feed.Event

	mu     sync.Mutex
	status WatcherStatus
}

// NewFeedWatcher starts a watcher. Callers must eventually Kill and Wait
// it.
func NewFeedWatcher(cfg WatcherConfig) (*FeedWatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	if cfg.EstablishTimeout == 0 {
		cfg.EstablishTimeout = 5 * time.Second
	}
	w := &FeedWatcher{
		cfg:    cfg,
		events: make(chan feed.Event),
		status: StatusEstablishing,
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Events returns the channel row-change events arrive on. The channel is
// never closed; select against Wait or a done channel to stop reading.
func (w *FeedWatcher) Events() <-chan feed.Event {
	return w.events
}

// Status reports the current connection health.
func (w *FeedWatcher) Status() WatcherStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Kill asks the watcher to stop.
func (w *FeedWatcher) Kill() {
	w.tomb.Kill(nil)
}

// Wait blocks until the watcher has stopped. Abandoning the feed is a
// normal outcome, not an error.
func (w *FeedWatcher) Wait() error {
	return w.tomb.Wait()
}

func (w *FeedWatcher) setStatus(s WatcherStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

func (w *FeedWatcher) loop() error {
	for {
		conn, err := w.connect()
		if err != nil {
			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			default:
			}
			w.setStatus(StatusAbandoned)
			slog.Warn("Feed subscription abandoned", "error", err)
			return nil
		}
		w.setStatus(StatusHealthy)

		err = w.pump(conn)
		if errors.Is(err, tomb.ErrDying) {
			return err
		}
		w.setStatus(StatusDegraded)
		slog.Warn("Feed connection lost, reconnecting", "error", err)
	}
}

// connect runs one reconnection cycle: up to MaxAttempts dials with
// doubling delays between them. The attempt budget resets on every
// successful connection, so a long-lived subscription that drops once a
// day never runs out.
func (w *FeedWatcher) connect() (Conn, error) {
	var conn Conn
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			conn, err = w.dial()
			return err
		},
		Attempts:    w.cfg.MaxAttempts,
		Delay:       w.cfg.RetryDelay,
		MaxDelay:    w.cfg.MaxRetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       w.cfg.Clock,
		NotifyFunc: func(err error, attempt int) {
			w.setStatus(StatusDegraded)
			slog.Warn("Feed subscribe attempt failed", "attempt", attempt, "error", err)
		},
		Stop: w.tomb.Dying(),
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// dial opens a connection and consumes the subscribed ack, which the
// server always sends as the first frame.
func (w *FeedWatcher) dial() (Conn, error) {
	ctx, cancel := context.WithTimeout(w.tomb.Context(context.Background()), w.cfg.EstablishTimeout)
	defer cancel()

	conn, err := w.cfg.Dial(ctx)
	if err != nil {
		return nil, err
	}

	// ReadJSON does not honor ctx, so unblock the ack read by closing
	// the connection if the watcher is killed or the deadline passes
	// while the server is silent.
	established := make(chan struct{})
	defer close(established)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-established:
				return
			default:
			}
			conn.Close()
		case <-established:
		}
	}()

	conn.SetReadDeadline(w.cfg.Clock.Now().Add(w.cfg.EstablishTimeout))
	var ack feed.SubscribedAck
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading subscribe ack: %w", err)
	}
	if ack.Status != feed.StatusSubscribed {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame status %q", ack.Status)
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// pump reads events off one connection until it fails, forwarding them
// to the events channel. Frames that are not row events (acks, pings)
// decode with an empty type and are skipped.
func (w *FeedWatcher) pump(conn Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-w.tomb.Dying():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		var ev feed.Event
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			default:
			}
			return err
		}
		if ev.Type == 0 {
			continue
		}
		select {
		case w.events <- ev:
		case <-w.tomb.Dying():
			return tomb.ErrDying
		}
	}
}
