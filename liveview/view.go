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
	"github.com/danielhkuo/dinner-bell/models"
)

// ErrViewClosed is returned by SubmitVote after Close.
var ErrViewClosed = errors.New("live view is closed")

// TallySource is the slice of the API a View needs. *Client satisfies it.
type TallySource interface {
	FetchTally(ctx context.Context, sessionID string) (*models.TallyResponse, error)
	SubmitVote(ctx context.Context, sessionID, optionID, value string) (*models.SubmitVoteResponse, error)
}

// ViewConfig holds the dependencies and tuning for a View.
type ViewConfig struct {
	// SessionID is the voting session to track.
	SessionID string

	// Source fetches standings and submits votes.
	Source TallySource

	// Dial opens the change feed for this session. Nil means no feed;
	// the view runs on polling alone.
	Dial DialFunc

	// Clock drives the debounce, poll, guard, and submit timers.
	Clock clock.Clock

	// Debounce is how long to sit on a feed event before refreshing, so
	// a burst of votes costs one fetch. Zero means 150ms.
	Debounce time.Duration

	// PollInterval is the unconditional refresh cadence. It runs whether
	// or not the feed is healthy, so a missed event costs at most one
	// interval of staleness. Zero means 1s.
	PollInterval time.Duration

	// GuardWindow is how long an optimistic vote outranks fetched data
	// for its option. Zero means 1s.
	GuardWindow time.Duration

	// SubmitTimeout bounds one SubmitVote round trip. Zero means 10s.
	SubmitTimeout time.Duration
}

// Validate returns an error if the config cannot run a view.
func (c ViewConfig) Validate() error {
	if c.SessionID == "" {
		return errors.New("empty SessionID not valid")
	}
	if c.Source == nil {
		return errors.New("nil Source not valid")
	}
	if c.Clock == nil {
		return errors.New("nil Clock not valid")
	}
	return nil
}

// voteGuard pins one option to an optimistic value until expiry.
type voteGuard struct {
	value   string
	expires time.Time
}

// fetchResult carries one tally fetch back to the loop. epoch is the
// view epoch observed when the fetch started; a bump in between means
// the result must not be applied.
type fetchResult struct {
	epoch int
	tally *models.TallyResponse
	err   error
}

// View keeps a local copy of one session's standings current. It
// bootstraps with a fetch, refreshes on debounced feed events, and polls
// every PollInterval regardless, so the feed only ever improves latency.
// Reads never block on the network.
//
// Votes submitted through the view appear in Tally immediately and are
// held against slower server reads for GuardWindow; a failed submit puts
// the option back exactly as it was.
type View struct {
	tomb tomb.Tomb
	cfg  ViewConfig

	watcher *FeedWatcher

	mu     sync.Mutex
	server models.TallyResponse
	guards map[string]voteGuard
	epoch  int

	updates chan struct{}
}

// NewView starts a view. Callers must eventually Close it.
func NewView(cfg ViewConfig) (*View, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 150 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.GuardWindow == 0 {
		cfg.GuardWindow = time.Second
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}

	v := &View{
		cfg:     cfg,
		server:  models.TallyResponse{SessionID: cfg.SessionID},
		guards:  make(map[string]voteGuard),
		updates: make(chan struct{}, 1),
	}
	if cfg.Dial != nil {
		w, err := NewFeedWatcher(WatcherConfig{Dial: cfg.Dial, Clock: cfg.Clock})
		if err != nil {
			return nil, err
		}
		v.watcher = w
	}
	v.tomb.Go(v.loop)
	return v, nil
}

// Tally returns the current standings: the last fetched server tally
// with any live optimistic votes laid over it. The returned value is the
// caller's to keep.
func (v *View) Tally() models.TallyResponse {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(v.cfg.Clock.Now())
}

// Updates returns a channel that receives a signal after the standings
// change. Signals coalesce; on receipt, call Tally for the latest.
func (v *View) Updates() <-chan struct{} {
	return v.updates
}

// FeedStatus reports the health of the underlying feed subscription.
// A view built without a feed reports StatusAbandoned.
func (v *View) FeedStatus() WatcherStatus {
	if v.watcher == nil {
		return StatusAbandoned
	}
	return v.watcher.Status()
}

// SubmitVote records value for optionID as this member, making it
// visible in Tally before the server round trip completes. On any
// failure, including timeout, the optimistic value is removed and the
// option reads exactly as it did before the call.
func (v *View) SubmitVote(ctx context.Context, optionID, value string) error {
	select {
	case <-v.tomb.Dying():
		return ErrViewClosed
	default:
	}

	v.mu.Lock()
	prev, hadPrev := v.guards[optionID]
	v.guards[optionID] = voteGuard{
		value:   value,
		expires: v.cfg.Clock.Now().Add(v.cfg.GuardWindow),
	}
	v.mu.Unlock()
	v.notify()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	result := make(chan error, 1)
	go func() {
		_, err := v.cfg.Source.SubmitVote(subCtx, v.cfg.SessionID, optionID, value)
		result <- err
	}()

	timeout := v.cfg.Clock.NewTimer(v.cfg.SubmitTimeout)
	defer timeout.Stop()

	var err error
	select {
	case err = <-result:
	case <-timeout.Chan():
		cancel()
		err = fmt.Errorf("vote submission timed out: %w", context.DeadlineExceeded)
	}
	if err != nil {
		v.mu.Lock()
		if hadPrev {
			v.guards[optionID] = prev
		} else {
			delete(v.guards, optionID)
		}
		v.mu.Unlock()
		v.notify()
		return fmt.Errorf("submitting vote for option %s: %w", optionID, err)
	}
	return nil
}

// Kill asks the view to stop.
func (v *View) Kill() {
	v.mu.Lock()
	v.epoch++
	v.mu.Unlock()
	v.tomb.Kill(nil)
}

// Wait blocks until the view has stopped.
func (v *View) Wait() error {
	return v.tomb.Wait()
}

// Close stops the view and its feed subscription. In-flight fetch
// results are discarded rather than applied.
func (v *View) Close() error {
	v.Kill()
	return v.Wait()
}

func (v *View) loop() error {
	if v.watcher != nil {
		defer func() {
			v.watcher.Kill()
			v.watcher.Wait()
		}()
	}

	ctx := v.tomb.Context(context.Background())

	poll := v.cfg.Clock.NewTimer(v.cfg.PollInterval)
	defer poll.Stop()

	var events <-chan feed.Event
	if v.watcher != nil {
		events = v.watcher.Events()
	}

	done := make(chan fetchResult, 1)
	inflight := false
	pending := false

	start := func() {
		if inflight {
			pending = true
			return
		}
		inflight = true
		pending = false
		go v.fetch(ctx, v.currentEpoch(), done)
	}

	var debounce clock.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	armDebounce := func() {
		if inflight {
			// The running fetch predates this event, so its result may
			// miss the change. Queue one follow-up instead of a timer.
			pending = true
			return
		}
		if debounce == nil {
			debounce = v.cfg.Clock.NewTimer(v.cfg.Debounce)
			debounceCh = debounce.Chan()
			return
		}
		if !debounce.Stop() {
			select {
			case <-debounceCh:
			default:
			}
		}
		debounce.Reset(v.cfg.Debounce)
	}

	v.bootstrap(ctx)

	for {
		select {
		case <-v.tomb.Dying():
			return tomb.ErrDying
		case <-events:
			armDebounce()
		case <-debounceCh:
			start()
		case <-poll.Chan():
			start()
			poll.Reset(v.cfg.PollInterval)
		case res := <-done:
			inflight = false
			v.apply(res)
			if pending {
				start()
			}
		}
	}
}

// bootstrap loads the first snapshot, retrying transient failures with
// doubled delays. Giving up here is not fatal: the poll loop keeps
// trying at PollInterval.
func (v *View) bootstrap(ctx context.Context) {
	epoch := v.currentEpoch()
	var tally *models.TallyResponse
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			tally, err = v.cfg.Source.FetchTally(ctx, v.cfg.SessionID)
			return err
		},
		Attempts:    3,
		Delay:       200 * time.Millisecond,
		BackoffFunc: retry.DoubleDelay,
		Clock:       v.cfg.Clock,
		IsFatalError: func(err error) bool {
			return !IsTransient(err)
		},
		Stop: v.tomb.Dying(),
	})
	if err != nil {
		slog.Warn("Initial standings load failed", "session_id", v.cfg.SessionID, "error", err)
		return
	}
	v.apply(fetchResult{epoch: epoch, tally: tally})
}

func (v *View) fetch(ctx context.Context, epoch int, done chan<- fetchResult) {
	tally, err := v.cfg.Source.FetchTally(ctx, v.cfg.SessionID)
	done <- fetchResult{epoch: epoch, tally: tally, err: err}
}

// apply installs a fetched tally as the server snapshot. Results from
// before a Kill carry a stale epoch and are dropped.
func (v *View) apply(res fetchResult) {
	if res.err != nil {
		slog.Warn("Standings refresh failed", "session_id", v.cfg.SessionID, "error", res.err)
		return
	}

	v.mu.Lock()
	if res.epoch != v.epoch {
		v.mu.Unlock()
		return
	}
	fresh := *res.tally
	fresh.Entries = make([]models.TallyEntry, len(res.tally.Entries))
	copy(fresh.Entries, res.tally.Entries)
	v.server = fresh

	now := v.cfg.Clock.Now()
	for id, g := range v.guards {
		if !g.expires.After(now) {
			delete(v.guards, id)
		}
	}
	v.mu.Unlock()
	v.notify()
}

// snapshotLocked copies the server tally and lays live guards over it.
// Ordering stays as the server ranked it; a guard adjusts the caller's
// own vote and the affirmative count in place.
func (v *View) snapshotLocked(now time.Time) models.TallyResponse {
	out := v.server
	out.Entries = make([]models.TallyEntry, len(v.server.Entries))
	copy(out.Entries, v.server.Entries)
	for i := range out.Entries {
		g, ok := v.guards[out.Entries[i].OptionID]
		if !ok || !g.expires.After(now) {
			continue
		}
		applyLocalVote(&out.Entries[i], g.value)
	}
	return out
}

// applyLocalVote rewrites one entry as if the caller's vote were value.
func applyLocalVote(e *models.TallyEntry, value string) {
	if e.MyVote == value {
		return
	}
	if value == models.VoteYes {
		e.YesCount++
	} else if e.MyVote == models.VoteYes {
		e.YesCount--
	}
	e.MyVote = value
}

func (v *View) currentEpoch() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.epoch
}

func (v *View) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}
