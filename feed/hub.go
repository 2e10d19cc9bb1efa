// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feed

import (
	"fmt"
	"log/slog"

	"github.com/juju/pubsub/v2"
)

// Hub fans row-change events out to in-process subscribers. Handlers use it
// to publish after committing a write; the websocket feed endpoint and tests
// subscribe. Delivery is asynchronous and best-effort: a subscriber that
// misses events is expected to re-read authoritative state.
type Hub struct {
	hub *pubsub.SimpleHub
}

// NewHub returns a hub ready for use.
func NewHub() *Hub {
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: slogLogger{},
		}),
	}
}

// Publish delivers the event to every subscriber of its table and scope.
// The returned channel is closed once all current subscribers have been
// notified; callers on the write path discard it.
func (h *Hub) Publish(ev Event) <-chan struct{} {
	wait := h.hub.Publish(ev.Topic(), ev)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	return done
}

// Subscribe registers handler for changes to table rows within scopeID whose
// type matches mask. Events are delivered one at a time per subscriber, in
// publish order. The returned function unsubscribes.
func (h *Hub) Subscribe(table, scopeID string, mask ChangeType, handler func(Event)) func() {
	return h.hub.Subscribe(table+"/"+scopeID, func(topic string, data interface{}) {
		ev, ok := data.(Event)
		if !ok {
			slog.Error("feed hub received unexpected payload", "topic", topic, "payload_type", fmt.Sprintf("%T", data))
			return
		}
		if ev.Type&mask == 0 {
			return
		}
		handler(ev)
	})
}

// slogLogger adapts log/slog to the hub's logger interface.
type slogLogger struct{}

func (slogLogger) Errorf(format string, args ...interface{}) {
	slog.Error(fmt.Sprintf(format, args...))
}

func (slogLogger) Debugf(format string, args ...interface{}) {
	slog.Debug(fmt.Sprintf(format, args...))
}

func (slogLogger) Tracef(format string, args ...interface{}) {}

func (slogLogger) IsTraceEnabled() bool { return false }
