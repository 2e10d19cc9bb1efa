// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/feed"
	"github.com/danielhkuo/dinner-bell/middleware"
)

const (
	// pongDelay is how long the server waits for a pong before the
	// connection is considered broken.
	pongDelay = 90 * time.Second

	// pingPeriod is how often pings are sent. Shorter than pongDelay,
	// but not by too much.
	pingPeriod = 60 * time.Second

	// writeWait is how long a single write may take before it errors out.
	writeWait = 10 * time.Second

	// eventBuffer is the per-connection queue. Delivery is best-effort:
	// when a peer reads slower than events arrive, events are dropped and
	// the peer's next poll re-reads authoritative state.
	eventBuffer = 16
)

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type FeedHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *feed.Hub
}

func NewFeedHandler(db *sql.DB, cfg cliparse.Config, hub *feed.Hub) *FeedHandler {
	return &FeedHandler{db: db, cfg: cfg, hub: hub}
}

// Stream handles GET /feed?table=...&session_id=... (websocket)
//
// The scope parameter depends on the table: meal_vote takes session_id,
// day_response and vote_session take group_id, occasion_rsvp takes
// occasion_id. Browsers cannot set headers on websocket dials, so the
// member token is also accepted as a ?token= query parameter.
//
// The first frame is always a subscribed ack; row events follow. Pings
// keep the connection alive and detect dead peers.
func (h *FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")

	var scopeID, groupID string
	var err error

	switch table {
	case feed.TableMealVote:
		scopeID = r.URL.Query().Get("session_id")
		if scopeID == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "session_id is required")
			return
		}
		groupID, _, err = GetSessionScope(h.db, scopeID)
		if err == sql.ErrNoRows {
			middleware.ErrorResponse(w, http.StatusNotFound, "Session not found")
			return
		}
	case feed.TableDayResponse, feed.TableVoteSession:
		scopeID = r.URL.Query().Get("group_id")
		if scopeID == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "group_id is required")
			return
		}
		groupID = scopeID
	case feed.TableOccasionRSVP:
		scopeID = r.URL.Query().Get("occasion_id")
		if scopeID == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "occasion_id is required")
			return
		}
		groupID, err = GetOccasionGroup(h.db, scopeID)
		if err == sql.ErrNoRows {
			middleware.ErrorResponse(w, http.StatusNotFound, "Occasion not found")
			return
		}
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest, "table must be one of: meal_vote, day_response, occasion_rsvp, vote_session")
		return
	}

	if err != nil {
		slog.Error("failed to resolve feed scope", "error", err, "table", table)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if _, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade feed connection", "error", err)
		return
	}
	defer conn.Close()

	// The ack must be the first frame; subscribers treat the feed as
	// established only once they have read it
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(feed.SubscribedAck{
		Status:  feed.StatusSubscribed,
		Table:   table,
		ScopeID: scopeID,
	}); err != nil {
		slog.Error("failed to write feed ack", "error", err)
		return
	}

	events := make(chan feed.Event, eventBuffer)
	unsubscribe := h.hub.Subscribe(table, scopeID, feed.All, func(ev feed.Event) {
		select {
		case events <- ev:
		default:
			// Slow peer; drop and let its poller catch up
		}
	})
	defer unsubscribe()

	slog.Info("feed subscribed", "table", table, "scope_id", scopeID)

	conn.SetReadDeadline(time.Now().Add(pongDelay))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongDelay))
		return nil
	})
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	done := readUntilClosed(conn)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				// Expected when the other end goes away
				slog.Debug("failed to write ping", "error", err)
				return
			}
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("failed to write feed event", "error", err)
				return
			}
		}
	}
}

// readUntilClosed drains inbound frames (clients send nothing meaningful)
// so pongs are processed, and reports when the peer goes away.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
