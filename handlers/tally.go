// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/middleware"
	"github.com/danielhkuo/dinner-bell/models"
)

type TallyHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewTallyHandler(db *sql.DB, cfg cliparse.Config) *TallyHandler {
	return &TallyHandler{db: db, cfg: cfg}
}

// GetTally handles GET /sessions/:id/tally
// Recomputed on every request; clients own the freshness policy, so this
// endpoint must stay cheap and cache-free even at one call per second per
// open view. Readable for completed sessions too (the results screen).
func (h *TallyHandler) GetTally(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "session_id is required")
		return
	}

	session, err := loadSession(h.db, sessionID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		slog.Error("failed to query session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	member, err := GetGroupMember(h.db, session.GroupID, middleware.MemberToken(r))
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}
	if err != nil {
		slog.Error("failed to verify membership", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	entries, err := ComputeTopThree(h.db, sessionID, member.MemberID)
	if err != nil {
		slog.Error("failed to compute tally", "error", err, "session_id", sessionID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to compute tally")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.TallyResponse{
		SessionID:  sessionID,
		Entries:    entries,
		ComputedAt: time.Now(),
	})
}
