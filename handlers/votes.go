// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/dinner-bell/auth"
	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/feed"
	"github.com/danielhkuo/dinner-bell/middleware"
	"github.com/danielhkuo/dinner-bell/models"
)

type VoteHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *feed.Hub
}

func NewVoteHandler(db *sql.DB, cfg cliparse.Config, hub *feed.Hub) *VoteHandler {
	return &VoteHandler{db: db, cfg: cfg, hub: hub}
}

// SubmitVote handles PUT /sessions/:id/votes
// Exactly one live vote per (session, option, voter): re-votes overwrite the
// prior value and timestamp, never add a row
func (h *VoteHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "session_id is required")
		return
	}

	token := middleware.MemberToken(r)
	if token == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, middleware.MemberTokenHeader+" header required")
		return
	}

	var req models.SubmitVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.OptionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "option_id is required")
		return
	}
	if req.Value != models.VoteYes && req.Value != models.VoteNo {
		middleware.ErrorResponse(w, http.StatusBadRequest, "value must be yes or no")
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

	// Eligibility is membership of the owning group
	member, err := GetGroupMember(h.db, session.GroupID, token)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not eligible to vote in this session")
		return
	}
	if err != nil {
		slog.Error("failed to verify membership", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	// Writes are rejected once the session leaves active status
	if session.Status != models.SessionActive {
		middleware.ErrorResponse(w, http.StatusGone, "Session is closed")
		return
	}

	// Option must belong to this session
	var optionExists bool
	err = h.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM meal_option WHERE id = $1 AND session_id = $2
		)
	`, req.OptionID, sessionID).Scan(&optionExists)

	if err != nil {
		slog.Error("failed to verify option", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !optionExists {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid option_id: "+req.OptionID)
		return
	}

	// Get IP hash for tracking
	clientIP := middleware.GetClientIP(r)
	ipHash := auth.HashIP(clientIP, h.cfg.GroupCodeSalt)
	castAt := time.Now()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	// Existence decides the feed event type; misclassification under a
	// race only costs an extra re-read downstream
	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM meal_vote
			WHERE session_id = $1 AND option_id = $2 AND voter_id = $3
		)
	`, sessionID, req.OptionID, member.MemberID).Scan(&exists)

	if err != nil {
		slog.Error("failed to check vote", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO meal_vote (session_id, option_id, voter_id, value, cast_at, ip_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, option_id, voter_id) DO UPDATE SET
			value = EXCLUDED.value,
			cast_at = EXCLUDED.cast_at,
			ip_hash = EXCLUDED.ip_hash
	`, sessionID, req.OptionID, member.MemberID, req.Value, castAt, ipHash)

	if err != nil {
		slog.Error("failed to upsert vote", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit vote")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit vote")
		return
	}

	eventType := feed.Insert
	if exists {
		eventType = feed.Update
	}
	publishRow(h.hub, eventType, feed.TableMealVote, sessionID, models.Vote{
		SessionID: sessionID,
		OptionID:  req.OptionID,
		VoterID:   member.MemberID,
		Value:     req.Value,
		CastAt:    castAt,
	})

	message := "Vote submitted"
	if exists {
		message = "Vote updated"
	}

	slog.Info("vote submitted", "session_id", sessionID, "option_id", req.OptionID, "voter_id", member.MemberID, "value", req.Value, "is_update", exists)

	middleware.JSONResponse(w, http.StatusCreated, models.SubmitVoteResponse{
		OptionID: req.OptionID,
		Value:    req.Value,
		CastAt:   castAt,
		Message:  message,
	})
}
