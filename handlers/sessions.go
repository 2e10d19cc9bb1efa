// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/feed"
	"github.com/danielhkuo/dinner-bell/middleware"
	"github.com/danielhkuo/dinner-bell/models"
)

type SessionHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *feed.Hub
}

func NewSessionHandler(db *sql.DB, cfg cliparse.Config, hub *feed.Hub) *SessionHandler {
	return &SessionHandler{db: db, cfg: cfg, hub: hub}
}

// StartGroupSession handles POST /groups/:id/sessions
func (h *SessionHandler) StartGroupSession(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if groupID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "group_id is required")
		return
	}
	h.startSession(w, r, groupID, nil)
}

// StartOccasionSession handles POST /occasions/:id/sessions
func (h *SessionHandler) StartOccasionSession(w http.ResponseWriter, r *http.Request) {
	occasionID := r.PathValue("id")
	if occasionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "occasion_id is required")
		return
	}

	groupID, err := GetOccasionGroup(h.db, occasionID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Occasion not found")
		return
	}
	if err != nil {
		slog.Error("failed to query occasion", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	h.startSession(w, r, groupID, &occasionID)
}

// startSession creates a session plus its option batch in one transaction.
// The options array may be empty; a session can exist before anyone fills it.
func (h *SessionHandler) startSession(w http.ResponseWriter, r *http.Request, groupID string, occasionID *string) {
	if _, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	var req models.StartSessionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	for _, opt := range req.Options {
		if opt.Name == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "every option needs a name")
			return
		}
	}

	scope := models.ScopeGroup
	if occasionID != nil {
		scope = models.ScopeOccasion
	}

	// There is no uniqueness constraint on active sessions; this check
	// narrows the window but two racing starts can both land. Readers
	// resolve duplicates by picking the newest.
	existing, err := activeSession(h.db, scope, groupID, occasionID)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("failed to query active session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if err == nil {
		middleware.ErrorResponse(w, http.StatusConflict, "An active session already exists: "+existing.ID)
		return
	}

	sessionID := uuid.NewString()
	now := time.Now()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	var occasionValue sql.NullString
	if occasionID != nil {
		occasionValue = sql.NullString{String: *occasionID, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO vote_session (id, group_id, occasion_id, scope, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sessionID, groupID, occasionValue, scope, models.SessionActive, now)

	if err != nil {
		slog.Error("failed to insert session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	// Batch index is the display order, the tally's tie-break key
	options := make([]models.MealOption, 0, len(req.Options))
	for i, spec := range req.Options {
		opt := models.MealOption{
			ID:           uuid.NewString(),
			SessionID:    sessionID,
			DisplayOrder: i,
			Name:         spec.Name,
			ThumbnailURL: spec.ThumbnailURL,
			PrepMinutes:  spec.PrepMinutes,
			Description:  spec.Description,
		}

		_, err = tx.Exec(`
			INSERT INTO meal_option (id, session_id, display_order, name, thumbnail_url, prep_minutes, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, opt.ID, opt.SessionID, opt.DisplayOrder, opt.Name, opt.ThumbnailURL, opt.PrepMinutes, opt.Description)

		if err != nil {
			slog.Error("failed to insert option", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
			return
		}

		options = append(options, opt)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	publishRow(h.hub, feed.Insert, feed.TableVoteSession, groupID, models.VoteSession{
		ID:         sessionID,
		GroupID:    groupID,
		OccasionID: occasionID,
		Scope:      scope,
		Status:     models.SessionActive,
		CreatedAt:  now,
	})

	slog.Info("session started", "session_id", sessionID, "group_id", groupID, "scope", scope, "options", len(options))

	middleware.JSONResponse(w, http.StatusCreated, models.StartSessionResponse{
		SessionID: sessionID,
		Options:   options,
	})
}

// ActiveGroupSession handles GET /groups/:id/sessions/active
func (h *SessionHandler) ActiveGroupSession(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if groupID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if _, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	h.respondActiveSession(w, models.ScopeGroup, groupID, nil)
}

// ActiveOccasionSession handles GET /occasions/:id/sessions/active
func (h *SessionHandler) ActiveOccasionSession(w http.ResponseWriter, r *http.Request) {
	occasionID := r.PathValue("id")
	if occasionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "occasion_id is required")
		return
	}

	groupID, err := GetOccasionGroup(h.db, occasionID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Occasion not found")
		return
	}
	if err != nil {
		slog.Error("failed to query occasion", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if _, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	h.respondActiveSession(w, models.ScopeOccasion, groupID, &occasionID)
}

func (h *SessionHandler) respondActiveSession(w http.ResponseWriter, scope, groupID string, occasionID *string) {
	session, err := activeSession(h.db, scope, groupID, occasionID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "No active session")
		return
	}
	if err != nil {
		slog.Error("failed to query active session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	options, err := sessionOptions(h.db, session.ID)
	if err != nil {
		slog.Error("failed to query options", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.SessionWithOptions{
		Session: session,
		Options: options,
	})
}

// GetSession handles GET /sessions/:id
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
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

	if _, err := GetGroupMember(h.db, session.GroupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	options, err := sessionOptions(h.db, sessionID)
	if err != nil {
		slog.Error("failed to query options", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.SessionWithOptions{
		Session: session,
		Options: options,
	})
}

// CloseSession handles POST /sessions/:id/close
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
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

	if _, err := GetGroupMember(h.db, session.GroupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	if session.Status != models.SessionActive {
		middleware.ErrorResponse(w, http.StatusConflict, "Session is not active")
		return
	}

	closedAt := time.Now()
	_, err = h.db.Exec(`
		UPDATE vote_session SET status = $1 WHERE id = $2
	`, models.SessionCompleted, sessionID)

	if err != nil {
		slog.Error("failed to close session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to close session")
		return
	}

	session.Status = models.SessionCompleted
	publishRow(h.hub, feed.Update, feed.TableVoteSession, session.GroupID, session)

	slog.Info("session closed", "session_id", sessionID, "group_id", session.GroupID)

	middleware.JSONResponse(w, http.StatusOK, models.CloseSessionResponse{
		SessionID: sessionID,
		ClosedAt:  closedAt,
	})
}

// activeSession returns the active session for a scope. More than one can
// exist; the newest wins, with id as a stable tie-break for equal timestamps.
func activeSession(db *sql.DB, scope, groupID string, occasionID *string) (models.VoteSession, error) {
	query := `
		SELECT id, group_id, occasion_id, scope, status, created_at
		FROM vote_session
		WHERE group_id = $1 AND scope = $2 AND status = $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	args := []interface{}{groupID, scope, models.SessionActive}

	if occasionID != nil {
		query = `
			SELECT id, group_id, occasion_id, scope, status, created_at
			FROM vote_session
			WHERE occasion_id = $1 AND scope = $2 AND status = $3
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`
		args = []interface{}{*occasionID, scope, models.SessionActive}
	}

	return scanSession(db.QueryRow(query, args...))
}

func loadSession(db *sql.DB, sessionID string) (models.VoteSession, error) {
	return scanSession(db.QueryRow(`
		SELECT id, group_id, occasion_id, scope, status, created_at
		FROM vote_session
		WHERE id = $1
	`, sessionID))
}

func scanSession(row *sql.Row) (models.VoteSession, error) {
	var session models.VoteSession
	var occasionID sql.NullString
	err := row.Scan(&session.ID, &session.GroupID, &occasionID, &session.Scope, &session.Status, &session.CreatedAt)
	if err != nil {
		return session, err
	}
	if occasionID.Valid {
		session.OccasionID = &occasionID.String
	}
	return session, nil
}

func sessionOptions(db *sql.DB, sessionID string) ([]models.MealOption, error) {
	rows, err := db.Query(`
		SELECT id, session_id, display_order, name, thumbnail_url, prep_minutes, description
		FROM meal_option
		WHERE session_id = $1
		ORDER BY display_order
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := []models.MealOption{}
	for rows.Next() {
		var opt models.MealOption
		var thumbnail, description sql.NullString
		var prepMinutes sql.NullInt64
		if err := rows.Scan(&opt.ID, &opt.SessionID, &opt.DisplayOrder, &opt.Name, &thumbnail, &prepMinutes, &description); err != nil {
			return nil, err
		}
		opt.ThumbnailURL = thumbnail.String
		opt.PrepMinutes = int(prepMinutes.Int64)
		opt.Description = description.String
		options = append(options, opt)
	}

	return options, rows.Err()
}
