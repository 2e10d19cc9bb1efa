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

type OccasionHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *feed.Hub
}

func NewOccasionHandler(db *sql.DB, cfg cliparse.Config, hub *feed.Hub) *OccasionHandler {
	return &OccasionHandler{db: db, cfg: cfg, hub: hub}
}

// CreateOccasion handles POST /groups/:id/occasions
func (h *OccasionHandler) CreateOccasion(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if groupID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "group_id is required")
		return
	}

	member, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	var req models.CreateOccasionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate input
	if req.Title == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.ScheduledFor.IsZero() {
		middleware.ErrorResponse(w, http.StatusBadRequest, "scheduled_for is required")
		return
	}

	occasionID := uuid.NewString()

	_, err = h.db.Exec(`
		INSERT INTO occasion (id, group_id, title, scheduled_for, location, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, occasionID, groupID, req.Title, req.ScheduledFor, req.Location, member.MemberID, time.Now())

	if err != nil {
		slog.Error("failed to insert occasion", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create occasion")
		return
	}

	slog.Info("occasion created", "occasion_id", occasionID, "group_id", groupID, "title", req.Title)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateOccasionResponse{
		OccasionID: occasionID,
	})
}

// ListOccasions handles GET /groups/:id/occasions
// Returns upcoming occasions, soonest first
func (h *OccasionHandler) ListOccasions(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if groupID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if _, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	rows, err := h.db.Query(`
		SELECT id, group_id, title, scheduled_for, location, created_by, created_at
		FROM occasion
		WHERE group_id = $1 AND scheduled_for >= $2
		ORDER BY scheduled_for
	`, groupID, time.Now())

	if err != nil {
		slog.Error("failed to query occasions", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	occasions := []models.Occasion{}
	for rows.Next() {
		var occ models.Occasion
		var location sql.NullString
		if err := rows.Scan(&occ.ID, &occ.GroupID, &occ.Title, &occ.ScheduledFor, &location, &occ.CreatedBy, &occ.CreatedAt); err != nil {
			slog.Error("failed to scan occasion", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		occ.Location = location.String
		occasions = append(occasions, occ)
	}

	middleware.JSONResponse(w, http.StatusOK, models.OccasionsResponse{
		Occasions: occasions,
	})
}

// UpsertRSVP handles PUT /occasions/:id/rsvp
// One row per (occasion, member); re-answering overwrites in place
func (h *OccasionHandler) UpsertRSVP(w http.ResponseWriter, r *http.Request) {
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

	member, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	var req models.RSVPRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if !isValidRSVPStatus(req.Status) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "status must be one of: going, maybe, declined")
		return
	}

	now := time.Now()

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM occasion_rsvp WHERE occasion_id = $1 AND member_id = $2
		)
	`, occasionID, member.MemberID).Scan(&exists)

	if err != nil {
		slog.Error("failed to check rsvp", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO occasion_rsvp (occasion_id, member_id, status, responded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (occasion_id, member_id) DO UPDATE SET
			status = EXCLUDED.status,
			responded_at = EXCLUDED.responded_at
	`, occasionID, member.MemberID, req.Status, now)

	if err != nil {
		slog.Error("failed to upsert rsvp", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save RSVP")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save RSVP")
		return
	}

	eventType := feed.Insert
	if exists {
		eventType = feed.Update
	}
	publishRow(h.hub, eventType, feed.TableOccasionRSVP, occasionID, models.RSVP{
		OccasionID:  occasionID,
		MemberID:    member.MemberID,
		DisplayName: member.DisplayName,
		Status:      req.Status,
		RespondedAt: now,
	})

	message := "RSVP recorded"
	if exists {
		message = "RSVP updated"
	}

	slog.Info("rsvp saved", "occasion_id", occasionID, "member_id", member.MemberID, "status", req.Status)

	middleware.JSONResponse(w, http.StatusOK, models.RSVPResponse{
		Status:  req.Status,
		Message: message,
	})
}

func isValidRSVPStatus(status string) bool {
	switch status {
	case models.RSVPGoing, models.RSVPMaybe, models.RSVPDeclined:
		return true
	}
	return false
}
