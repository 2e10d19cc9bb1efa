// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/feed"
	"github.com/danielhkuo/dinner-bell/middleware"
	"github.com/danielhkuo/dinner-bell/models"
)

type DayResponseHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *feed.Hub
}

func NewDayResponseHandler(db *sql.DB, cfg cliparse.Config, hub *feed.Hub) *DayResponseHandler {
	return &DayResponseHandler{db: db, cfg: cfg, hub: hub}
}

// UpsertDayResponse handles PUT /groups/:id/day-responses
// One row per (group, member, date); re-answering overwrites in place
func (h *DayResponseHandler) UpsertDayResponse(w http.ResponseWriter, r *http.Request) {
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

	var req models.DayResponseRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	date := req.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
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

	// Existence decides the feed event type; a racing writer may
	// misclassify, which is fine since events only trigger re-reads
	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM day_response
			WHERE group_id = $1 AND member_id = $2 AND on_date = $3
		)
	`, groupID, member.MemberID, date).Scan(&exists)

	if err != nil {
		slog.Error("failed to check day response", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO day_response (group_id, member_id, on_date, eating, responded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, member_id, on_date) DO UPDATE SET
			eating = EXCLUDED.eating,
			responded_at = EXCLUDED.responded_at
	`, groupID, member.MemberID, date, req.Eating, now)

	if err != nil {
		slog.Error("failed to upsert day response", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save response")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save response")
		return
	}

	eventType := feed.Insert
	if exists {
		eventType = feed.Update
	}
	publishRow(h.hub, eventType, feed.TableDayResponse, groupID, models.DayResponse{
		GroupID:     groupID,
		MemberID:    member.MemberID,
		DisplayName: member.DisplayName,
		Date:        date,
		Eating:      req.Eating,
		RespondedAt: now,
	})

	message := "Response recorded"
	if exists {
		message = "Response updated"
	}

	slog.Info("day response saved", "group_id", groupID, "member_id", member.MemberID, "date", date, "eating", req.Eating)

	middleware.JSONResponse(w, http.StatusOK, models.DayResponseResponse{
		Date:    date,
		Eating:  req.Eating,
		Message: message,
	})
}

// ListDayResponses handles GET /groups/:id/day-responses?date=YYYY-MM-DD
// Defaults to today when no date is given
func (h *DayResponseHandler) ListDayResponses(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if groupID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if _, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rows, err := h.db.Query(`
		SELECT d.group_id, d.member_id, m.display_name, d.on_date, d.eating, d.responded_at
		FROM day_response d
		JOIN group_member m ON d.group_id = m.group_id AND d.member_id = m.member_id
		WHERE d.group_id = $1 AND d.on_date = $2
		ORDER BY d.responded_at
	`, groupID, date)

	if err != nil {
		slog.Error("failed to query day responses", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	responses := []models.DayResponse{}
	for rows.Next() {
		var resp models.DayResponse
		if err := rows.Scan(&resp.GroupID, &resp.MemberID, &resp.DisplayName, &resp.Date, &resp.Eating, &resp.RespondedAt); err != nil {
			slog.Error("failed to scan day response", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		responses = append(responses, resp)
	}

	middleware.JSONResponse(w, http.StatusOK, models.DayResponsesResponse{
		Date:      date,
		Responses: responses,
	})
}

// publishRow marshals the row snapshot and publishes it on the hub.
// Feed delivery is advisory, so marshal failures are logged and dropped.
func publishRow(hub *feed.Hub, typ feed.ChangeType, table, scopeID string, row interface{}) {
	if hub == nil {
		return
	}
	snapshot, err := json.Marshal(row)
	if err != nil {
		slog.Error("failed to marshal feed row", "table", table, "error", err)
		snapshot = nil
	}
	_ = hub.Publish(feed.Event{
		Type:    typ,
		Table:   table,
		ScopeID: scopeID,
		Row:     snapshot,
	})
}
