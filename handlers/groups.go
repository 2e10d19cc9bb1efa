// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/dinner-bell/auth"
	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/middleware"
	"github.com/danielhkuo/dinner-bell/models"
)

type GroupHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewGroupHandler(db *sql.DB, cfg cliparse.Config) *GroupHandler {
	return &GroupHandler{db: db, cfg: cfg}
}

// CreateGroup handles POST /groups
// Creates the group and enrolls the creator as its first member
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGroupRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate input
	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.DisplayName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "display_name is required")
		return
	}

	groupID := uuid.NewString()
	joinCode := auth.GenerateJoinCode(groupID, h.cfg.GroupCodeSalt)
	memberID := uuid.NewString()

	memberToken, err := auth.GenerateMemberToken()
	if err != nil {
		slog.Error("failed to generate member token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create group")
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

	_, err = tx.Exec(`
		INSERT INTO dining_group (id, name, join_code, created_at)
		VALUES ($1, $2, $3, $4)
	`, groupID, req.Name, joinCode, now)

	if err != nil {
		slog.Error("failed to insert group", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create group")
		return
	}

	_, err = tx.Exec(`
		INSERT INTO group_member (group_id, member_id, display_name, member_token, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, groupID, memberID, req.DisplayName, memberToken, now)

	if err != nil {
		slog.Error("failed to insert creator membership", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create group")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create group")
		return
	}

	slog.Info("group created", "group_id", groupID, "name", req.Name)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateGroupResponse{
		GroupID:     groupID,
		JoinCode:    joinCode,
		MemberID:    memberID,
		MemberToken: memberToken,
	})
}

// JoinGroup handles POST /groups/join
// Joins by code; display names are unique within a group
func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	var req models.JoinGroupRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.JoinCode == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "join_code is required")
		return
	}
	if req.DisplayName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "display_name is required")
		return
	}
	if len(req.DisplayName) < 2 || len(req.DisplayName) > 50 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "display_name must be 2-50 characters")
		return
	}

	// Find group by join code
	var groupID string
	err := h.db.QueryRow(`
		SELECT id FROM dining_group WHERE join_code = $1
	`, req.JoinCode).Scan(&groupID)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Group not found")
		return
	}
	if err != nil {
		slog.Error("failed to query group", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	memberID := uuid.NewString()
	memberToken, err := auth.GenerateMemberToken()
	if err != nil {
		slog.Error("failed to generate member token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join group")
		return
	}

	// Insert membership (UNIQUE constraint will prevent duplicate names)
	_, err = h.db.Exec(`
		INSERT INTO group_member (group_id, member_id, display_name, member_token, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, groupID, memberID, req.DisplayName, memberToken, time.Now())

	if err != nil {
		if isUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "Display name already taken")
			return
		}
		slog.Error("failed to insert membership", "error", err, "group_id", groupID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join group")
		return
	}

	slog.Info("member joined", "group_id", groupID, "display_name", req.DisplayName)

	middleware.JSONResponse(w, http.StatusCreated, models.JoinGroupResponse{
		GroupID:     groupID,
		MemberID:    memberID,
		MemberToken: memberToken,
	})
}

// GetGroup handles GET /groups/:id
// Returns the group and its member roster; requires membership
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if groupID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if _, err := GetGroupMember(h.db, groupID, middleware.MemberToken(r)); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Not a member of this group")
		return
	}

	var group models.Group
	err := h.db.QueryRow(`
		SELECT id, name, join_code, created_at
		FROM dining_group
		WHERE id = $1
	`, groupID).Scan(&group.ID, &group.Name, &group.JoinCode, &group.CreatedAt)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Group not found")
		return
	}
	if err != nil {
		slog.Error("failed to query group", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	rows, err := h.db.Query(`
		SELECT group_id, member_id, display_name, joined_at
		FROM group_member
		WHERE group_id = $1
		ORDER BY joined_at
	`, groupID)

	if err != nil {
		slog.Error("failed to query members", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.GroupID, &m.MemberID, &m.DisplayName, &m.JoinedAt); err != nil {
			slog.Error("failed to scan member", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		members = append(members, m)
	}

	middleware.JSONResponse(w, http.StatusOK, models.GroupWithMembers{
		Group:   group,
		Members: members,
	})
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// either driver (modernc sqlite or lib/pq).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
