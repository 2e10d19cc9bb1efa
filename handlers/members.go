// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/middleware"
	"github.com/danielhkuo/dinner-bell/models"
)

type MemberHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewMemberHandler(db *sql.DB, cfg cliparse.Config) *MemberHandler {
	return &MemberHandler{db: db, cfg: cfg}
}

// MyGroups handles GET /members/my-groups
// Returns every group the presented member token belongs to
func (h *MemberHandler) MyGroups(w http.ResponseWriter, r *http.Request) {
	token := middleware.MemberToken(r)
	if token == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, middleware.MemberTokenHeader+" header required")
		return
	}

	rows, err := h.db.Query(`
		SELECT g.id, g.name, g.join_code, g.created_at,
		       m.member_id, m.display_name, m.joined_at
		FROM group_member m
		JOIN dining_group g ON m.group_id = g.id
		WHERE m.member_token = $1
		ORDER BY m.joined_at DESC
	`, token)

	if err != nil {
		slog.Error("failed to query memberships", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	groups := []models.GroupMembership{}
	for rows.Next() {
		var gm models.GroupMembership
		if err := rows.Scan(
			&gm.Group.ID, &gm.Group.Name, &gm.Group.JoinCode, &gm.Group.CreatedAt,
			&gm.MemberID, &gm.DisplayName, &gm.JoinedAt,
		); err != nil {
			slog.Error("failed to scan membership", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		groups = append(groups, gm)
	}

	middleware.JSONResponse(w, http.StatusOK, models.MyGroupsResponse{
		Groups: groups,
	})
}

// GetGroupMember resolves a member token within one group. Returns
// sql.ErrNoRows when the token does not belong to the group, which handlers
// translate to 401: eligibility is decided here at the storage layer, not
// re-derived by callers.
func GetGroupMember(db *sql.DB, groupID, token string) (models.Member, error) {
	var m models.Member
	if token == "" {
		return m, sql.ErrNoRows
	}

	err := db.QueryRow(`
		SELECT group_id, member_id, display_name, member_token, joined_at
		FROM group_member
		WHERE group_id = $1 AND member_token = $2
	`, groupID, token).Scan(&m.GroupID, &m.MemberID, &m.DisplayName, &m.MemberToken, &m.JoinedAt)

	return m, err
}

// GetSessionScope looks up the owning group and current status of a session.
func GetSessionScope(db *sql.DB, sessionID string) (groupID, status string, err error) {
	err = db.QueryRow(`
		SELECT group_id, status FROM vote_session WHERE id = $1
	`, sessionID).Scan(&groupID, &status)
	return groupID, status, err
}

// GetOccasionGroup looks up the group an occasion belongs to.
func GetOccasionGroup(db *sql.DB, occasionID string) (string, error) {
	var groupID string
	err := db.QueryRow(`
		SELECT group_id FROM occasion WHERE id = $1
	`, occasionID).Scan(&groupID)
	return groupID, err
}
