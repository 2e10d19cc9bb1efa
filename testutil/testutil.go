// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/dinner-bell/auth"
	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/db"
	"github.com/danielhkuo/dinner-bell/models"
)

// dbCounter gives each test its own in-memory database name so parallel
// tests never share state.
var dbCounter atomic.Int64

// SetupTestDB creates a fresh in-memory SQLite database with the full
// schema. The database lives until the test ends; cleanup is registered
// automatically.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("testdb%d", dbCounter.Add(1))
	conn, err := db.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:          3328,
		DatabaseURL:   "file:unused?mode=memory",
		DatabaseType:  "sqlite",
		GroupCodeSalt: "test-code-salt",
	}
}

// CreateTestGroup creates a group and returns its ID and join code
func CreateTestGroup(t *testing.T, db *sql.DB, cfg cliparse.Config, name string) (groupID, joinCode string) {
	t.Helper()

	groupID = uuid.NewString()
	joinCode = auth.GenerateJoinCode(groupID, cfg.GroupCodeSalt)

	_, err := db.Exec(`
		INSERT INTO dining_group (id, name, join_code, created_at)
		VALUES ($1, $2, $3, $4)
	`, groupID, name, joinCode, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test group: %v", err)
	}

	return groupID, joinCode
}

// AddTestMember enrolls a member and returns their ID and token
func AddTestMember(t *testing.T, db *sql.DB, groupID, displayName string) (memberID, memberToken string) {
	t.Helper()

	memberID = uuid.NewString()
	memberToken, err := auth.GenerateMemberToken()
	if err != nil {
		t.Fatalf("Failed to generate member token: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO group_member (group_id, member_id, display_name, member_token, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, groupID, memberID, displayName, memberToken, time.Now())
	if err != nil {
		t.Fatalf("Failed to add test member: %v", err)
	}

	return memberID, memberToken
}

// CreateTestOccasion creates an occasion and returns its ID
func CreateTestOccasion(t *testing.T, db *sql.DB, groupID, createdBy, title string) string {
	t.Helper()

	occasionID := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO occasion (id, group_id, title, scheduled_for, location, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, occasionID, groupID, title, time.Now().Add(24*time.Hour), "Home", createdBy, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test occasion: %v", err)
	}

	return occasionID
}

// StartTestSession creates a voting session and returns its ID.
// Pass a nil occasionID for a group-scoped session.
func StartTestSession(t *testing.T, db *sql.DB, groupID string, occasionID *string, status string) string {
	t.Helper()

	sessionID := uuid.NewString()
	scope := models.ScopeGroup
	var occasionValue sql.NullString
	if occasionID != nil {
		scope = models.ScopeOccasion
		occasionValue = sql.NullString{String: *occasionID, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO vote_session (id, group_id, occasion_id, scope, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sessionID, groupID, occasionValue, scope, status, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return sessionID
}

// AddTestOption adds a meal option to a session and returns the option ID
func AddTestOption(t *testing.T, db *sql.DB, sessionID string, displayOrder int, name string) string {
	t.Helper()

	optionID := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO meal_option (id, session_id, display_order, name, thumbnail_url, prep_minutes, description)
		VALUES ($1, $2, $3, $4, '', 0, '')
	`, optionID, sessionID, displayOrder, name)
	if err != nil {
		t.Fatalf("Failed to create test option: %v", err)
	}

	return optionID
}

// CastTestVote writes a vote directly, overwriting any prior value
func CastTestVote(t *testing.T, db *sql.DB, sessionID, optionID, voterID, value string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO meal_vote (session_id, option_id, voter_id, value, cast_at, ip_hash)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (session_id, option_id, voter_id) DO UPDATE SET
			value = EXCLUDED.value,
			cast_at = EXCLUDED.cast_at
	`, sessionID, optionID, voterID, value, time.Now())
	if err != nil {
		t.Fatalf("Failed to cast test vote: %v", err)
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
