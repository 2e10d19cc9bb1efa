// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
//
// The DDL sticks to the dialect shared by PostgreSQL and SQLite: ids are
// TEXT, timestamps are always written by the application (no NOW()
// defaults), and upserts rely on ON CONFLICT ... DO UPDATE.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Dining groups
CREATE TABLE IF NOT EXISTS dining_group (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    join_code TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dining_group_join_code ON dining_group(join_code);

-- Group membership; the member token is the voter's credential
CREATE TABLE IF NOT EXISTS group_member (
    group_id TEXT NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    member_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    member_token TEXT NOT NULL,
    joined_at TIMESTAMP NOT NULL,
    PRIMARY KEY (group_id, member_id),
    UNIQUE (group_id, display_name)
);

CREATE INDEX IF NOT EXISTS idx_group_member_token ON group_member(member_token);

-- "Are you eating with us today" answers, one per member per date
CREATE TABLE IF NOT EXISTS day_response (
    group_id TEXT NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    member_id TEXT NOT NULL,
    on_date TEXT NOT NULL,
    eating BOOLEAN NOT NULL,
    responded_at TIMESTAMP NOT NULL,
    PRIMARY KEY (group_id, member_id, on_date)
);

-- Special occasions
CREATE TABLE IF NOT EXISTS occasion (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    scheduled_for TIMESTAMP NOT NULL,
    location TEXT,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_occasion_group_id ON occasion(group_id);

CREATE TABLE IF NOT EXISTS occasion_rsvp (
    occasion_id TEXT NOT NULL REFERENCES occasion(id) ON DELETE CASCADE,
    member_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('going', 'maybe', 'declined')),
    responded_at TIMESTAMP NOT NULL,
    PRIMARY KEY (occasion_id, member_id)
);

-- Voting sessions. Active-per-scope uniqueness is NOT enforced here;
-- lookups resolve duplicates by newest created_at (see handlers).
CREATE TABLE IF NOT EXISTS vote_session (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL REFERENCES dining_group(id) ON DELETE CASCADE,
    occasion_id TEXT REFERENCES occasion(id) ON DELETE CASCADE,
    scope TEXT NOT NULL CHECK (scope IN ('group', 'occasion')),
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vote_session_group ON vote_session(group_id, scope, status);
CREATE INDEX IF NOT EXISTS idx_vote_session_occasion ON vote_session(occasion_id);

-- Candidate recipes, batch-created with their session, immutable after
CREATE TABLE IF NOT EXISTS meal_option (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES vote_session(id) ON DELETE CASCADE,
    display_order INTEGER NOT NULL,
    name TEXT NOT NULL,
    thumbnail_url TEXT,
    prep_minutes INTEGER,
    description TEXT
);

CREATE INDEX IF NOT EXISTS idx_meal_option_session ON meal_option(session_id);

-- One live vote per (session, option, voter); re-votes overwrite in place
CREATE TABLE IF NOT EXISTS meal_vote (
    session_id TEXT NOT NULL REFERENCES vote_session(id) ON DELETE CASCADE,
    option_id TEXT NOT NULL REFERENCES meal_option(id) ON DELETE CASCADE,
    voter_id TEXT NOT NULL,
    value TEXT NOT NULL CHECK (value IN ('yes', 'no')),
    cast_at TIMESTAMP NOT NULL,
    ip_hash TEXT,
    PRIMARY KEY (session_id, option_id, voter_id)
);

CREATE INDEX IF NOT EXISTS idx_meal_vote_option ON meal_vote(session_id, option_id);
`
