// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database connection and schema creation.

# Opening a Connection

Open selects the driver from the configured database type:

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)

Supported types are "postgres" (github.com/lib/pq) and "sqlite"
(modernc.org/sqlite, no cgo). The SQLite path forces foreign_keys on and
caps the pool at one connection so writes queue instead of failing busy.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
All timestamps are written by the application so the DDL stays portable
across both dialects.

# Tables

The schema includes:

  - dining_group: group metadata and join code
  - group_member: membership rows carrying the member token credential
  - day_response: daily "eating with us" answers
  - occasion: scheduled special occasions
  - occasion_rsvp: RSVP per member per occasion
  - vote_session: one round of meal voting (group- or occasion-scoped)
  - meal_option: candidate recipes per session
  - meal_vote: one live vote per (session, option, voter)

# Relationships

	dining_group 1──* group_member
	dining_group 1──* day_response
	dining_group 1──* occasion
	occasion     1──* occasion_rsvp
	dining_group 1──* vote_session
	occasion     1──* vote_session (occasion scope)
	vote_session 1──* meal_option
	vote_session 1──* meal_vote
	meal_option  1──* meal_vote

All foreign keys use ON DELETE CASCADE.

# Invariants

meal_vote's primary key (session_id, option_id, voter_id) is the
uniqueness constraint the tally depends on: re-votes are upserts that
overwrite value and cast_at in place, never a second row.

vote_session deliberately has no "one active per scope" constraint;
duplicate actives are possible under races and reads resolve them by
newest created_at.
*/
package db
