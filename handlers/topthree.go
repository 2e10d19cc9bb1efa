// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"fmt"

	"github.com/danielhkuo/dinner-bell/models"
)

// ComputeTopThree ranks a session's options by affirmative vote count
// descending, ties broken by display order ascending, truncated to three.
// Options nobody has voted for count as zero and still compete for a slot.
// The result is computed fresh from the vote table on every call; nothing
// is cached or stored.
//
// voterID's own live value for each surviving option is attached so the
// caller can reconcile optimistic local state against this authoritative
// read.
func ComputeTopThree(db *sql.DB, sessionID, voterID string) ([]models.TallyEntry, error) {
	rows, err := db.Query(`
		SELECT o.id, o.session_id, o.display_order, o.name, o.thumbnail_url, o.prep_minutes, o.description,
		       COUNT(v.voter_id) AS yes_count
		FROM meal_option o
		LEFT JOIN meal_vote v
		    ON v.session_id = o.session_id AND v.option_id = o.id AND v.value = $1
		WHERE o.session_id = $2
		GROUP BY o.id, o.session_id, o.display_order, o.name, o.thumbnail_url, o.prep_minutes, o.description
		ORDER BY yes_count DESC, o.display_order ASC
		LIMIT 3
	`, models.VoteYes, sessionID)

	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	entries := []models.TallyEntry{}
	for rows.Next() {
		var entry models.TallyEntry
		var thumbnail, description sql.NullString
		var prepMinutes sql.NullInt64

		if err := rows.Scan(
			&entry.Option.ID, &entry.Option.SessionID, &entry.Option.DisplayOrder,
			&entry.Option.Name, &thumbnail, &prepMinutes, &description,
			&entry.YesCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tally row: %w", err)
		}

		entry.Option.ThumbnailURL = thumbnail.String
		entry.Option.PrepMinutes = int(prepMinutes.Int64)
		entry.Option.Description = description.String
		entry.OptionID = entry.Option.ID
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tally rows: %w", err)
	}

	if len(entries) == 0 {
		return entries, nil
	}

	myVotes, err := getVoterValues(db, sessionID, voterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get voter values: %w", err)
	}
	for i := range entries {
		entries[i].MyVote = myVotes[entries[i].OptionID]
	}

	return entries, nil
}

// getVoterValues retrieves one voter's live values keyed by option
func getVoterValues(db *sql.DB, sessionID, voterID string) (map[string]string, error) {
	rows, err := db.Query(`
		SELECT option_id, value FROM meal_vote
		WHERE session_id = $1 AND voter_id = $2
	`, sessionID, voterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var optionID, value string
		if err := rows.Scan(&optionID, &value); err != nil {
			return nil, err
		}
		values[optionID] = value
	}

	return values, rows.Err()
}
