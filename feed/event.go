// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feed

import (
	"encoding/json"
	"fmt"
)

// Tables that emit change events. The value is the table name as it
// appears in the schema and on the wire.
const (
	TableMealVote     = "meal_vote"
	TableDayResponse  = "day_response"
	TableOccasionRSVP = "occasion_rsvp"
	TableVoteSession  = "vote_session"
)

// ChangeType represents the type of row change.
// The changes are bit flags so that they can be combined when subscribing.
type ChangeType int

const (
	// Insert represents a new row in the database.
	Insert ChangeType = 1 << iota
	// Update represents an update to an existing row in the database.
	Update
	// Delete represents a row that has been deleted from the database.
	Delete
	// All represents any change to the table of interest.
	All = Insert | Update | Delete
)

// String returns the wire name of a single change type.
func (t ChangeType) String() string {
	switch t {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// MarshalJSON encodes the change type as its wire name.
func (t ChangeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a wire name back into a change type.
func (t *ChangeType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "insert":
		*t = Insert
	case "update":
		*t = Update
	case "delete":
		*t = Delete
	default:
		return fmt.Errorf("unknown change type %q", name)
	}
	return nil
}

// Event is one row change. Row carries a JSON snapshot of the row as it
// exists after the change (or as it existed before a delete), so consumers
// can often avoid a re-read. ScopeID is the id the table is filtered by:
// session id for meal_vote, group id for day_response and vote_session,
// occasion id for occasion_rsvp.
type Event struct {
	Type    ChangeType      `json:"type"`
	Table   string          `json:"table"`
	ScopeID string          `json:"scope_id"`
	Row     json.RawMessage `json:"row,omitempty"`
}

// StatusSubscribed is the Status of the ack frame.
const StatusSubscribed = "subscribed"

// SubscribedAck is the first frame written on a feed connection. A
// subscription is not considered established until the client has read it.
type SubscribedAck struct {
	Status  string `json:"status"`
	Table   string `json:"table"`
	ScopeID string `json:"scope_id"`
}

// Topic returns the hub topic the event is published on.
func (e Event) Topic() string {
	return e.Table + "/" + e.ScopeID
}
