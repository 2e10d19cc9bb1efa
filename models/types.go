package models

import "time"

// Session status constants
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Session scope constants
const (
	ScopeGroup    = "group"
	ScopeOccasion = "occasion"
)

// Vote value constants
const (
	VoteYes = "yes"
	VoteNo  = "no"
)

// RSVP status constants
const (
	RSVPGoing    = "going"
	RSVPMaybe    = "maybe"
	RSVPDeclined = "declined"
)

// Request types

type CreateGroupRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type JoinGroupRequest struct {
	JoinCode    string `json:"join_code"`
	DisplayName string `json:"display_name"`
}

type DayResponseRequest struct {
	Date   string `json:"date"` // YYYY-MM-DD; empty means today
	Eating bool   `json:"eating"`
}

type CreateOccasionRequest struct {
	Title        string    `json:"title"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Location     string    `json:"location"`
}

type RSVPRequest struct {
	Status string `json:"status"`
}

// MealOptionSpec is one candidate recipe in a session-start batch.
// Display order is the batch index; options are immutable once created.
type MealOptionSpec struct {
	Name         string `json:"name"`
	ThumbnailURL string `json:"thumbnail_url"`
	PrepMinutes  int    `json:"prep_minutes"`
	Description  string `json:"description"`
}

type StartSessionRequest struct {
	Options []MealOptionSpec `json:"options"`
}

type SubmitVoteRequest struct {
	OptionID string `json:"option_id"`
	Value    string `json:"value"`
}

// Response types

type CreateGroupResponse struct {
	GroupID     string `json:"group_id"`
	JoinCode    string `json:"join_code"`
	MemberID    string `json:"member_id"`
	MemberToken string `json:"member_token"`
}

type JoinGroupResponse struct {
	GroupID     string `json:"group_id"`
	MemberID    string `json:"member_id"`
	MemberToken string `json:"member_token"`
}

type DayResponseResponse struct {
	Date    string `json:"date"`
	Eating  bool   `json:"eating"`
	Message string `json:"message"`
}

type CreateOccasionResponse struct {
	OccasionID string `json:"occasion_id"`
}

type RSVPResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StartSessionResponse struct {
	SessionID string       `json:"session_id"`
	Options   []MealOption `json:"options"`
}

type SubmitVoteResponse struct {
	OptionID string    `json:"option_id"`
	Value    string    `json:"value"`
	CastAt   time.Time `json:"cast_at"`
	Message  string    `json:"message"`
}

type CloseSessionResponse struct {
	SessionID string    `json:"session_id"`
	ClosedAt  time.Time `json:"closed_at"`
}

// GroupMembership is one group a member belongs to, as seen from their token.
type GroupMembership struct {
	Group       Group     `json:"group"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

type MyGroupsResponse struct {
	Groups []GroupMembership `json:"groups"`
}

type DayResponsesResponse struct {
	Date      string        `json:"date"`
	Responses []DayResponse `json:"responses"`
}

type OccasionsResponse struct {
	Occasions []Occasion `json:"occasions"`
}

// Domain types

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	JoinCode  string    `json:"join_code"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	GroupID     string    `json:"group_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	MemberToken string    `json:"-"` // Never expose in JSON
	JoinedAt    time.Time `json:"joined_at"`
}

type GroupWithMembers struct {
	Group   Group    `json:"group"`
	Members []Member `json:"members"`
}

type DayResponse struct {
	GroupID     string    `json:"group_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Date        string    `json:"date"`
	Eating      bool      `json:"eating"`
	RespondedAt time.Time `json:"responded_at"`
}

type Occasion struct {
	ID           string    `json:"id"`
	GroupID      string    `json:"group_id"`
	Title        string    `json:"title"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Location     string    `json:"location,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type RSVP struct {
	OccasionID  string    `json:"occasion_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      string    `json:"status"`
	RespondedAt time.Time `json:"responded_at"`
}

type VoteSession struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	OccasionID *string   `json:"occasion_id,omitempty"`
	Scope      string    `json:"scope"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type MealOption struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	DisplayOrder int    `json:"display_order"`
	Name         string `json:"name"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	PrepMinutes  int    `json:"prep_minutes,omitempty"`
	Description  string `json:"description,omitempty"`
}

type SessionWithOptions struct {
	Session VoteSession  `json:"session"`
	Options []MealOption `json:"options"`
}

type Vote struct {
	SessionID string    `json:"session_id"`
	OptionID  string    `json:"option_id"`
	VoterID   string    `json:"voter_id"`
	Value     string    `json:"value"`
	CastAt    time.Time `json:"cast_at"`
	IPHash    *string   `json:"-"` // Never expose in JSON
}

// Tally types

// TallyEntry is one ranked row of a tally: the option, its affirmative
// count, and the requesting voter's own live value for it ("" if none).
type TallyEntry struct {
	OptionID string     `json:"option_id"`
	YesCount int        `json:"yes_count"`
	MyVote   string     `json:"my_vote,omitempty"`
	Option   MealOption `json:"option"`
}

// TallyResponse is the derived top-N view. Never persisted; recomputed
// fresh on every request.
type TallyResponse struct {
	SessionID  string       `json:"session_id"`
	Entries    []TallyEntry `json:"entries"`
	ComputedAt time.Time    `json:"computed_at"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
