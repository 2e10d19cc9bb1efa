// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - CreateGroupRequest: name, display_name
  - JoinGroupRequest: join_code, display_name
  - DayResponseRequest: date, eating
  - CreateOccasionRequest: title, scheduled_for, location
  - RSVPRequest: status
  - StartSessionRequest: options ([]MealOptionSpec)
  - SubmitVoteRequest: option_id, value

# Response Types

Types for JSON responses:

  - CreateGroupResponse: group_id, join_code, member_id, member_token
  - JoinGroupResponse: group_id, member_id, member_token
  - StartSessionResponse: session_id, options
  - SubmitVoteResponse: option_id, value, cast_at, message
  - CloseSessionResponse: session_id, closed_at
  - TallyResponse: session_id, entries, computed_at
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Group: dining group metadata and join code
  - Member: group membership (token never serialized)
  - DayResponse: one member's "eating today" answer for a date
  - Occasion: scheduled special occasion
  - RSVP: one member's occasion response
  - VoteSession: one round of meal voting, scoped to a group or occasion
  - MealOption: candidate recipe within a session
  - Vote: one voter's yes/no on one option (latest wins)
  - TallyEntry: ranked option with affirmative count and caller's own value

# Constants

Session status and scope:

	SessionActive    = "active"
	SessionCompleted = "completed"
	ScopeGroup       = "group"
	ScopeOccasion    = "occasion"

Vote values:

	VoteYes = "yes"
	VoteNo  = "no"

RSVP statuses:

	RSVPGoing    = "going"
	RSVPMaybe    = "maybe"
	RSVPDeclined = "declined"
*/
package models
