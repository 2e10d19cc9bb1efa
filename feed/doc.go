// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package feed carries row-change notifications from the write path to
// live subscribers.
//
// Handlers publish an Event after each committed insert, update, or delete
// on a watched table (meal_vote, day_response, occasion_rsvp, vote_session).
// Each event names its table and the scope id the table is filtered by, and
// carries a JSON snapshot of the row. The Hub routes events by table+scope
// topic, so a subscriber only sees changes for the session, group, or
// occasion it asked about.
//
// The feed is advisory: delivery is asynchronous, unordered across topics,
// and lossy across reconnects. Consumers treat an event as a hint to re-read
// authoritative state, never as the state itself.
package feed
