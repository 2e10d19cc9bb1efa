// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Dinner Bell API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, hub)

# Endpoints

Health:

	GET /health

Groups and membership (member operations require X-Member-Token):

	POST /groups            - Create group (returns join code + token)
	POST /groups/join       - Join by code
	GET  /groups/{id}       - Group with member roster
	GET  /members/my-groups - Groups for the presented token

Day responses:

	PUT /groups/{id}/day-responses - Upsert today's yes/no
	GET /groups/{id}/day-responses - List for a date (?date=YYYY-MM-DD)

Occasions:

	POST /groups/{id}/occasions - Create occasion
	GET  /groups/{id}/occasions - Upcoming occasions
	PUT  /occasions/{id}/rsvp   - Upsert RSVP

Voting sessions:

	POST /groups/{id}/sessions           - Start session with options
	GET  /groups/{id}/sessions/active    - Active session lookup
	POST /occasions/{id}/sessions        - Start occasion session
	GET  /occasions/{id}/sessions/active - Active occasion session
	GET  /sessions/{id}                  - Session with options
	POST /sessions/{id}/close            - Mark completed

Votes and tallies:

	PUT /sessions/{id}/votes - Upsert this voter's vote on an option
	GET /sessions/{id}/tally - Top three by yes count, fresh every call

Live change feed:

	GET /feed?table=meal_vote&session_id={id} - Websocket row events

# Handler Initialization

The router creates handler instances with dependency injection:

	voteHandler := handlers.NewVoteHandler(db, cfg, hub)
	tallyHandler := handlers.NewTallyHandler(db, cfg)

All handlers receive the database connection and configuration; handlers
on the write path of watched tables also receive the feed hub.
*/
package router
