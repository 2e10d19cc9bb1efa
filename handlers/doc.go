// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Dinner Bell API.

# Handler Types

Each handler is a struct with database and config dependencies; handlers
that write watched tables also hold the feed hub:

  - GroupHandler: group creation, joining, roster
  - MemberHandler: token-scoped membership queries
  - DayResponseHandler: "eating with us today" answers
  - OccasionHandler: special occasions and RSVPs
  - SessionHandler: voting-session lifecycle
  - VoteHandler: vote submission (the upsert path)
  - TallyHandler: the top-three aggregate read
  - FeedHandler: the websocket change feed

Handlers are created via constructor functions:

	voteHandler := handlers.NewVoteHandler(db, cfg, hub)

# Membership Flow

Groups hand out a join code; members authenticate every later call with
the X-Member-Token header issued when they join:

	POST /groups       → CreateGroup (returns join_code + member_token)
	POST /groups/join  → JoinGroup (returns member_token)
	GET  /groups/{id}  → GetGroup
	GET  /members/my-groups → MyGroups

# Voting Flow

Sessions progress through two states: active → completed

	POST /groups/{id}/sessions        → StartGroupSession (options batch)
	POST /occasions/{id}/sessions     → StartOccasionSession
	GET  /groups/{id}/sessions/active → ActiveGroupSession (newest wins)
	PUT  /sessions/{id}/votes         → SubmitVote (upsert by triple)
	GET  /sessions/{id}/tally         → GetTally (fresh every call)
	POST /sessions/{id}/close         → CloseSession

Voting on a completed session returns 410; the tally stays readable.

# Top-Three Computation

The ranking query is implemented in topthree.go:

	entries, err := ComputeTopThree(db, sessionID, voterID)

Options are ranked by affirmative count descending, display order
ascending on ties, truncated to three. Zero-vote options are ranked too.

# Change Feed

Writes to meal_vote, day_response, occasion_rsvp and vote_session publish
row events on the feed hub; FeedHandler streams them over a websocket:

	GET /feed?table=meal_vote&session_id={id}   (websocket)

The first frame is a subscribed ack, then row events. Delivery is
best-effort; consumers poll as the authoritative fallback.
*/
package handlers
