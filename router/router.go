// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/dinner-bell/cliparse"
	"github.com/danielhkuo/dinner-bell/feed"
	"github.com/danielhkuo/dinner-bell/handlers"
	"github.com/danielhkuo/dinner-bell/middleware"
)

func NewRouter(db *sql.DB, cfg cliparse.Config, hub *feed.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	groupHandler := handlers.NewGroupHandler(db, cfg)
	memberHandler := handlers.NewMemberHandler(db, cfg)
	dayHandler := handlers.NewDayResponseHandler(db, cfg, hub)
	occasionHandler := handlers.NewOccasionHandler(db, cfg, hub)
	sessionHandler := handlers.NewSessionHandler(db, cfg, hub)
	voteHandler := handlers.NewVoteHandler(db, cfg, hub)
	tallyHandler := handlers.NewTallyHandler(db, cfg)
	feedHandler := handlers.NewFeedHandler(db, cfg, hub)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Groups and membership
	mux.HandleFunc("POST /groups", middleware.WithLogging(groupHandler.CreateGroup))
	mux.HandleFunc("POST /groups/join", middleware.WithLogging(groupHandler.JoinGroup))
	mux.HandleFunc("GET /groups/{id}", middleware.WithLogging(groupHandler.GetGroup))
	mux.HandleFunc("GET /members/my-groups", middleware.WithLogging(memberHandler.MyGroups))

	// Day responses
	mux.HandleFunc("PUT /groups/{id}/day-responses", middleware.WithLogging(dayHandler.UpsertDayResponse))
	mux.HandleFunc("GET /groups/{id}/day-responses", middleware.WithLogging(dayHandler.ListDayResponses))

	// Occasions and RSVPs
	mux.HandleFunc("POST /groups/{id}/occasions", middleware.WithLogging(occasionHandler.CreateOccasion))
	mux.HandleFunc("GET /groups/{id}/occasions", middleware.WithLogging(occasionHandler.ListOccasions))
	mux.HandleFunc("PUT /occasions/{id}/rsvp", middleware.WithLogging(occasionHandler.UpsertRSVP))

	// Voting sessions
	mux.HandleFunc("POST /groups/{id}/sessions", middleware.WithLogging(sessionHandler.StartGroupSession))
	mux.HandleFunc("GET /groups/{id}/sessions/active", middleware.WithLogging(sessionHandler.ActiveGroupSession))
	mux.HandleFunc("POST /occasions/{id}/sessions", middleware.WithLogging(sessionHandler.StartOccasionSession))
	mux.HandleFunc("GET /occasions/{id}/sessions/active", middleware.WithLogging(sessionHandler.ActiveOccasionSession))
	mux.HandleFunc("GET /sessions/{id}", middleware.WithLogging(sessionHandler.GetSession))
	mux.HandleFunc("POST /sessions/{id}/close", middleware.WithLogging(sessionHandler.CloseSession))

	// Votes and tallies
	mux.HandleFunc("PUT /sessions/{id}/votes", middleware.WithLogging(voteHandler.SubmitVote))
	mux.HandleFunc("GET /sessions/{id}/tally", middleware.WithLogging(tallyHandler.GetTally))

	// Live change feed (websocket)
	mux.HandleFunc("GET /feed", middleware.WithLogging(feedHandler.Stream))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("dinner-bell API v1"))
	})

	return mux
}
