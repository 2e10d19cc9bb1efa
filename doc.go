// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Dinner Bell API server.

Dinner Bell is a group-dining coordination service: households form groups,
answer "are you eating with us today," schedule special occasions with
RSVPs, and run live meal-voting sessions where the top three options are
tallied in real time as members swipe yes/no on candidate recipes.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=file:dinner.db GROUP_CODE_SALT=secret go run main.go

Or with flags:

	go run main.go -p 3328 -t postgres -d "postgres://..." -code-salt secret

An optional .env file in the working directory is loaded first.

# Configuration

Required settings:

  - DATABASE_URL (-d): connection string for the selected driver
  - GROUP_CODE_SALT (-code-salt): secret for join code and IP hashing

Optional settings:

  - PORT (-p): server port (default: 3328)
  - DATABASE_TYPE (-t): "sqlite" (default) or "postgres"

# Architecture

The server uses a handler-based architecture with dependency injection:

  - handlers: HTTP request handlers (groups, sessions, votes, tally, feed)
  - router: route definitions using Go 1.22+ routing
  - middleware: CORS, logging, JSON helpers, member-token extraction
  - models: request/response types
  - auth: token and join-code generation
  - db: driver selection and schema creation
  - cliparse: configuration parsing
  - feed: row-change events and the publish/subscribe hub
  - liveview: client-side live tally view (polling + feed + optimistic votes)

See package documentation for each component.
*/
package main
