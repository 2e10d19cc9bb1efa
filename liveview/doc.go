// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package liveview keeps a client-side copy of a session's vote standings
// current while members vote.
//
// Client wraps the HTTP and websocket API for one member. FeedWatcher
// holds a feed subscription open, reconnecting with doubled delays and
// abandoning after three straight failures. View ties them together: it
// bootstraps with a tally fetch, refreshes shortly after feed events
// arrive (debounced, so a burst of votes costs one fetch), and polls
// every second no matter what the feed is doing.
//
// The feed is advisory (see package feed), so correctness never depends
// on it: every datum shown comes from a tally fetch, and the poll loop
// alone keeps the view at most one interval stale. Votes submitted
// through a View appear immediately and are held against slower server
// reads for about a second; a failed submit restores the option exactly.
package liveview
