// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/dinner-bell/feed"
	"github.com/danielhkuo/dinner-bell/middleware"
	"github.com/danielhkuo/dinner-bell/models"
)

// Terminal errors. Anything not matched by one of these is considered
// transient and worth retrying; see IsTransient.
var (
	// ErrUnauthorized means the member token was rejected for the
	// requested group or session. Retrying will not help.
	ErrUnauthorized = errors.New("member token not accepted")

	// ErrSessionClosed means the session stopped accepting writes
	// between load and submit. The caller should refresh session state.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotFound means the group, session, or occasion does not exist.
	ErrNotFound = errors.New("not found")
)

// apiError is a non-2xx response that does not map to a terminal error.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.status, e.message)
}

// IsTransient reports whether err is a connectivity-class failure that a
// retry could plausibly fix. Authorization failures, closed sessions, and
// missing rows are terminal; caller-initiated cancellation is not a
// failure at all. Everything else (network errors, timeouts, 5xx) is
// transient.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	var api *apiError
	if errors.As(err, &api) {
		return api.status >= 500 ||
			api.status == http.StatusRequestTimeout ||
			api.status == http.StatusTooManyRequests
	}
	return true
}

// Client calls the voting API on behalf of one member. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient returns a client for the server at baseURL (scheme and host,
// no trailing slash) authenticating with memberToken.
func NewClient(baseURL, memberToken string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   memberToken,
		http:    &http.Client{},
		dialer:  websocket.DefaultDialer,
	}
}

// ActiveSession returns the group's current active voting session with
// its options, or ErrNotFound when no session is active.
func (c *Client) ActiveSession(ctx context.Context, groupID string) (*models.SessionWithOptions, error) {
	var out models.SessionWithOptions
	if err := c.do(ctx, "GET", "/groups/"+groupID+"/sessions/active", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveOccasionSession is ActiveSession for occasion-scoped voting.
func (c *Client) ActiveOccasionSession(ctx context.Context, occasionID string) (*models.SessionWithOptions, error) {
	var out models.SessionWithOptions
	if err := c.do(ctx, "GET", "/occasions/"+occasionID+"/sessions/active", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session returns one session with its options regardless of status.
func (c *Client) Session(ctx context.Context, sessionID string) (*models.SessionWithOptions, error) {
	var out models.SessionWithOptions
	if err := c.do(ctx, "GET", "/sessions/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchTally returns the session's current top standings, computed fresh
// by the server on every call.
func (c *Client) FetchTally(ctx context.Context, sessionID string) (*models.TallyResponse, error) {
	var out models.TallyResponse
	if err := c.do(ctx, "GET", "/sessions/"+sessionID+"/tally", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitVote records the member's yes/no on one option, overwriting any
// earlier vote on the same option.
func (c *Client) SubmitVote(ctx context.Context, sessionID, optionID, value string) (*models.SubmitVoteResponse, error) {
	req := models.SubmitVoteRequest{OptionID: optionID, Value: value}
	var out models.SubmitVoteResponse
	if err := c.do(ctx, "PUT", "/sessions/"+sessionID+"/votes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitDayResponse records whether the member is eating with the group
// on the given date (empty date means today).
func (c *Client) SubmitDayResponse(ctx context.Context, groupID, date string, eating bool) (*models.DayResponseResponse, error) {
	req := models.DayResponseRequest{Date: date, Eating: eating}
	var out models.DayResponseResponse
	if err := c.do(ctx, "PUT", "/groups/"+groupID+"/day-responses", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenFeed dials the change feed for one table and scope. The returned
// connection has not yet delivered its subscribed ack; FeedWatcher reads
// it as part of establishment.
func (c *Client) OpenFeed(ctx context.Context, table, scopeID string) (*websocket.Conn, error) {
	q := url.Values{}
	q.Set("table", table)
	switch table {
	case feed.TableMealVote:
		q.Set("session_id", scopeID)
	case feed.TableDayResponse, feed.TableVoteSession:
		q.Set("group_id", scopeID)
	case feed.TableOccasionRSVP:
		q.Set("occasion_id", scopeID)
	default:
		return nil, fmt.Errorf("unknown feed table %q", table)
	}
	// Browsers cannot set headers on websocket dials, so the server
	// accepts the token as a query parameter; use the same path here.
	q.Set("token", c.token)

	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/feed?" + q.Encode()
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, statusError(resp.StatusCode, "feed handshake rejected")
		}
		return nil, fmt.Errorf("dialing feed: %w", err)
	}
	return conn, nil
}

// FeedDialer binds OpenFeed to one subscription scope, in the shape the
// FeedWatcher wants.
func (c *Client) FeedDialer(table, scopeID string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, err := c.OpenFeed(ctx, table, scopeID)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.MemberTokenHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiResp models.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&apiResp)
		msg := apiResp.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return statusError(resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// statusError maps a response code onto the error taxonomy. 409 and 410
// both mean the session will not take this write anymore.
func statusError(status int, msg string) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusConflict, http.StatusGone:
		return fmt.Errorf("%w: %s", ErrSessionClosed, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return &apiError{status: status, message: msg}
}
