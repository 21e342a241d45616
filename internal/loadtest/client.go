package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// client wraps http.Client with JSON helpers.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{base: base, http: &http.Client{Timeout: timeout}}
}

// statusError carries a non-success HTTP status.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *client) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *client) problem(ctx context.Context, id string) (Problem, error) {
	var p Problem
	err := c.do(ctx, http.MethodGet, "/problems/"+url.PathEscape(id), nil, &p)
	return p, err
}

func (c *client) submit(ctx context.Context, problemID string, s Submission) (SubmitResult, error) {
	var res SubmitResult
	err := c.do(ctx, http.MethodPost, "/problems/"+url.PathEscape(problemID)+"/submit", s, &res)
	return res, err
}

func (c *client) leaderboard(ctx context.Context, problemID string, dimension, limit int) ([]Entry, error) {
	var rows []Entry
	path := fmt.Sprintf("/problems/%s/leaderboard?dimension=%d&limit=%d", url.PathEscape(problemID), dimension, limit)
	err := c.do(ctx, http.MethodGet, path, nil, &rows)
	return rows, err
}

func (c *client) userRankings(ctx context.Context, userID string) (map[string]UserProblemRanking, error) {
	var out map[string]UserProblemRanking
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/rankings", nil, &out)
	return out, err
}
