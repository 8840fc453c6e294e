// Package client is a small HTTP client for the attendance API, used by the
// device agent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"timeclock/internal/attendance/handler"
	"timeclock/internal/position"
	"timeclock/pkg/platform/httputil"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("attendance api: %d %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("attendance api: %d %s", e.Status, e.Code)
}

type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userAgent:  "timeclock-agent/1.0",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentSession returns the caller's ACTIVE session, or nil when there is
// none.
func (c *Client) CurrentSession(ctx context.Context) (*handler.SessionResponse, error) {
	var out handler.CurrentResponse
	if err := c.do(ctx, http.MethodGet, "/attendance/current", nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// RecordLocation submits one background sample. The API accepts samples it
// chooses to drop, so recorded may be false without an error.
func (c *Client) RecordLocation(ctx context.Context, sessionID string, fix position.Fix) (recorded bool, err error) {
	lat, lng := fix.Latitude, fix.Longitude
	req := handler.RecordLocationRequest{
		Coordinates: handler.Coordinates{Latitude: &lat, Longitude: &lng, Address: fix.Address},
		SessionID:   sessionID,
	}
	if !fix.At.IsZero() {
		at := fix.At.UTC()
		req.RecordedAt = &at
	}
	var out handler.RecordLocationResponse
	if err := c.do(ctx, http.MethodPost, "/attendance/location", req, &out); err != nil {
		return false, err
	}
	return out.Recorded, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload httputil.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Code = payload.Error
			apiErr.Description = payload.ErrorDescription
		} else {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
