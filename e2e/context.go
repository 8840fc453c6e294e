// Package e2e drives the HTTP API through Gherkin feature files. The full
// stack runs in-process with a controllable clock.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"timeclock/internal/attendance/autoclose"
	"timeclock/internal/attendance/geofence"
	"timeclock/internal/attendance/handler"
	"timeclock/internal/attendance/punctuality"
	"timeclock/internal/attendance/service"
	"timeclock/internal/attendance/store"
	"timeclock/internal/jwttoken"
	httptransport "timeclock/internal/transport/http"
	id "timeclock/pkg/domain"
	"timeclock/pkg/platform/audit/publishers/compliance"
	auditmemory "timeclock/pkg/platform/audit/store/memory"
)

// Office policy used by every scenario: 10:01 cutoff at UTC+05:45, 500 m
// check-out radius, 16 h maximum open duration.
const (
	cutoff       = "10:01"
	zone         = "+05:45"
	radiusMeters = 500
)

var localZone = time.FixedZone("UTC+05:45", 5*3600+45*60)

// TestContext holds one scenario's server, clock and last response.
type TestContext struct {
	mu    sync.Mutex
	now   time.Time
	users map[string]id.UserID

	server  *httptest.Server
	tokens  *jwttoken.Service
	sweeper *autoclose.Sweeper
	token   string

	lastStatus int
	lastBody   []byte
	lastSweep  autoclose.Result
}

func NewTestContext() (*TestContext, error) {
	tc := &TestContext{
		now:    time.Now(),
		users:  make(map[string]id.UserID),
		tokens: jwttoken.NewService("e2e-signing-key", "timeclock", "attendance"),
	}

	policy, err := punctuality.NewPolicy(cutoff, zone)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.DiscardHandler)
	svc, err := service.New(store.NewInMemory(), compliance.New(auditmemory.NewInMemoryStore()), service.Config{
		Policy: policy,
		Fence:  geofence.NewFence(radiusMeters),
	}, service.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	tc.sweeper = autoclose.New(svc, autoclose.WithLogger(logger))
	tc.server = httptest.NewServer(httptransport.NewRouter(httptransport.RouterConfig{
		Attendance: handler.New(svc, logger),
		Tokens:     tc.tokens,
		Logger:     logger,
		Clock:      tc.Now,
	}))
	return tc, nil
}

func (tc *TestContext) Close() {
	tc.server.Close()
}

func (tc *TestContext) Now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.now
}

// SetLocalTime parses "2006-01-02 15:04" in the office zone.
func (tc *TestContext) SetLocalTime(value string) error {
	t, err := time.ParseInLocation("2006-01-02 15:04", value, localZone)
	if err != nil {
		return fmt.Errorf("bad local time %q: %w", value, err)
	}
	tc.mu.Lock()
	tc.now = t
	tc.mu.Unlock()
	return nil
}

func (tc *TestContext) AuthenticateAs(name string) error {
	userID, ok := tc.users[name]
	if !ok {
		userID = id.UserID(uuid.New())
		tc.users[name] = userID
	}
	token, err := tc.tokens.Issue(userID, 24*time.Hour)
	if err != nil {
		return err
	}
	// Tokens are validated against the real clock, not the scenario clock.
	tc.token = token
	return nil
}

func (tc *TestContext) ClearToken() { tc.token = "" }

func (tc *TestContext) POST(path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(raw))
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.server.URL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}
	resp, err := tc.server.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) StatusCode() int { return tc.lastStatus }

func (tc *TestContext) Body() string { return string(tc.lastBody) }

// ResponseField walks a dotted path such as "sessions.0.status" through the
// last JSON response.
func (tc *TestContext) ResponseField(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %s", tc.lastBody)
	}
	cur := doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q missing in %s", path, tc.lastBody)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %s", part, path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %q of %s", part, path)
		}
	}
	return cur, nil
}

// RunSweep runs one auto-close pass at the scenario clock.
func (tc *TestContext) RunSweep() error {
	res, err := tc.sweeper.SweepOnce(context.Background(), tc.Now())
	tc.lastSweep = res
	return err
}

func (tc *TestContext) LastSweepClosed() int { return tc.lastSweep.Closed }
