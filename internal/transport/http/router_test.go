package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeclock/internal/attendance/geofence"
	"timeclock/internal/attendance/handler"
	"timeclock/internal/attendance/punctuality"
	"timeclock/internal/attendance/service"
	"timeclock/internal/attendance/store"
	"timeclock/internal/jwttoken"
	"timeclock/internal/ratelimit"
	id "timeclock/pkg/domain"
	"timeclock/pkg/platform/audit/publishers/compliance"
	auditmemory "timeclock/pkg/platform/audit/store/memory"
	"timeclock/pkg/testutil"
)

func newTestRouter(t *testing.T, now time.Time, checks map[string]HealthCheck, writeLimit ...func(http.Handler) http.Handler) (http.Handler, *jwttoken.Service) {
	t.Helper()
	policy, err := punctuality.NewPolicy("10:01", "+05:45")
	require.NoError(t, err)
	svc, err := service.New(store.NewInMemory(), compliance.New(auditmemory.NewInMemoryStore()), service.Config{
		Policy: policy,
		Fence:  geofence.NewFence(500),
	})
	require.NoError(t, err)

	tokens := jwttoken.NewService("test-key", "timeclock", "attendance")
	logger := slog.New(slog.DiscardHandler)
	cfg := RouterConfig{
		Attendance: handler.New(svc, logger),
		Tokens:     tokens,
		Logger:     logger,
		Checks:     checks,
		Clock:      func() time.Time { return now },
	}
	if len(writeLimit) > 0 {
		cfg.WriteLimit = writeLimit[0]
	}
	return NewRouter(cfg), tokens
}

func TestAttendanceRoutesRequireBearerToken(t *testing.T) {
	router, _ := newTestRouter(t, time.Now(), nil)

	rr := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/attendance/current", nil))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestCheckInThroughRouter(t *testing.T) {
	// 09:45 in UTC+05:45
	now := time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC)
	router, tokens := newTestRouter(t, now, nil)
	token, err := tokens.Issue(id.UserID(uuid.New()), time.Hour)
	require.NoError(t, err)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/attendance/check-in", map[string]any{
		"work_location": "PRIMARY_SITE",
		"latitude":      27.7172,
		"longitude":     85.324,
	})
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	rr := testutil.DoRequest(router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	resp := testutil.UnmarshalResponse[handler.SessionResponse](t, rr)
	assert.Equal(t, "ACTIVE", resp.Status)
	assert.Contains(t, resp.CheckInDevice, "Firefox on Linux", "device label comes from the middleware")
	assert.False(t, resp.IsLate)
	assert.True(t, now.Equal(resp.CheckInAt), "request clock is pinned by middleware")

	cur := httptest.NewRequest(http.MethodGet, "/attendance/current", nil)
	cur.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(router, cur)
	require.Equal(t, http.StatusOK, rr.Code)
	current := testutil.UnmarshalResponse[handler.CurrentResponse](t, rr)
	require.NotNil(t, current.Session)
	assert.Equal(t, resp.ID, current.Session.ID)
}

func TestWriteLimitSkipsLocationSamples(t *testing.T) {
	now := time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 1, time.Minute, slog.New(slog.DiscardHandler))
	router, tokens := newTestRouter(t, now, nil, ratelimit.PerUser(limiter, "attendance"))
	token, err := tokens.Issue(id.UserID(uuid.New()), time.Hour)
	require.NoError(t, err)

	checkOut := func() *httptest.ResponseRecorder {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/attendance/check-out", map[string]any{
			"latitude":  27.7172,
			"longitude": 85.324,
		})
		req.Header.Set("Authorization", "Bearer "+token)
		return testutil.DoRequest(router, req)
	}

	testutil.AssertStatusAndError(t, checkOut(), http.StatusConflict, "no_active_session")
	testutil.AssertStatusAndError(t, checkOut(), http.StatusTooManyRequests, "rate_limited")

	for range 3 {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/attendance/location", map[string]any{
			"latitude":  27.7172,
			"longitude": 85.324,
		})
		req.Header.Set("Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusAccepted, testutil.DoRequest(router, req).Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router, _ := newTestRouter(t, time.Now(), map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[healthResponse](t, rr)
		assert.Equal(t, "ok", resp.Checks["database"])
	})

	t.Run("failing dependency", func(t *testing.T) {
		router, _ := newTestRouter(t, time.Now(), map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		resp := testutil.UnmarshalResponse[healthResponse](t, rr)
		assert.Equal(t, "degraded", resp.Status)
	})
}
