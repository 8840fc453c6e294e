// Package httptransport assembles the public HTTP surface: shared
// middleware, health and metrics endpoints, and the authenticated
// attendance routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"timeclock/internal/attendance/handler"
	"timeclock/internal/device"
	"timeclock/pkg/platform/httputil"
	authmw "timeclock/pkg/platform/middleware/auth"
	devicemw "timeclock/pkg/platform/middleware/device"
	"timeclock/pkg/platform/middleware/metadata"
	"timeclock/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Attendance *handler.Handler
	Tokens     authmw.TokenValidator
	Logger     *slog.Logger
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Checks  map[string]HealthCheck
	// WriteLimit wraps check-in and check-out when set.
	WriteLimit func(http.Handler) http.Handler
	// Clock pins the request instant. Defaults to time.Now.
	Clock func() time.Time
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires all public endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := chi.NewRouter()
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)
	r.Use(requesttime.MiddlewareWithClock(clock))

	r.Get("/healthz", healthHandler(cfg.Checks))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.Tokens, cfg.Logger))
		r.Use(devicemw.Middleware(device.ParseUserAgent))
		if cfg.WriteLimit != nil {
			cfg.Attendance.Register(r, cfg.WriteLimit)
			return
		}
		cfg.Attendance.Register(r)
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
