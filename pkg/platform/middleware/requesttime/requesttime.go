// Package requesttime pins one "now" per request so classification,
// distance checks and persisted timestamps in a request agree.
package requesttime

import (
	"net/http"
	"time"

	"timeclock/pkg/requestcontext"
)

// Middleware pins the wall clock at request start.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock pins the value returned by clock. Tests use it to drive
// handlers through fixed instants.
func MiddlewareWithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
