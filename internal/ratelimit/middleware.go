package ratelimit

import (
	"net/http"
	"strconv"

	dErrors "timeclock/pkg/domain-errors"
	"timeclock/pkg/platform/httputil"
	"timeclock/pkg/requestcontext"
)

// PerUser limits authenticated requests by user id. It must run after the
// auth middleware; requests without a user pass through.
func PerUser(limiter *Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := requestcontext.UserID(ctx)
			if userID.IsNil() {
				next.ServeHTTP(w, r)
				return
			}

			res := limiter.Check(ctx, scope+":"+userID.String())
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if limiter.Degraded() {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}

			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many attendance changes, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
