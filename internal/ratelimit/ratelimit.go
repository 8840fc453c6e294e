// Package ratelimit caps how often one user may change attendance state.
// Counters live in Redis when configured; while Redis is failing a circuit
// breaker routes checks to a process-local window.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"timeclock/pkg/platform/circuit"
)

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set when Allowed is false.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1.
func (r Result) RetryAfterSeconds() int {
	return max(1, int(math.Ceil(r.RetryAfter.Seconds())))
}

// Store counts requests per key in a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Limiter applies one limit per key and fails over to fallback while the
// primary store is failing.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
}

func NewLimiter(primary Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		primary:  primary,
		fallback: NewMemoryStore(),
		breaker:  circuit.New("ratelimit"),
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

// Check counts one request for key. It never fails: when both stores are
// unusable the request is allowed.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	res, err := l.primary.Allow(ctx, key, l.limit, l.window)
	if err == nil {
		usePrimary, change := l.breaker.RecordSuccess()
		if change.Closed {
			l.logger.InfoContext(ctx, "rate limit store recovered")
		}
		if usePrimary {
			return res
		}
	} else {
		useFallback, change := l.breaker.RecordFailure()
		if change.Opened {
			l.logger.WarnContext(ctx, "rate limit store failing, using in-memory fallback", "error", err)
		}
		if !useFallback {
			return l.open()
		}
	}

	res, err = l.fallback.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		return l.open()
	}
	return res
}

func (l *Limiter) open() Result {
	return Result{Allowed: true, Limit: l.limit, Remaining: l.limit}
}

// Degraded reports whether checks are served by the fallback.
func (l *Limiter) Degraded() bool {
	return l.breaker.IsOpen()
}
