package geocode

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"timeclock/pkg/platform/circuit"
)

// Reverser is the upstream lookup.
type Reverser interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

const (
	DefaultCacheTTL      = 24 * time.Hour
	DefaultRetryInterval = 30 * time.Second
)

// Resolver fronts a Reverser with a cache, request coalescing and a circuit
// breaker. While the breaker is open, lookups fail fast except for one trial
// per retry interval.
type Resolver struct {
	upstream Reverser
	cache    Cache
	ttl      time.Duration
	breaker  *circuit.Breaker
	group    singleflight.Group
	logger   *slog.Logger

	retryInterval time.Duration
	now           func() time.Time
	mu            sync.Mutex
	lastRetry     time.Time
}

type Option func(*Resolver)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Resolver) { r.breaker = b }
}

func WithRetryInterval(d time.Duration) Option {
	return func(r *Resolver) { r.retryInterval = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(upstream Reverser, opts ...Option) *Resolver {
	r := &Resolver{
		upstream:      upstream,
		ttl:           DefaultCacheTTL,
		breaker:       circuit.New("geocode"),
		logger:        slog.Default(),
		retryInterval: DefaultRetryInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	key := cacheKey(lat, lng)
	if r.cache != nil {
		addr, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.DebugContext(ctx, "geocode cache read failed", "error", err)
		} else if ok {
			return addr, nil
		}
	}

	if !r.allowCall() {
		return "", ErrUnavailable
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		// Coalesced callers share one upstream request, so it must not be
		// cancelled by whichever caller happened to start it.
		callCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithDeadline(callCtx, deadline)
			defer cancel()
		}
		addr, err := r.upstream.Reverse(callCtx, lat, lng)
		r.record(ctx, err)
		if err != nil {
			return "", err
		}
		if r.cache != nil {
			if err := r.cache.Set(callCtx, key, addr, r.ttl); err != nil {
				r.logger.DebugContext(ctx, "geocode cache write failed", "error", err)
			}
		}
		return addr, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) allowCall() bool {
	if !r.breaker.IsOpen() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastRetry) < r.retryInterval {
		return false
	}
	r.lastRetry = now
	return true
}

// record feeds the breaker. A coordinate with no address is a healthy
// upstream and counts as a success.
func (r *Resolver) record(ctx context.Context, err error) {
	if err == nil || errors.Is(err, ErrNoResult) {
		if _, change := r.breaker.RecordSuccess(); change.Closed {
			r.logger.InfoContext(ctx, "geocoder recovered", "breaker", r.breaker.Name())
		}
		return
	}
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.mu.Lock()
		r.lastRetry = r.now()
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "geocoder failing, opening circuit", "breaker", r.breaker.Name(), "error", err)
	}
}
