// Package autoclose periodically force-closes sessions left ACTIVE for longer
// than the configured maximum.
package autoclose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timeclock/internal/attendance/metrics"
	"timeclock/internal/attendance/models"
	"timeclock/internal/attendance/service"
	id "timeclock/pkg/domain"
)

const DefaultInterval = 5 * time.Minute

// Closer is the engine surface the sweep drives.
type Closer interface {
	StaleSessions(ctx context.Context, at time.Time) ([]*models.Session, error)
	AutoClose(ctx context.Context, sessionID id.SessionID, at time.Time) (service.AutoCloseOutcome, *models.Session, error)
}

// Lease grants one replica the right to sweep for ttl.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
}

// Result counts what one sweep did.
type Result struct {
	Scanned int
	Closed  int
	Skipped int
	Failed  int
}

type Sweeper struct {
	closer   Closer
	lease    Lease
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Sweeper)

func WithLease(l Lease) Option {
	return func(s *Sweeper) { s.lease = l }
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func New(closer Closer, opts ...Option) *Sweeper {
	s := &Sweeper{
		closer:   closer,
		interval: DefaultInterval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then every interval until ctx is done.
// Per-tick failures are logged; Run only returns ctx.Err().
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.lease != nil {
		// The lease expires just before the next tick so a crashed holder
		// costs at most one round.
		ok, err := s.lease.Acquire(ctx, s.interval-time.Second)
		if err != nil {
			s.logger.WarnContext(ctx, "auto-close lease unavailable", "error", err)
			return
		}
		if !ok {
			s.logger.DebugContext(ctx, "auto-close lease held elsewhere")
			return
		}
	}

	res, err := s.SweepOnce(ctx, s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "auto-close sweep finished with failures",
			"scanned", res.Scanned,
			"closed", res.Closed,
			"failed", res.Failed,
			"error", err,
		)
		return
	}
	if res.Scanned > 0 {
		s.logger.InfoContext(ctx, "auto-close sweep finished",
			"scanned", res.Scanned,
			"closed", res.Closed,
			"skipped", res.Skipped,
		)
	}
}

// SweepOnce auto-closes every session that is stale at instant at. One
// failing session does not stop the others; their errors are joined.
func (s *Sweeper) SweepOnce(ctx context.Context, at time.Time) (Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start).Seconds()) }()

	var res Result
	stale, err := s.closer.StaleSessions(ctx, at)
	if err != nil {
		return res, fmt.Errorf("list stale sessions: %w", err)
	}
	res.Scanned = len(stale)

	var errs []error
	for _, session := range stale {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome, _, err := s.closer.AutoClose(ctx, session.ID, at)
		if err != nil {
			res.Failed++
			s.metrics.IncSweepOutcome("failed")
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID, err))
			continue
		}
		s.metrics.IncSweepOutcome(outcome.String())
		if outcome == service.AutoClosed {
			res.Closed++
		} else {
			res.Skipped++
		}
	}
	return res, errors.Join(errs...)
}
