// Package ops writes sampled, best-effort audit events for routine
// high-volume outcomes such as location pings. Track never fails the caller.
package ops

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "timeclock/pkg/platform/audit"
	"timeclock/pkg/platform/circuit"
)

// DefaultCooldown is how long an open breaker drops events before one
// write is tried again.
const DefaultCooldown = time.Minute

type Metrics struct {
	Tracked         prometheus.Counter
	Sampled         prometheus.Counter
	BreakerDropped  prometheus.Counter
	PersistFailures prometheus.Counter
	BreakerState    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Tracked: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_audit_ops_tracked_total",
			Help: "Ops audit events written",
		}),
		Sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_audit_ops_sampled_total",
			Help: "Ops audit events skipped by sampling",
		}),
		BreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_audit_ops_breaker_dropped_total",
			Help: "Ops audit events dropped while the store breaker was open",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_audit_ops_failures_total",
			Help: "Ops audit events that failed to persist",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "timeclock_audit_ops_breaker_open",
			Help: "1 while ops audit writes are suspended",
		}),
	}
}

func (m *Metrics) incTracked() {
	if m != nil {
		m.Tracked.Inc()
	}
}

func (m *Metrics) incSampled() {
	if m != nil {
		m.Sampled.Inc()
	}
}

func (m *Metrics) incBreakerDropped() {
	if m != nil {
		m.BreakerDropped.Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) setOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}

type Publisher struct {
	store    audit.Store
	sampler  *Sampler
	breaker  *circuit.Breaker
	cooldown time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	mu        sync.Mutex
	nextTrial time.Time
}

type Option func(*Publisher)

func WithSampler(s *Sampler) Option {
	return func(p *Publisher) { p.sampler = s }
}

func WithBreaker(b *circuit.Breaker, cooldown time.Duration) Option {
	return func(p *Publisher) {
		p.breaker = b
		if cooldown > 0 {
			p.cooldown = cooldown
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:    store,
		sampler:  NewSampler(DefaultSampleRate),
		breaker:  circuit.New("audit-ops", circuit.WithSuccessThreshold(1)),
		cooldown: DefaultCooldown,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track writes event if it survives sampling and the store is healthy.
// It reports whether the event was written.
func (p *Publisher) Track(ctx context.Context, event audit.OpsEvent) bool {
	if !p.sampler.Keep(event.Action) {
		p.metrics.incSampled()
		return false
	}
	if !p.allow() {
		p.metrics.incBreakerDropped()
		return false
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	if err := p.store.Append(ctx, event.ToEvent()); err != nil {
		p.metrics.incPersistFailures()
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.openUntil(p.now().Add(p.cooldown))
			p.logger.WarnContext(ctx, "ops audit writes suspended", "error", err)
		}
		p.metrics.setOpen(p.breaker.IsOpen())
		return false
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "ops audit writes resumed")
	}
	p.metrics.setOpen(p.breaker.IsOpen())
	p.metrics.incTracked()
	return true
}

// allow lets every write through while the breaker is closed and one write
// per cooldown while it is open.
func (p *Publisher) allow() bool {
	if !p.breaker.IsOpen() {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Before(p.nextTrial) {
		return false
	}
	p.nextTrial = now.Add(p.cooldown)
	return true
}

func (p *Publisher) openUntil(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTrial = t
}
