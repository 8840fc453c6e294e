// Package security emits best-effort audit events for rejected or anomalous
// attendance operations. Emit never blocks and never fails the caller.
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "timeclock/pkg/platform/audit"
)

const (
	defaultFlushInterval = time.Second
	flushBatch           = 100
)

type Metrics struct {
	Emitted         prometheus.Counter
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_audit_security_emitted_total",
			Help: "Security audit events accepted for delivery",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_audit_security_dropped_total",
			Help: "Security audit events dropped because the buffer was full",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_audit_security_failures_total",
			Help: "Security audit events that failed to persist",
		}),
	}
}

type Publisher struct {
	store         audit.Store
	buf           *ringBuffer
	logger        *slog.Logger
	metrics       *Metrics
	flushInterval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) { p.buf = newRingBuffer(n) }
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buf:           newRingBuffer(0),
		logger:        slog.Default(),
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit buffers event for the background flusher.
func (p *Publisher) Emit(_ context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityWarning
	}
	dropped := p.buf.enqueue(event)
	if p.metrics != nil {
		p.metrics.Emitted.Inc()
		if dropped {
			p.metrics.Dropped.Inc()
		}
	}
}

// Start launches the flusher. Close stops it after a final drain.
func (p *Publisher) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		go p.run(ctx)
	})
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush writes everything currently buffered. Failed events are logged and
// dropped.
func (p *Publisher) Flush(ctx context.Context) int {
	written := 0
	for p.buf.len() > 0 {
		for _, event := range p.buf.dequeueBatch(flushBatch) {
			if err := p.store.Append(ctx, event.ToEvent()); err != nil {
				if p.metrics != nil {
					p.metrics.PersistFailures.Inc()
				}
				p.logger.WarnContext(ctx, "security audit write failed",
					"action", event.Action,
					"user_id", event.UserID,
					"error", err,
				)
				continue
			}
			written++
		}
	}
	return written
}

// Close stops the flusher and drains the buffer. Safe to call more than
// once, and without Start.
func (p *Publisher) Close() error {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			p.Flush(context.Background())
			return
		}
		p.cancel()
		<-p.done
	})
	return nil
}
