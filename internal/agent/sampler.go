package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"timeclock/internal/position"
	dErrors "timeclock/pkg/domain-errors"
)

const (
	DefaultSampleInterval = 5 * time.Minute
	DefaultAcquireTimeout = 10 * time.Second
)

// Recorder submits a sample to the attendance API.
type Recorder interface {
	RecordLocation(ctx context.Context, sessionID string, fix position.Fix) (bool, error)
}

// Sampler takes a position sample immediately and then every interval, and
// submits each one. Every failure is logged and the sample skipped.
type Sampler struct {
	provider       position.Provider
	recorder       Recorder
	sessionID      string
	interval       time.Duration
	acquireTimeout time.Duration
	logger         *slog.Logger
	metrics        *Metrics
}

type SamplerOption func(*Sampler)

func WithSampleInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithAcquireTimeout(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.acquireTimeout = d
		}
	}
}

func WithSamplerLogger(logger *slog.Logger) SamplerOption {
	return func(s *Sampler) { s.logger = logger }
}

func WithSamplerMetrics(m *Metrics) SamplerOption {
	return func(s *Sampler) { s.metrics = m }
}

func NewSampler(provider position.Provider, recorder Recorder, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		provider:       provider,
		recorder:       recorder,
		interval:       DefaultSampleInterval,
		acquireTimeout: DefaultAcquireTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForSession returns a copy of s that tags samples with sessionID.
func (s *Sampler) ForSession(sessionID string) *Sampler {
	cp := *s
	cp.sessionID = sessionID
	return &cp
}

// Handle controls a running sampler.
type Handle struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

// Stop cancels the sampler and waits for it to exit. A sample already being
// submitted may finish; no new one starts. Stop is idempotent.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the sampler goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) SessionID() string { return h.sessionID }

// Start launches the sampling loop. It runs until ctx is done or Stop is
// called.
func (s *Sampler) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{sessionID: s.sessionID, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		s.metrics.setSampling(true)
		defer s.metrics.setSampling(false)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sample(ctx)
		for {
			select {
			case <-ticker.C:
				s.sample(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return h
}

func (s *Sampler) sample(ctx context.Context) {
	fix, err := position.WithTimeout(s.provider, s.acquireTimeout).Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.incSample("acquire_failed")
		err = position.Unavailable(err)
		level := slog.LevelWarn
		if errors.Is(err, position.ErrUnavailable) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "location sample skipped",
			"session_id", s.sessionID,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return
	}
	if ctx.Err() != nil {
		return
	}

	recorded, err := s.recorder.RecordLocation(ctx, s.sessionID, fix)
	if err != nil {
		s.metrics.incSample("submit_failed")
		s.logger.WarnContext(ctx, "location sample not submitted",
			"session_id", s.sessionID,
			"error", err,
		)
		return
	}
	if !recorded {
		s.metrics.incSample("dropped")
		s.logger.DebugContext(ctx, "location sample dropped by server", "session_id", s.sessionID)
		return
	}
	s.metrics.incSample("recorded")
}
