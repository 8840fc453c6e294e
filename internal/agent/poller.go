package agent

import (
	"context"
	"log/slog"
	"time"

	"timeclock/internal/attendance/handler"
	"timeclock/internal/attendance/models"
)

const DefaultPollInterval = 30 * time.Second

// StatusSource reports the user's ACTIVE session, nil when there is none.
type StatusSource interface {
	CurrentSession(ctx context.Context) (*handler.SessionResponse, error)
}

// Poller keeps State in step with the server.
type Poller struct {
	source   StatusSource
	state    *State
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

func NewPoller(source StatusSource, state *State, interval time.Duration, logger *slog.Logger, m *Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, state: state, interval: interval, logger: logger, metrics: m}
}

// Run polls immediately and then every interval until ctx is done. A failed
// poll leaves State unchanged.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
		p.logger.WarnContext(ctx, "session poll failed", "error", err)
	}
}

// Poll refreshes State once.
func (p *Poller) Poll(ctx context.Context) error {
	session, err := p.source.CurrentSession(ctx)
	if err != nil {
		p.metrics.incPoll("error")
		return err
	}
	p.metrics.incPoll("ok")

	snap := Snapshot{Known: true}
	if session != nil && session.Status == models.StatusActive.String() {
		snap.SessionID = session.ID
		snap.Active = true
		snap.CheckInAt = session.CheckInAt
	}
	if p.state.Set(snap) {
		p.logger.InfoContext(ctx, "session state changed",
			"active", snap.Active,
			"session_id", snap.SessionID,
		)
	}
	return nil
}
