// Package relay drains the audit outbox into a Sink (Kafka in production).
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "timeclock/pkg/platform/audit"
)

// Sink publishes a batch. It returns only after every entry is acknowledged
// or an error occurred; on error none of the batch is marked published.
type Sink interface {
	Publish(ctx context.Context, entries []audit.OutboxEntry) error
}

type Relay struct {
	outbox   audit.Outbox
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func New(outbox audit.Outbox, sink Sink, logger *slog.Logger, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{
		outbox:   outbox,
		sink:     sink,
		logger:   logger,
		interval: interval,
		batch:    batch,
		now:      time.Now,
	}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.WarnContext(ctx, "audit relay iteration failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes at most one batch and returns how many entries went out.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.Pending(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("load pending: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := r.sink.Publish(ctx, entries); err != nil {
		return 0, fmt.Errorf("publish batch: %w", err)
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}
	return len(entries), nil
}

// LogSink writes entries to the logger. Used when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, entries []audit.OutboxEntry) error {
	for _, e := range entries {
		s.Logger.InfoContext(ctx, "audit event",
			"event_type", e.EventType,
			"key", e.Key,
			"payload", string(e.Payload),
		)
	}
	return nil
}
