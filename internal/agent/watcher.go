package agent

import (
	"context"
	"log/slog"
)

// Watcher owns the sampler lifecycle: one running sampler per ACTIVE
// session, none otherwise.
type Watcher struct {
	state   *State
	sampler *Sampler
	logger  *slog.Logger

	handle *Handle
}

func NewWatcher(state *State, sampler *Sampler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{state: state, sampler: sampler, logger: logger}
}

// Run reacts to State changes until ctx is done, then stops any running
// sampler before returning ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	updates, unsubscribe := w.state.Subscribe()
	defer unsubscribe()
	defer w.stop(ctx)

	for {
		select {
		case snap := <-updates:
			w.apply(ctx, snap)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) apply(ctx context.Context, snap Snapshot) {
	if !snap.Active {
		w.stop(ctx)
		return
	}
	if w.handle != nil && w.handle.SessionID() == snap.SessionID {
		return
	}
	w.stop(ctx)
	w.handle = w.sampler.ForSession(snap.SessionID).Start(ctx)
	w.logger.InfoContext(ctx, "location sampling started", "session_id", snap.SessionID)
}

func (w *Watcher) stop(ctx context.Context) {
	if w.handle == nil {
		return
	}
	w.handle.Stop()
	w.logger.InfoContext(ctx, "location sampling stopped", "session_id", w.handle.SessionID())
	w.handle = nil
}
