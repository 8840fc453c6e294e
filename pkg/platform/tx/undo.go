package tx

import (
	"context"
	"sync"
)

type undoKey struct{}

type undoLog struct {
	mu  sync.Mutex
	fns []func()
}

// WithUndo starts an undo log for stores that cannot roll back on their own.
// The returned rollback runs every compensation registered with OnRollback,
// newest first, and empties the log.
func WithUndo(ctx context.Context) (context.Context, func()) {
	log := &undoLog{}
	rollback := func() {
		log.mu.Lock()
		fns := log.fns
		log.fns = nil
		log.mu.Unlock()
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
	return context.WithValue(ctx, undoKey{}, log), rollback
}

// OnRollback registers fn with the undo log in ctx. Outside WithUndo it does
// nothing.
func OnRollback(ctx context.Context, fn func()) {
	log, ok := ctx.Value(undoKey{}).(*undoLog)
	if !ok {
		return
	}
	log.mu.Lock()
	log.fns = append(log.fns, fn)
	log.mu.Unlock()
}
