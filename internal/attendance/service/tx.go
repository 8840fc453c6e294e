package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "timeclock/pkg/domain-errors"
	txcontext "timeclock/pkg/platform/tx"
	"timeclock/pkg/requestcontext"
)

const (
	numSessionShards = 128
	defaultTxTimeout = 5 * time.Second
)

// ShardedTx serializes a user's transitions with one of numSessionShards
// mutexes picked from the user id in ctx. It is the in-memory stand-in for a
// database transaction. When fn fails, the compensations stores registered
// through the tx package's OnRollback run before the shard is released, so a
// failed audit Emit undoes the session write it followed. Writes made by
// stores that register nothing are not undone.
type ShardedTx struct {
	shards  [numSessionShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, rollback := txcontext.WithUndo(ctx)
	if err := fn(ctx); err != nil {
		rollback()
		return err
	}
	return nil
}

// selectShard hashes the user id in ctx; calls without one share shard 0.
func (t *ShardedTx) selectShard(ctx context.Context) int {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID.String()))
	return int(h.Sum32() % numSessionShards)
}
