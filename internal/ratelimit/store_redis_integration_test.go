//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeclock/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	rc := containers.Redis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := NewRedisStore(rc.Client)

	for i := range 3 {
		res, err := store.Allow(ctx, "alice", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := store.Allow(ctx, "alice", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// The rejected request was rolled back.
	n, err := rc.Client.ZCard(ctx, keyPrefix+"alice").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	ttl, err := rc.Client.PTTL(ctx, keyPrefix+"alice").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}
