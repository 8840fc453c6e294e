package security

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "timeclock/pkg/domain"
	audit "timeclock/pkg/platform/audit"
	"timeclock/pkg/platform/audit/store/memory"
)

func TestRingBufferDropsOldest(t *testing.T) {
	buf := newRingBuffer(2)
	assert.False(t, buf.enqueue(audit.SecurityEvent{Reason: "a"}))
	assert.False(t, buf.enqueue(audit.SecurityEvent{Reason: "b"}))
	assert.True(t, buf.enqueue(audit.SecurityEvent{Reason: "c"}))

	got := buf.dequeueBatch(10)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Reason)
	assert.Equal(t, "c", got[1].Reason)
	assert.Equal(t, 0, buf.len())
	assert.Nil(t, buf.dequeueBatch(1))
}

func TestPublisherCloseDrains(t *testing.T) {
	store := memory.NewInMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(store, WithMetrics(metrics), WithBufferSize(16), WithFlushInterval(time.Hour))
	pub.Start(context.Background())

	userID := id.UserID(uuid.New())
	for range 3 {
		pub.Emit(context.Background(), audit.SecurityEvent{
			UserID: userID,
			Action: audit.EventCheckOutRejected,
			Reason: "out_of_radius",
		})
	}
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	events, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Emitted))
}

func TestPublisherCloseWithoutStart(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store)
	userID := id.UserID(uuid.New())
	pub.Emit(context.Background(), audit.SecurityEvent{UserID: userID, Action: audit.EventCheckInLocationMissing})

	require.NoError(t, pub.Close())
	events, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
