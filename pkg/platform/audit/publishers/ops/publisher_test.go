package ops

import (
	"context"
	"errors"
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
	"timeclock/pkg/platform/circuit"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Append(context.Context, audit.Event) error {
	f.calls++
	return f.err
}

func TestSampler(t *testing.T) {
	s := NewSampler(0.5)
	s.roll = func() float64 { return 0.49 }
	assert.True(t, s.Keep(audit.EventLocationRecorded))

	s.roll = func() float64 { return 0.5 }
	assert.False(t, s.Keep(audit.EventLocationRecorded))

	s.SetRate(audit.EventLocationDropped, 7)
	assert.True(t, s.Keep(audit.EventLocationDropped), "rates clamp to 1")

	assert.False(t, NewSampler(-1).Keep(audit.EventLocationRecorded), "rates clamp to 0")
}

func TestTrackWritesOpsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(store, WithSampler(NewSampler(1)), WithMetrics(metrics))

	userID := id.UserID(uuid.New())
	sessionID := id.NewSessionID()
	require.True(t, pub.Track(context.Background(), audit.OpsEvent{
		UserID:    userID,
		SessionID: sessionID,
		Action:    audit.EventLocationDropped,
		Reason:    "session_closed",
	}))

	events, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryOps, events[0].Category)
	assert.Equal(t, "location_dropped", events[0].Action)
	assert.Equal(t, sessionID.String(), events[0].SessionID)
	assert.Equal(t, "session_closed", events[0].Reason)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Tracked))
}

func TestTrackSkipsSampledOut(t *testing.T) {
	store := &flakyStore{}
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(store, WithSampler(NewSampler(0)), WithMetrics(metrics))

	assert.False(t, pub.Track(context.Background(), audit.OpsEvent{Action: audit.EventLocationRecorded}))
	assert.Zero(t, store.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Sampled))
}

func TestTrackSuspendsWritesWhileStoreFails(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := &flakyStore{err: errors.New("connection refused")}
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(store,
		WithSampler(NewSampler(1)),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1)), time.Minute),
		WithMetrics(metrics),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	ev := audit.OpsEvent{Action: audit.EventLocationRecorded}

	assert.False(t, pub.Track(ctx, ev))
	assert.False(t, pub.Track(ctx, ev))
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerState))

	// Open: nothing reaches the store until the cooldown passes.
	assert.False(t, pub.Track(ctx, ev))
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerDropped))

	now = now.Add(time.Minute)
	store.err = nil
	assert.True(t, pub.Track(ctx, ev))
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.BreakerState))

	assert.True(t, pub.Track(ctx, ev))
	assert.Equal(t, 4, store.calls)
}
