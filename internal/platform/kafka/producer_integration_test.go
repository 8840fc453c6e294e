//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "timeclock/pkg/platform/audit"
	"timeclock/pkg/testutil/containers"
)

func TestProducerPublish(t *testing.T) {
	kc := containers.Kafka(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "attendance.audit.test"
	p, err := NewProducer([]string{kc.Broker}, topic)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.EnsureTopic(ctx, 1, 1))
	require.NoError(t, p.EnsureTopic(ctx, 1, 1), "second call is a no-op")

	entry := audit.OutboxEntry{
		ID:        uuid.New(),
		Key:       uuid.NewString(),
		EventType: string(audit.EventCheckedIn),
		Payload:   []byte(`{"action":"attendance_checked_in"}`),
		CreatedAt: time.Now(),
	}
	require.NoError(t, p.Publish(ctx, []audit.OutboxEntry{entry}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(kc.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)
	assert.Equal(t, entry.Key, string(records[0].Key))
	assert.JSONEq(t, string(entry.Payload), string(records[0].Value))
}
