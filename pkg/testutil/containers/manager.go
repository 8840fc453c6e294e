//go:build integration

// Package containers starts shared backing services for integration tests.
// Each container is started once per test binary and reused; Ryuk reaps them
// when the process exits.
package containers

import (
	"context"
	"sync"
	"testing"
)

type manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	kafka    *KafkaContainer
}

var shared manager

func Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.postgres == nil {
		shared.postgres = newPostgresContainer(context.Background(), t)
	}
	return shared.postgres
}

func Redis(t *testing.T) *RedisContainer {
	t.Helper()
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.redis == nil {
		shared.redis = newRedisContainer(context.Background(), t)
	}
	return shared.redis
}

func Kafka(t *testing.T) *KafkaContainer {
	t.Helper()
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.kafka == nil {
		shared.kafka = newKafkaContainer(context.Background(), t)
	}
	return shared.kafka
}
