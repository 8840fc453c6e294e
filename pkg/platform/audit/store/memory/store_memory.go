package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	id "timeclock/pkg/domain"
	audit "timeclock/pkg/platform/audit"
)

// InMemoryStore keeps events and an outbox queue in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    map[id.UserID][]audit.Event
	outbox    []audit.OutboxEntry
	published map[uuid.UUID]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:    make(map[id.UserID][]audit.Event),
		published: make(map[uuid.UUID]time.Time),
	}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.UserID] = append(s.events[event.UserID], event)
	s.outbox = append(s.outbox, audit.OutboxEntry{
		ID:        event.ID,
		Key:       event.UserID.String(),
		EventType: event.Action,
		Payload:   payload,
		CreatedAt: event.Timestamp,
	})
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}

func (s *InMemoryStore) Pending(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.OutboxEntry
	for _, e := range s.outbox {
		if _, done := s.published[e.ID]; done {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eventID := range ids {
		s.published[eventID] = at
	}
	// compact once everything queued so far is out
	if len(s.published) == len(s.outbox) {
		s.outbox = nil
		s.published = make(map[uuid.UUID]time.Time)
	}
	return nil
}
