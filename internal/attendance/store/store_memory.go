// Package store persists attendance sessions and their location pings.
//
// Both implementations enforce "at most one ACTIVE session per user" at the
// storage layer and make every terminal transition conditional on the row
// still being ACTIVE.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"timeclock/internal/attendance/models"
	id "timeclock/pkg/domain"
	"timeclock/pkg/platform/sentinel"
	txcontext "timeclock/pkg/platform/tx"
)

// InMemoryStore is the single-process store used in development and tests.
// Values handed in and out are copies; callers never share state with it.
// Session writes register a compensation through the tx package's OnRollback
// so an enclosing in-memory transaction can undo them.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
	active   map[id.UserID]id.SessionID
	byUser   map[id.UserID][]id.SessionID
	pings    map[id.SessionID][]models.LocationPing
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[id.SessionID]*models.Session),
		active:   make(map[id.UserID]id.SessionID),
		byUser:   make(map[id.UserID][]id.SessionID),
		pings:    make(map[id.SessionID][]models.LocationPing),
	}
}

func (s *InMemoryStore) CreateIfNoneActive(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	if session.Status == models.StatusActive {
		if _, busy := s.active[session.UserID]; busy {
			return fmt.Errorf("user %s already has an active session: %w", session.UserID, sentinel.ErrConflict)
		}
		s.active[session.UserID] = session.ID
	}
	s.sessions[session.ID] = cloneSession(session)
	s.byUser[session.UserID] = append(s.byUser[session.UserID], session.ID)

	sessionID := session.ID
	txcontext.OnRollback(ctx, func() { _ = s.Delete(context.WithoutCancel(ctx), sessionID) })
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *InMemoryStore) FindActiveByUser(_ context.Context, userID id.UserID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.active[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSession(s.sessions[sessionID]), nil
}

// CloseIfActive performs the user check-out transition.
func (s *InMemoryStore) CloseIfActive(ctx context.Context, sessionID id.SessionID, params models.CloseParams) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.activeLocked(sessionID)
	if err != nil {
		return nil, err
	}
	s.undoOnRollback(ctx, session)
	at := params.At
	hours := params.TotalHours
	loc := params.Location
	session.CheckOutAt = &at
	session.TotalHours = &hours
	session.CheckOutLocation = &loc
	session.CheckOutNotes = params.Notes
	session.Status = models.StatusClosed
	session.UpdatedAt = at
	delete(s.active, session.UserID)
	return cloneSession(session), nil
}

// AutoCloseIfActive performs the sweep transition. No check-out location is
// recorded.
func (s *InMemoryStore) AutoCloseIfActive(ctx context.Context, sessionID id.SessionID, at time.Time, totalHours float64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.activeLocked(sessionID)
	if err != nil {
		return nil, err
	}
	s.undoOnRollback(ctx, session)
	session.CheckOutAt = &at
	session.TotalHours = &totalHours
	session.CheckOutLocation = nil
	session.Status = models.StatusAutoClosed
	session.UpdatedAt = at
	delete(s.active, session.UserID)
	return cloneSession(session), nil
}

// undoOnRollback registers a restore of the ACTIVE session as it is now.
// The restore leaves the user's active slot alone if another session took it.
func (s *InMemoryStore) undoOnRollback(ctx context.Context, session *models.Session) {
	prev := cloneSession(session)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sessions[prev.ID] = prev
		if _, busy := s.active[prev.UserID]; !busy {
			s.active[prev.UserID] = prev.ID
		}
	})
}

func (s *InMemoryStore) activeLocked(sessionID id.SessionID) (*models.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if session.Status != models.StatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.Status, sentinel.ErrInvalidState)
	}
	return session, nil
}

// AppendPing adds a ping to an ACTIVE session.
func (s *InMemoryStore) AppendPing(_ context.Context, ping *models.LocationPing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeLocked(ping.SessionID); err != nil {
		return err
	}
	s.pings[ping.SessionID] = append(s.pings[ping.SessionID], *ping)
	return nil
}

// ListPings returns the session's pings ordered by RecordedAt, ties kept in
// insertion order.
func (s *InMemoryStore) ListPings(_ context.Context, sessionID id.SessionID) ([]models.LocationPing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	out := slices.Clone(s.pings[sessionID])
	slices.SortStableFunc(out, func(a, b models.LocationPing) int {
		return a.RecordedAt.Compare(b.RecordedAt)
	})
	return out, nil
}

// CountPings returns ping counts for the given sessions. Sessions without
// pings are omitted.
func (s *InMemoryStore) CountPings(_ context.Context, sessionIDs []id.SessionID) (map[id.SessionID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.SessionID]int, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		if n := len(s.pings[sessionID]); n > 0 {
			out[sessionID] = n
		}
	}
	return out, nil
}

// ListActiveOpenedBefore returns ACTIVE sessions checked in strictly before
// cutoff, oldest first.
func (s *InMemoryStore) ListActiveOpenedBefore(_ context.Context, cutoff time.Time) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sessionID := range s.active {
		session := s.sessions[sessionID]
		if session.CheckInAt.Before(cutoff) {
			out = append(out, cloneSession(session))
		}
	}
	slices.SortFunc(out, func(a, b *models.Session) int {
		return a.CheckInAt.Compare(b.CheckInAt)
	})
	return out, nil
}

// ListByUser returns the user's sessions, newest check-in first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]*models.Session, 0, len(ids))
	for _, sessionID := range ids {
		out = append(out, cloneSession(s.sessions[sessionID]))
	}
	slices.SortStableFunc(out, func(a, b *models.Session) int {
		return b.CheckInAt.Compare(a.CheckInAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a session and its pings.
func (s *InMemoryStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if s.active[session.UserID] == sessionID {
		delete(s.active, session.UserID)
	}
	s.byUser[session.UserID] = slices.DeleteFunc(s.byUser[session.UserID], func(other id.SessionID) bool {
		return other == sessionID
	})
	delete(s.pings, sessionID)
	delete(s.sessions, sessionID)
	return nil
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.CheckOutAt != nil {
		t := *s.CheckOutAt
		c.CheckOutAt = &t
	}
	if s.TotalHours != nil {
		h := *s.TotalHours
		c.TotalHours = &h
	}
	if s.LateMinutes != nil {
		m := *s.LateMinutes
		c.LateMinutes = &m
	}
	if s.CheckInLocation != nil {
		l := *s.CheckInLocation
		c.CheckInLocation = &l
	}
	if s.CheckOutLocation != nil {
		l := *s.CheckOutLocation
		c.CheckOutLocation = &l
	}
	return &c
}
