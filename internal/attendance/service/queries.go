package service

import (
	"context"
	"errors"

	"timeclock/internal/attendance/models"
	id "timeclock/pkg/domain"
	dErrors "timeclock/pkg/domain-errors"
	"timeclock/pkg/platform/sentinel"
)

// SessionSummary is a history row: the session and how many pings it has.
type SessionSummary struct {
	Session   *models.Session
	PingCount int
}

// CurrentSession returns the user's ACTIVE session, or nil when there is none.
func (s *Service) CurrentSession(ctx context.Context, userID id.UserID) (*models.Session, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	return s.findActive(ctx, userID)
}

// History lists the user's sessions newest first. limit is clamped to
// [1, MaxHistoryLimit]; zero means DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, userID id.UserID, limit int) ([]SessionSummary, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	sessions, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	if len(sessions) == 0 {
		return []SessionSummary{}, nil
	}

	ids := make([]id.SessionID, len(sessions))
	for i, session := range sessions {
		ids[i] = session.ID
	}
	counts, err := s.store.CountPings(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pings")
	}

	out := make([]SessionSummary, len(sessions))
	for i, session := range sessions {
		out[i] = SessionSummary{Session: session, PingCount: counts[session.ID]}
	}
	return out, nil
}

// SessionPings returns the ordered location trail of one of the user's
// sessions. Sessions of other users are reported as not found.
func (s *Service) SessionPings(ctx context.Context, userID id.UserID, sessionID id.SessionID) ([]models.LocationPing, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session ID required")
	}

	session, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if session.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}

	pings, err := s.store.ListPings(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pings")
	}
	if pings == nil {
		pings = []models.LocationPing{}
	}
	return pings, nil
}
