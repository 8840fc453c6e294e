package service

import (
	"context"
	"errors"
	"time"

	"timeclock/internal/attendance/models"
	id "timeclock/pkg/domain"
	dErrors "timeclock/pkg/domain-errors"
	"timeclock/pkg/platform/audit"
	"timeclock/pkg/platform/sentinel"
	"timeclock/pkg/requestcontext"
)

// AutoCloseOutcome says what AutoClose did with one session.
type AutoCloseOutcome int

const (
	AutoClosed AutoCloseOutcome = iota
	SkippedNotActive
	SkippedTooRecent
	SkippedMissing
)

func (o AutoCloseOutcome) String() string {
	switch o {
	case AutoClosed:
		return "closed"
	case SkippedNotActive:
		return "skipped_not_active"
	case SkippedTooRecent:
		return "skipped_too_recent"
	case SkippedMissing:
		return "skipped_missing"
	default:
		return "unknown"
	}
}

// AutoClose force-closes a session that has been ACTIVE for longer than the
// configured maximum. It records no check-out location. A session that is
// gone, no longer ACTIVE, or not old enough is left alone; losing a race
// with a user check-out counts as SkippedNotActive.
func (s *Service) AutoClose(ctx context.Context, sessionID id.SessionID, at time.Time) (_ AutoCloseOutcome, _ *models.Session, err error) {
	ctx, span := s.tracer.Start(ctx, "attendance.AutoClose")
	defer func() { endSpan(span, err) }()

	session, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return SkippedMissing, nil, nil
		}
		return 0, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if !session.IsActive() {
		return SkippedNotActive, session, nil
	}
	if !session.OpenLongerThan(s.maxOpenDuration, at) {
		return SkippedTooRecent, session, nil
	}

	hours := models.HoursWorked(session.CheckInAt, at)
	var closed *models.Session
	ctx = requestcontext.WithUserID(ctx, session.UserID)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		closed, err = s.store.AutoCloseIfActive(ctx, sessionID, at, hours)
		if err != nil {
			return err
		}
		return s.auditor.Emit(ctx, audit.ComplianceEvent{
			Timestamp: at,
			UserID:    session.UserID,
			SessionID: sessionID,
			Action:    audit.EventAutoClosed,
			Decision:  "auto_closed",
		})
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrNotFound) {
			return SkippedNotActive, nil, nil
		}
		return 0, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to auto-close session")
	}

	s.metrics.IncAutoClose(hours)
	s.logger.InfoContext(ctx, "session auto-closed",
		"user_id", session.UserID.String(),
		"session_id", sessionID.String(),
		"total_hours", hours,
	)
	return AutoClosed, closed, nil
}

// StaleSessions lists ACTIVE sessions that are past the auto-close age at
// instant at.
func (s *Service) StaleSessions(ctx context.Context, at time.Time) ([]*models.Session, error) {
	sessions, err := s.store.ListActiveOpenedBefore(ctx, at.Add(-s.maxOpenDuration))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list stale sessions")
	}
	return sessions, nil
}
