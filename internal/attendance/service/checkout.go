package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"timeclock/internal/attendance/models"
	id "timeclock/pkg/domain"
	dErrors "timeclock/pkg/domain-errors"
	"timeclock/pkg/platform/audit"
	"timeclock/pkg/platform/sentinel"
	"timeclock/pkg/requestcontext"
)

// CheckOutCommand closes the user's ACTIVE session. A zero At means the
// request time.
type CheckOutCommand struct {
	UserID   id.UserID
	At       time.Time
	Location *models.Location
	Notes    string
}

// CheckOut closes the user's ACTIVE session when the submitted location is
// within the fence radius of the check-in location. A rejected check-out
// leaves the session ACTIVE.
func (s *Service) CheckOut(ctx context.Context, cmd CheckOutCommand) (_ *models.Session, err error) {
	ctx, span := s.startSpan(ctx, "attendance.CheckOut", cmd.UserID)
	defer func() {
		if err != nil {
			s.metrics.IncRejection("check_out", string(dErrors.CodeOf(err)))
		}
		endSpan(span, err)
	}()

	if cmd.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	if err := validateLocation(cmd.Location); err != nil {
		return nil, err
	}

	session, err := s.findActive(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, dErrors.New(dErrors.CodeNoActiveSession, "no active session to check out of")
	}

	if session.CheckInLocation == nil {
		s.logger.ErrorContext(ctx, "active session has no check-in location",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", cmd.UserID.String(),
			"session_id", session.ID.String(),
		)
		s.emitSecurity(ctx, audit.SecurityEvent{
			Timestamp: requestcontext.Now(ctx),
			UserID:    cmd.UserID,
			SessionID: session.ID,
			Action:    audit.EventCheckInLocationMissing,
			Reason:    "check-in location missing",
			Severity:  audit.SeverityCritical,
		})
		return nil, dErrors.New(dErrors.CodeCheckInLocationMissing,
			"check-in location is missing for this session; contact an administrator")
	}

	meters, within := s.fence.Check(toPoint(*session.CheckInLocation), toPoint(*cmd.Location))
	if !within {
		s.emitSecurity(ctx, audit.SecurityEvent{
			Timestamp: requestcontext.Now(ctx),
			UserID:    cmd.UserID,
			SessionID: session.ID,
			Action:    audit.EventCheckOutRejected,
			Reason:    "out_of_radius",
			Severity:  audit.SeverityWarning,
		})
		return nil, dErrors.Newf(dErrors.CodeOutOfRadius,
			"you are %.0f m from your check-in location; the limit is %.0f m", meters, s.fence.RadiusMeters)
	}

	at := s.now(ctx, cmd.At)
	if !at.After(session.CheckInAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "check-out time must be after check-in time")
	}

	loc := *cmd.Location
	loc.Address = s.resolveAddress(ctx, loc)
	hours := models.HoursWorked(session.CheckInAt, at)

	var closed *models.Session
	ctx = requestcontext.WithUserID(ctx, cmd.UserID)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		closed, err = s.store.CloseIfActive(ctx, session.ID, models.CloseParams{
			At:         at,
			Location:   loc,
			Notes:      strings.TrimSpace(cmd.Notes),
			TotalHours: hours,
		})
		if err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNoActiveSession, "session is no longer active")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close session")
		}
		return s.auditor.Emit(ctx, audit.ComplianceEvent{
			Timestamp: at,
			UserID:    cmd.UserID,
			SessionID: session.ID,
			Action:    audit.EventCheckedOut,
			Decision:  "closed",
			RequestID: requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		if _, coded := asCoded(err); !coded {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to check out")
		}
		return nil, err
	}

	s.metrics.IncCheckOut(hours)
	s.logger.InfoContext(ctx, "checked out",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", cmd.UserID.String(),
		"session_id", closed.ID.String(),
		"total_hours", hours,
		"distance_m", meters,
	)
	return closed, nil
}
