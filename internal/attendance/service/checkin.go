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

// CheckInCommand opens a session. A zero At means the request time.
type CheckInCommand struct {
	UserID       id.UserID
	At           time.Time
	Location     *models.Location
	WorkLocation id.WorkLocation
	Notes        string
	LateReason   string
	Device       string
}

// CheckIn opens an ACTIVE session for the user.
//
// Checks run in this order: location present, work location valid, no
// session already ACTIVE, then punctuality. A late check-in needs a
// non-blank reason.
func (s *Service) CheckIn(ctx context.Context, cmd CheckInCommand) (_ *models.Session, err error) {
	ctx, span := s.startSpan(ctx, "attendance.CheckIn", cmd.UserID)
	defer func() {
		if err != nil {
			s.metrics.IncRejection("check_in", string(dErrors.CodeOf(err)))
		}
		endSpan(span, err)
	}()

	if cmd.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	if err := validateLocation(cmd.Location); err != nil {
		return nil, err
	}
	if !cmd.WorkLocation.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "work location must be PRIMARY_SITE or FIELD_SITE")
	}

	existing, err := s.findActive(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, dErrors.New(dErrors.CodeSessionAlreadyActive, "you already have an active session")
	}

	at := s.now(ctx, cmd.At)
	result := s.policy.Classify(at)
	lateReason := strings.TrimSpace(cmd.LateReason)
	if result.Late && lateReason == "" {
		return nil, dErrors.Newf(dErrors.CodeLateJustificationRequired,
			"checked in %d minutes after %s; a reason is required", result.LateMinutes, s.policy.Cutoff())
	}

	loc := *cmd.Location
	loc.Address = s.resolveAddress(ctx, loc)

	session := &models.Session{
		ID:              id.NewSessionID(),
		UserID:          cmd.UserID,
		CheckInAt:       at,
		CheckInLocation: &loc,
		WorkLocation:    cmd.WorkLocation,
		IsLate:          result.Late,
		CheckInNotes:    strings.TrimSpace(cmd.Notes),
		CheckInDevice:   cmd.Device,
		Status:          models.StatusActive,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	if result.Late {
		minutes := result.LateMinutes
		session.LateMinutes = &minutes
		session.LateReason = lateReason
	}

	decision := "on_time"
	if result.Late {
		decision = "late"
	}

	ctx = requestcontext.WithUserID(ctx, cmd.UserID)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateIfNoneActive(ctx, session); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeSessionAlreadyActive, "you already have an active session")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
		}
		return s.auditor.Emit(ctx, audit.ComplianceEvent{
			Timestamp: at,
			UserID:    cmd.UserID,
			SessionID: session.ID,
			Action:    audit.EventCheckedIn,
			Decision:  decision,
			RequestID: requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		if _, coded := asCoded(err); !coded {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to check in")
		}
		return nil, err
	}

	s.metrics.IncCheckIn(result.Late, result.LateMinutes)
	s.logger.InfoContext(ctx, "checked in",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", cmd.UserID.String(),
		"session_id", session.ID.String(),
		"work_location", cmd.WorkLocation.String(),
		"late", result.Late,
	)
	return session, nil
}

func asCoded(err error) (*dErrors.Error, bool) {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
