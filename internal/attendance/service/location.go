package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"timeclock/internal/attendance/models"
	id "timeclock/pkg/domain"
	"timeclock/pkg/platform/audit"
	"timeclock/pkg/platform/sentinel"
	"timeclock/pkg/requestcontext"
)

// RecordLocationCommand is one background position sample. SessionID is
// optional; when set it must be the user's ACTIVE session. A zero At means
// the request time.
type RecordLocationCommand struct {
	UserID    id.UserID
	SessionID id.SessionID
	At        time.Time
	Location  *models.Location
}

// Ping drop reasons, used as metric labels.
const (
	dropUnauthenticated = "unauthenticated"
	dropInvalidLocation = "invalid_location"
	dropNoSession       = "no_active_session"
	dropForeignSession  = "foreign_session"
	dropBeforeCheckIn   = "before_check_in"
	dropClosed          = "session_closed"
	dropStoreError      = "store_error"
	dropPanic           = "panic"
)

// RecordLocation appends a ping to the user's ACTIVE session. It never
// returns an error: every failure is logged, counted and swallowed so a
// sampler is never interrupted. The result reports whether a ping was stored.
func (s *Service) RecordLocation(ctx context.Context, cmd RecordLocationCommand) (recorded bool) {
	ctx, span := s.startSpan(ctx, "attendance.RecordLocation", cmd.UserID)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			s.dropPing(ctx, cmd, dropPanic, fmt.Errorf("panic: %v", r))
			recorded = false
		}
	}()

	if cmd.UserID.IsNil() {
		s.dropPing(ctx, cmd, dropUnauthenticated, nil)
		return false
	}
	if err := validateLocation(cmd.Location); err != nil {
		s.dropPing(ctx, cmd, dropInvalidLocation, err)
		return false
	}

	session, reason, err := s.pingTarget(ctx, cmd)
	if reason != "" {
		s.dropPing(ctx, cmd, reason, err)
		return false
	}

	at := s.now(ctx, cmd.At)
	if at.Before(session.CheckInAt) {
		s.dropPing(ctx, cmd, dropBeforeCheckIn, nil)
		return false
	}

	loc := *cmd.Location
	ping := &models.LocationPing{
		ID:         id.NewPingID(),
		SessionID:  session.ID,
		RecordedAt: at,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Address:    s.resolveAddress(ctx, loc),
	}
	if err := s.store.AppendPing(ctx, ping); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrNotFound) {
			s.dropPing(ctx, cmd, dropClosed, err)
			return false
		}
		s.dropPing(ctx, cmd, dropStoreError, err)
		return false
	}

	s.metrics.IncPingRecorded()
	s.trackPing(ctx, audit.OpsEvent{
		Timestamp: at,
		UserID:    cmd.UserID,
		SessionID: session.ID,
		Action:    audit.EventLocationRecorded,
	})
	s.logger.DebugContext(ctx, "location recorded",
		"user_id", cmd.UserID.String(),
		"session_id", session.ID.String(),
	)
	return true
}

// pingTarget picks the session a ping belongs to. A non-empty reason means
// the ping is dropped.
func (s *Service) pingTarget(ctx context.Context, cmd RecordLocationCommand) (*models.Session, string, error) {
	if cmd.SessionID.IsNil() {
		session, err := s.store.FindActiveByUser(ctx, cmd.UserID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dropNoSession, nil
		case err != nil:
			return nil, dropStoreError, err
		}
		return session, "", nil
	}

	session, err := s.store.FindByID(ctx, cmd.SessionID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dropNoSession, nil
	case err != nil:
		return nil, dropStoreError, err
	case session.UserID != cmd.UserID:
		return nil, dropForeignSession, nil
	case !session.IsActive():
		return nil, dropClosed, nil
	}
	return session, "", nil
}

func (s *Service) dropPing(ctx context.Context, cmd RecordLocationCommand, reason string, err error) {
	s.metrics.IncPingDropped(reason)
	s.trackPing(ctx, audit.OpsEvent{
		UserID:    cmd.UserID,
		SessionID: cmd.SessionID,
		Action:    audit.EventLocationDropped,
		Reason:    reason,
	})
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", cmd.UserID.String(),
		"reason", reason,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	if reason == dropStoreError || reason == dropPanic {
		s.logger.WarnContext(ctx, "location ping dropped", attrs...)
		return
	}
	s.logger.DebugContext(ctx, "location ping dropped", attrs...)
}

func (s *Service) trackPing(ctx context.Context, event audit.OpsEvent) {
	if s.ops == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.ops.Track(ctx, event)
}
