// Package audit records attendance transitions and integrity faults.
//
// Compliance events (every session transition) are written fail-closed into
// an outbox in the same transaction as the transition. Security events
// (rejected check-outs, corrupted sessions) are best-effort and buffered.
// Ops events (location ping outcomes) are sampled and may be dropped.
// A relay drains the outbox to Kafka.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "timeclock/pkg/domain"
)

type EventCategory string

const (
	CategoryCompliance EventCategory = "compliance"
	CategorySecurity   EventCategory = "security"
	CategoryOps        EventCategory = "ops"
)

type AuditEvent string

const (
	EventCheckedIn  AuditEvent = "attendance_checked_in"
	EventCheckedOut AuditEvent = "attendance_checked_out"
	EventAutoClosed AuditEvent = "attendance_auto_closed"

	EventCheckOutRejected       AuditEvent = "attendance_checkout_rejected"
	EventCheckInLocationMissing AuditEvent = "attendance_checkin_location_missing"

	EventLocationRecorded AuditEvent = "location_recorded"
	EventLocationDropped  AuditEvent = "location_dropped"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCheckedIn:  CategoryCompliance,
	EventCheckedOut: CategoryCompliance,
	EventAutoClosed: CategoryCompliance,

	EventCheckOutRejected:       CategorySecurity,
	EventCheckInLocationMissing: CategorySecurity,

	EventLocationRecorded: CategoryOps,
	EventLocationDropped:  CategoryOps,
}

// Category returns the category for e. Unknown events are security events so
// they are never silently treated as routine.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategorySecurity
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is the stored and published shape of every audit record.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    id.UserID     `json:"user_id"`
	SessionID string        `json:"session_id,omitempty"`
	Action    string        `json:"action"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	IP        string        `json:"ip,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Severity  Severity      `json:"severity,omitempty"`
}

// ComplianceEvent is a session transition that must be persisted.
type ComplianceEvent struct {
	Timestamp time.Time
	UserID    id.UserID
	SessionID id.SessionID
	Action    AuditEvent
	Decision  string
	RequestID string
}

func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		SessionID: e.SessionID.String(),
		Action:    string(e.Action),
		Decision:  e.Decision,
		RequestID: e.RequestID,
	}
}

// SecurityEvent is a rejected or anomalous operation.
type SecurityEvent struct {
	Timestamp time.Time
	UserID    id.UserID
	SessionID id.SessionID
	Action    AuditEvent
	Reason    string
	IP        string
	RequestID string
	Severity  Severity
}

func (e SecurityEvent) ToEvent() Event {
	ev := Event{
		Category:  CategorySecurity,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Action:    string(e.Action),
		Reason:    e.Reason,
		IP:        e.IP,
		RequestID: e.RequestID,
		Severity:  e.Severity,
	}
	if !e.SessionID.IsNil() {
		ev.SessionID = e.SessionID.String()
	}
	return ev
}

// OpsEvent is a routine, high-volume outcome. Losing some is acceptable.
type OpsEvent struct {
	Timestamp time.Time
	UserID    id.UserID
	SessionID id.SessionID
	Action    AuditEvent
	Reason    string
	RequestID string
}

func (e OpsEvent) ToEvent() Event {
	ev := Event{
		Category:  CategoryOps,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Action:    string(e.Action),
		Reason:    e.Reason,
		RequestID: e.RequestID,
		Severity:  SeverityInfo,
	}
	if !e.SessionID.IsNil() {
		ev.SessionID = e.SessionID.String()
	}
	return ev
}

// Store appends events. Outbox-backed stores join a transaction in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is one serialized event awaiting relay.
type OutboxEntry struct {
	ID        uuid.UUID
	Key       string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// Outbox is the relay's view of a store.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}
