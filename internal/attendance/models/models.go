// Package models holds the attendance session aggregate and its ping log.
package models

import (
	"time"

	id "timeclock/pkg/domain"
)

// Status is the session lifecycle state. NONE is the absence of an ACTIVE
// row and has no value here.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusClosed     Status = "CLOSED"
	StatusAutoClosed Status = "AUTO_CLOSED"
)

func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusAutoClosed
}

func (s Status) IsValid() bool {
	return s == StatusActive || s.IsTerminal()
}

func (s Status) String() string { return string(s) }

// Location is a coordinate pair in degrees with an optional resolved address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Session is one check-in to check-out span for a user.
//
// CheckInLocation is always set for a well-formed session. CheckOutLocation
// is set only when Status is CLOSED; auto-closed sessions have none.
// Once terminal, a session is never mutated again.
type Session struct {
	ID     id.SessionID
	UserID id.UserID

	CheckInAt  time.Time
	CheckOutAt *time.Time
	TotalHours *float64

	CheckInLocation  *Location
	CheckOutLocation *Location

	WorkLocation  id.WorkLocation
	IsLate        bool
	LateMinutes   *int
	LateReason    string
	CheckInNotes  string
	CheckOutNotes string
	CheckInDevice string

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

// OpenLongerThan reports whether the session has been open for strictly
// more than d at instant at.
func (s *Session) OpenLongerThan(d time.Duration, at time.Time) bool {
	return at.Sub(s.CheckInAt) > d
}

// HoursWorked is the fractional number of hours between check-in and at.
func HoursWorked(checkIn, at time.Time) float64 {
	return at.Sub(checkIn).Hours()
}

// LocationPing is one background position sample of an ACTIVE session.
type LocationPing struct {
	ID         id.PingID
	SessionID  id.SessionID
	RecordedAt time.Time
	Latitude   float64
	Longitude  float64
	Address    string
}

// CloseParams carries the fields written by a user check-out.
type CloseParams struct {
	At         time.Time
	Location   Location
	Notes      string
	TotalHours float64
}
