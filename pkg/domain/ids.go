package domain

import (
	"github.com/google/uuid"

	dErrors "timeclock/pkg/domain-errors"
)

// Typed identifiers keep user, session and ping ids from being mixed up at
// compile time. All of them are UUIDs underneath.
type (
	UserID    uuid.UUID
	SessionID uuid.UUID
	PingID    uuid.UUID
)

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewPingID returns a fresh random ping id.
func NewPingID() PingID { return PingID(uuid.New()) }

// ParseUserID parses a user id at a trust boundary.
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseSessionID parses a session id at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session ID")
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

// ParsePingID parses a location ping id.
func ParsePingID(s string) (PingID, error) {
	u, err := parseUUID(s, "ping ID")
	if err != nil {
		return PingID{}, err
	}
	return PingID(u), nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

func (u UserID) String() string    { return uuid.UUID(u).String() }
func (s SessionID) String() string { return uuid.UUID(s).String() }
func (p PingID) String() string    { return uuid.UUID(p).String() }

func (u UserID) IsNil() bool    { return uuid.UUID(u) == uuid.Nil }
func (s SessionID) IsNil() bool { return uuid.UUID(s) == uuid.Nil }
func (p PingID) IsNil() bool    { return uuid.UUID(p) == uuid.Nil }
