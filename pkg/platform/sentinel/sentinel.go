// Package sentinel holds the infrastructure facts stores report upward.
//
// Stores return these (optionally wrapped with %w); services translate them
// into coded errors from pkg/domain-errors. Input validation never uses them.
package sentinel

import "errors"

var (
	// ErrNotFound: the row or key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a uniqueness rule rejected the write, e.g. a second ACTIVE
	// session for the same user.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the entity exists but a conditional transition did not
	// apply, e.g. closing a session that is no longer ACTIVE.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a backing service could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
