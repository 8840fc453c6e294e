package domain

import (
	"strings"

	dErrors "timeclock/pkg/domain-errors"
)

// WorkLocation tags where a shift is being worked from.
// Invariant: the value must be one of the supported tags.
//
// Construct via ParseWorkLocation at trust boundaries; direct casting
// bypasses validation.
type WorkLocation string

const (
	WorkLocationPrimarySite WorkLocation = "PRIMARY_SITE"
	WorkLocationFieldSite   WorkLocation = "FIELD_SITE"
)

var validWorkLocations = map[WorkLocation]bool{
	WorkLocationPrimarySite: true,
	WorkLocationFieldSite:   true,
}

// ParseWorkLocation constructs a WorkLocation from external input. Matching is
// case-insensitive so "field_site" and "FIELD_SITE" are the same tag.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseWorkLocation(s string) (WorkLocation, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "work location cannot be empty")
	}
	w := WorkLocation(strings.ToUpper(s))
	if !w.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid work location")
	}
	return w, nil
}

// IsValid reports whether the tag is one of the supported values.
func (w WorkLocation) IsValid() bool {
	return validWorkLocations[w]
}

func (w WorkLocation) String() string {
	return string(w)
}
