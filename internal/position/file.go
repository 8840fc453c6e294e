package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// fileFix is the JSON document written by an external GPS daemon.
type fileFix struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Accuracy  float64    `json:"accuracy,omitempty"`
	Address   string     `json:"address,omitempty"`
	At        *time.Time `json:"timestamp,omitempty"`
	Denied    bool       `json:"permission_denied,omitempty"`
}

// File reads the latest fix from a JSON file. Fixes older than MaxAge are
// treated as unavailable.
type File struct {
	Path   string
	MaxAge time.Duration
	Now    func() time.Time
}

func (f File) Acquire(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fix{}, fmt.Errorf("%w: %s does not exist", ErrUnavailable, f.Path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return Fix{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return Fix{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var doc fileFix
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Fix{}, fmt.Errorf("%w: malformed fix: %v", ErrUnavailable, err)
	}
	if doc.Denied {
		return Fix{}, ErrPermissionDenied
	}
	if doc.Latitude == nil || doc.Longitude == nil {
		return Fix{}, fmt.Errorf("%w: fix has no coordinates", ErrUnavailable)
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	at := now()
	if doc.At != nil {
		at = *doc.At
	}
	if f.MaxAge > 0 && now().Sub(at) > f.MaxAge {
		return Fix{}, fmt.Errorf("%w: fix is %s old", ErrUnavailable, now().Sub(at).Round(time.Second))
	}
	return Fix{
		Latitude:  *doc.Latitude,
		Longitude: *doc.Longitude,
		Accuracy:  doc.Accuracy,
		Address:   doc.Address,
		At:        at,
	}, nil
}
