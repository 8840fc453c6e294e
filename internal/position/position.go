// Package position defines how the agent obtains the device's location.
// Providers report failures through the sentinel errors below; callers treat
// every failure as "skip this sample".
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	dErrors "timeclock/pkg/domain-errors"
)

var (
	ErrUnavailable      = errors.New("position unavailable")
	ErrPermissionDenied = errors.New("position permission denied")
	ErrTimeout          = errors.New("position acquisition timed out")
)

// Unavailable reports an acquisition failure as location_unavailable, the
// retryable failure callers show to the user. The provider sentinel stays in
// the chain.
func Unavailable(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return dErrors.Wrap(err, dErrors.CodeLocationUnavailable, "location permission denied")
	case errors.Is(err, ErrTimeout):
		return dErrors.Wrap(err, dErrors.CodeLocationUnavailable, "location acquisition timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeLocationUnavailable, "location unavailable")
	}
}

// Fix is one position reading.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Address   string
	At        time.Time
}

// Provider acquires the current position.
type Provider interface {
	Acquire(ctx context.Context) (Fix, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Fix, error)

func (f ProviderFunc) Acquire(ctx context.Context) (Fix, error) { return f(ctx) }

// WithTimeout bounds each acquisition. A provider that overruns the budget
// yields ErrTimeout even if it ignores ctx.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	return ProviderFunc(func(ctx context.Context) (Fix, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type result struct {
			fix Fix
			err error
		}
		ch := make(chan result, 1)
		go func() {
			fix, err := p.Acquire(ctx)
			ch <- result{fix, err}
		}()

		select {
		case r := <-ch:
			if errors.Is(r.err, context.DeadlineExceeded) {
				return Fix{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return r.fix, r.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Fix{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return Fix{}, ctx.Err()
		}
	})
}

// Static always returns the same fix. Useful for kiosks with a fixed
// location and for tests.
type Static struct {
	Fix Fix
	Now func() time.Time
}

func (s Static) Acquire(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	fix := s.Fix
	if s.Now != nil {
		fix.At = s.Now()
	} else {
		fix.At = time.Now()
	}
	return fix, nil
}
