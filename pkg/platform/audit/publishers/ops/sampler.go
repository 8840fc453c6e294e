package ops

import (
	"math/rand/v2"
	"sync"

	audit "timeclock/pkg/platform/audit"
)

// DefaultSampleRate keeps one ping outcome in twenty.
const DefaultSampleRate = 0.05

// Sampler decides which ops events are kept. Rates are in [0, 1].
type Sampler struct {
	mu          sync.RWMutex
	defaultRate float64
	byAction    map[audit.AuditEvent]float64
	roll        func() float64
}

func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate: clampRate(defaultRate),
		byAction:    make(map[audit.AuditEvent]float64),
		roll:        rand.Float64,
	}
}

// SetRate overrides the rate for one action.
func (s *Sampler) SetRate(action audit.AuditEvent, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAction[action] = clampRate(rate)
}

// Keep reports whether an event with this action should be written.
func (s *Sampler) Keep(action audit.AuditEvent) bool {
	s.mu.RLock()
	rate, ok := s.byAction[action]
	if !ok {
		rate = s.defaultRate
	}
	s.mu.RUnlock()

	switch {
	case rate >= 1:
		return true
	case rate <= 0:
		return false
	}
	return s.roll() < rate
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
