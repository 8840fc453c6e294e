// Package agent runs on the employee's device. A Poller keeps a State of the
// user's current session; a Watcher starts a location Sampler while that
// session is ACTIVE and stops it when it is not.
package agent

import (
	"sync"
	"time"
)

// Snapshot is what the agent knows about the user's session.
type Snapshot struct {
	SessionID string
	Active    bool
	CheckInAt time.Time
	// Known is false until the first successful poll.
	Known bool
}

// Equal compares check-in instants with time.Equal, so the same instant
// decoded in another location is not a change.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.SessionID == o.SessionID &&
		s.Active == o.Active &&
		s.Known == o.Known &&
		s.CheckInAt.Equal(o.CheckInAt)
}

// State is the shared, mutex-guarded session snapshot. Subscribers receive
// the latest snapshot after each change; intermediate values may be skipped.
type State struct {
	mu      sync.RWMutex
	current Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

func NewState() *State {
	return &State{subs: make(map[int]chan Snapshot)}
}

func (s *State) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set stores snap and reports whether it differs from the previous value.
func (s *State) Set(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Equal(s.current) {
		return false
	}
	s.current = snap
	for _, ch := range s.subs {
		// Drop a stale pending value so the channel always holds the latest.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return true
}

// Subscribe returns a channel of snapshot changes, primed with the current
// value, and a function that unsubscribes.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 1)
	ch <- s.current
	key := s.nextSub
	s.nextSub++
	s.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, key)
			s.mu.Unlock()
		})
	}
}
