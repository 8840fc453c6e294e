package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.True(t, StatusClosed.IsTerminal())
	assert.True(t, StatusAutoClosed.IsTerminal())
	assert.True(t, StatusActive.IsValid())
	assert.False(t, Status("AUTO_CHECKED_OUT").IsValid())
}

func TestHoursWorkedIsFractional(t *testing.T) {
	in := time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC)
	assert.InDelta(t, 8.5, HoursWorked(in, in.Add(8*time.Hour+30*time.Minute)), 1e-9)
	assert.InDelta(t, 1.0/60, HoursWorked(in, in.Add(time.Minute)), 1e-12)
}

func TestOpenLongerThan(t *testing.T) {
	in := time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC)
	s := &Session{CheckInAt: in, Status: StatusActive}

	assert.False(t, s.OpenLongerThan(16*time.Hour, in.Add(16*time.Hour)), "boundary is not older")
	assert.True(t, s.OpenLongerThan(16*time.Hour, in.Add(16*time.Hour+time.Second)))
	assert.True(t, s.IsActive())

	var none *Session
	assert.False(t, none.IsActive())
}
