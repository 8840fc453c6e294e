// Package attendance holds check-in, check-out, location and auto-close steps.
package attendance

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	SetLocalTime(value string) error
	StatusCode() int
	Body() string
	RunSweep() error
	LastSweepClosed() int
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &attendanceSteps{tc: tc}
	ctx.Step(`^I check in at "([^"]*)" from ([-0-9.]+), ([-0-9.]+)$`, s.checkIn)
	ctx.Step(`^I check in at "([^"]*)" from ([-0-9.]+), ([-0-9.]+) with late reason "([^"]*)"$`, s.checkInWithReason)
	ctx.Step(`^I check in without a location$`, s.checkInWithoutLocation)
	ctx.Step(`^I checked in at "([^"]*)" local time from ([-0-9.]+), ([-0-9.]+)$`, s.checkedInAt)
	ctx.Step(`^I check out from ([-0-9.]+), ([-0-9.]+)$`, s.checkOut)
	ctx.Step(`^I send a location sample from ([-0-9.]+), ([-0-9.]+)$`, s.sendSample)
	ctx.Step(`^I request my current session$`, s.current)
	ctx.Step(`^I request my attendance history$`, s.history)
	ctx.Step(`^the auto-close sweep runs$`, s.sweep)
	ctx.Step(`^(\d+) sessions? should have been auto-closed$`, s.autoClosed)
}

type attendanceSteps struct {
	tc TestContext
}

func (s *attendanceSteps) checkIn(_ context.Context, site string, lat, lng float64) error {
	return s.tc.POST("/attendance/check-in", map[string]any{
		"work_location": site,
		"latitude":      lat,
		"longitude":     lng,
	})
}

func (s *attendanceSteps) checkInWithReason(_ context.Context, site string, lat, lng float64, reason string) error {
	return s.tc.POST("/attendance/check-in", map[string]any{
		"work_location": site,
		"latitude":      lat,
		"longitude":     lng,
		"late_reason":   reason,
	})
}

func (s *attendanceSteps) checkInWithoutLocation(context.Context) error {
	return s.tc.POST("/attendance/check-in", map[string]any{"work_location": "PRIMARY_SITE"})
}

func (s *attendanceSteps) checkedInAt(ctx context.Context, at string, lat, lng float64) error {
	if err := s.tc.SetLocalTime(at); err != nil {
		return err
	}
	if err := s.checkIn(ctx, "PRIMARY_SITE", lat, lng); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("check-in failed with %d: %s", s.tc.StatusCode(), s.tc.Body())
	}
	return nil
}

func (s *attendanceSteps) checkOut(_ context.Context, lat, lng float64) error {
	return s.tc.POST("/attendance/check-out", map[string]any{
		"latitude":  lat,
		"longitude": lng,
	})
}

func (s *attendanceSteps) sendSample(_ context.Context, lat, lng float64) error {
	return s.tc.POST("/attendance/location", map[string]any{
		"latitude":  lat,
		"longitude": lng,
	})
}

func (s *attendanceSteps) current(context.Context) error {
	return s.tc.GET("/attendance/current")
}

func (s *attendanceSteps) history(context.Context) error {
	return s.tc.GET("/attendance/history")
}

func (s *attendanceSteps) sweep(context.Context) error {
	return s.tc.RunSweep()
}

func (s *attendanceSteps) autoClosed(_ context.Context, n int) error {
	if got := s.tc.LastSweepClosed(); got != n {
		return fmt.Errorf("expected %d auto-closed sessions, got %d", n, got)
	}
	return nil
}

