// Package common holds clock, identity and response assertion steps.
package common

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context these steps need.
type TestContext interface {
	SetLocalTime(value string) error
	AuthenticateAs(name string) error
	ClearToken()
	StatusCode() int
	Body() string
	ResponseField(path string) (any, error)
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &commonSteps{tc: tc}
	ctx.Step(`^the local time is "([^"]*)"$`, s.localTimeIs)
	ctx.Step(`^I am authenticated as "([^"]*)"$`, s.authenticatedAs)
	ctx.Step(`^I am not authenticated$`, s.notAuthenticated)

	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the error should be "([^"]*)"$`, s.errorShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, s.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be null$`, s.fieldShouldBeNull)
	ctx.Step(`^the response field "([^"]*)" should be approximately ([0-9.]+)$`, s.fieldShouldBeApprox)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) localTimeIs(_ context.Context, value string) error {
	return s.tc.SetLocalTime(value)
}

func (s *commonSteps) authenticatedAs(_ context.Context, name string) error {
	return s.tc.AuthenticateAs(name)
}

func (s *commonSteps) notAuthenticated(context.Context) error {
	s.tc.ClearToken()
	return nil
}

func (s *commonSteps) statusShouldBe(_ context.Context, status int) error {
	if got := s.tc.StatusCode(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.Body())
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldBe(ctx, "error", code)
}

func (s *commonSteps) fieldShouldBe(_ context.Context, path, want string) error {
	v, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s to be %q, got %q", path, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeNull(_ context.Context, path string) error {
	v, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	if v != nil {
		return fmt.Errorf("expected %s to be null, got %v", path, v)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeApprox(_ context.Context, path, want string) error {
	v, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	got, ok := v.(float64)
	if !ok {
		return fmt.Errorf("expected %s to be a number, got %T", path, v)
	}
	target, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return err
	}
	if math.Abs(got-target) > 0.01 {
		return fmt.Errorf("expected %s to be about %v, got %v", path, target, got)
	}
	return nil
}

