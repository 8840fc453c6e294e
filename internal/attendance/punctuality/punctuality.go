// Package punctuality classifies a check-in instant against a daily cutoff
// expressed in a reference civil timezone.
//
// The machine's local zone never participates: the instant is converted into
// the policy zone, whose offset may be any whole number of minutes (Nepal is
// +05:45), and compared at minute granularity.
package punctuality

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Policy is the cutoff configuration. A check-in at or after
// CutoffHour:CutoffMinute local to Zone is late.
type Policy struct {
	CutoffHour   int
	CutoffMinute int
	Zone         *time.Location
}

// Result of classifying one instant. LateMinutes is zero when not late.
type Result struct {
	Late        bool
	LateMinutes int
}

// NewPolicy parses a "HH:MM" cutoff and a zone (see ParseZone).
func NewPolicy(cutoff, zone string) (Policy, error) {
	h, m, err := ParseCutoff(cutoff)
	if err != nil {
		return Policy{}, err
	}
	loc, err := ParseZone(zone)
	if err != nil {
		return Policy{}, err
	}
	return Policy{CutoffHour: h, CutoffMinute: m, Zone: loc}, nil
}

// ParseCutoff parses "HH:MM" on a 24-hour clock.
func ParseCutoff(s string) (hour, minute int, err error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("cutoff %q: want HH:MM", s)
	}
	hour, errH := strconv.Atoi(hs)
	minute, errM := strconv.Atoi(ms)
	if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("cutoff %q: want HH:MM", s)
	}
	return hour, minute, nil
}

// ParseZone accepts a fixed offset ("+05:45", "-0330", "UTC+05:45"), "UTC"
// or "Z", or an IANA zone name. Fixed offsets keep their exact minutes.
func ParseZone(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "UTC", "Z":
		return time.UTC, nil
	}

	offset := s
	if rest, ok := strings.CutPrefix(strings.ToUpper(s), "UTC"); ok {
		offset = rest
	}
	if offset != "" && (offset[0] == '+' || offset[0] == '-') {
		secs, err := parseOffset(offset)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", s, err)
		}
		return time.FixedZone("UTC"+formatOffset(secs), secs), nil
	}

	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("zone %q: %w", s, err)
	}
	return loc, nil
}

func parseOffset(s string) (int, error) {
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	if len(body) != 2 && len(body) != 4 {
		return 0, fmt.Errorf("offset %q: want ±HH:MM", s)
	}
	h, err := strconv.Atoi(body[:2])
	if err != nil {
		return 0, fmt.Errorf("offset %q: want ±HH:MM", s)
	}
	m := 0
	if len(body) == 4 {
		if m, err = strconv.Atoi(body[2:]); err != nil {
			return 0, fmt.Errorf("offset %q: want ±HH:MM", s)
		}
	}
	if h > 14 || m > 59 {
		return 0, fmt.Errorf("offset %q out of range", s)
	}
	return sign * (h*3600 + m*60), nil
}

func formatOffset(secs int) string {
	sign := '+'
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	return fmt.Sprintf("%c%02d:%02d", sign, secs/3600, (secs%3600)/60)
}

// Classify is pure: the same instant and policy always give the same result.
func (p Policy) Classify(instant time.Time) Result {
	local := instant.In(p.zone())
	minutes := local.Hour()*60 + local.Minute()
	cutoff := p.CutoffHour*60 + p.CutoffMinute
	if minutes < cutoff {
		return Result{}
	}
	return Result{Late: true, LateMinutes: minutes - cutoff}
}

// Cutoff renders the cutoff for messages, e.g. "10:01 UTC+05:45".
func (p Policy) Cutoff() string {
	return fmt.Sprintf("%02d:%02d %s", p.CutoffHour, p.CutoffMinute, p.zone())
}

func (p Policy) zone() *time.Location {
	if p.Zone == nil {
		return time.UTC
	}
	return p.Zone
}
