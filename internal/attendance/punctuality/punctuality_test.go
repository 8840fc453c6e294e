package punctuality

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nepalPolicy(t *testing.T) Policy {
	t.Helper()
	p, err := NewPolicy("10:01", "+05:45")
	require.NoError(t, err)
	return p
}

func TestClassifyScenarios(t *testing.T) {
	p := nepalPolicy(t)
	npt := p.Zone

	t.Run("09:45 is on time", func(t *testing.T) {
		r := p.Classify(time.Date(2024, 3, 4, 9, 45, 0, 0, npt))
		assert.False(t, r.Late)
		assert.Zero(t, r.LateMinutes)
	})

	t.Run("10:05 is four minutes late", func(t *testing.T) {
		r := p.Classify(time.Date(2024, 3, 4, 10, 5, 0, 0, npt))
		assert.True(t, r.Late)
		assert.Equal(t, 4, r.LateMinutes)
	})

	t.Run("the cutoff minute itself is late", func(t *testing.T) {
		r := p.Classify(time.Date(2024, 3, 4, 10, 1, 0, 0, npt))
		assert.True(t, r.Late)
		assert.Zero(t, r.LateMinutes)
	})

	t.Run("last second before cutoff is on time", func(t *testing.T) {
		r := p.Classify(time.Date(2024, 3, 4, 10, 0, 59, 999, npt))
		assert.False(t, r.Late)
	})
}

func TestClassifyUsesPolicyZoneNotInstantZone(t *testing.T) {
	p := nepalPolicy(t)

	// 04:20 UTC is 10:05 at +05:45.
	utc := time.Date(2024, 3, 4, 4, 20, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	for _, instant := range []time.Time{utc, utc.In(ny), utc.In(time.FixedZone("X", 5*3600+30*60))} {
		r := p.Classify(instant)
		assert.True(t, r.Late)
		assert.Equal(t, 4, r.LateMinutes)
	}
}

func TestClassifyQuarterHourOffsetIsNotTruncated(t *testing.T) {
	p := nepalPolicy(t)
	// 04:15 UTC is 10:00 NPT. Truncating the offset to +05:30 would give
	// 09:45, and to +06:00 would give 10:15.
	r := p.Classify(time.Date(2024, 3, 4, 4, 15, 0, 0, time.UTC))
	assert.False(t, r.Late)

	r = p.Classify(time.Date(2024, 3, 4, 4, 16, 0, 0, time.UTC))
	assert.True(t, r.Late)
	assert.Zero(t, r.LateMinutes)
}

func TestClassifyWholeDay(t *testing.T) {
	p := nepalPolicy(t)
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, p.Zone)
	cutoff := 10*60 + 1

	for m := 0; m < 24*60; m++ {
		r := p.Classify(start.Add(time.Duration(m) * time.Minute))
		if m < cutoff {
			assert.False(t, r.Late, "minute %d", m)
			continue
		}
		assert.True(t, r.Late, "minute %d", m)
		assert.Equal(t, m-cutoff, r.LateMinutes, "minute %d", m)
	}
}

func TestParseZone(t *testing.T) {
	tests := []struct {
		in         string
		wantOffset int
	}{
		{"+05:45", 5*3600 + 45*60},
		{"UTC+05:45", 5*3600 + 45*60},
		{"utc-03:30", -(3*3600 + 30*60)},
		{"+0545", 5*3600 + 45*60},
		{"+09", 9 * 3600},
		{"UTC", 0},
		{"Asia/Kathmandu", 5*3600 + 45*60},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := ParseZone(tt.in)
			require.NoError(t, err)
			_, offset := time.Date(2024, 3, 4, 12, 0, 0, 0, loc).Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}

	for _, bad := range []string{"+5:4", "+25:00", "+05:75", "Mars/Olympus"} {
		_, err := ParseZone(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseCutoff(t *testing.T) {
	h, m, err := ParseCutoff(" 10:01 ")
	require.NoError(t, err)
	assert.Equal(t, 10, h)
	assert.Equal(t, 1, m)

	for _, bad := range []string{"", "10", "24:00", "10:60", "ab:cd"} {
		_, _, err := ParseCutoff(bad)
		assert.Error(t, err, bad)
	}
}

func TestCutoffString(t *testing.T) {
	assert.Equal(t, "10:01 UTC+05:45", nepalPolicy(t).Cutoff())
}
