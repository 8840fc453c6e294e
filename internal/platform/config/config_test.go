package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ATTENDANCE_POLICY_FILE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DefaultAttendance(), cfg.Attendance)
	assert.Equal(t, "10:01", cfg.Attendance.Cutoff)
	assert.Equal(t, "+05:45", cfg.Attendance.Zone)
	assert.Equal(t, 500.0, cfg.Attendance.RadiusMeters)
	assert.Equal(t, 16*time.Hour, cfg.Attendance.MaxOpenDuration)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, RateLimit{WritesPerWindow: 20, Window: time.Minute}, cfg.RateLimit)
}

func TestFromEnvRejectsBadRateLimitWindow(t *testing.T) {
	t.Setenv("ATTENDANCE_POLICY_FILE", "")
	t.Setenv("RATE_LIMIT_WINDOW", "0s")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_WINDOW")
}

func TestFromEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cutoff: "09:30"
zone: Asia/Kathmandu
radius_meters: 250
max_open_duration: 12h
`), 0o600))

	t.Setenv("ATTENDANCE_POLICY_FILE", path)
	t.Setenv("ATTENDANCE_RADIUS_METERS", "300")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "09:30", cfg.Attendance.Cutoff)
	assert.Equal(t, "Asia/Kathmandu", cfg.Attendance.Zone)
	assert.Equal(t, 300.0, cfg.Attendance.RadiusMeters, "env wins over file")
	assert.Equal(t, 12*time.Hour, cfg.Attendance.MaxOpenDuration)
	assert.Equal(t, 5*time.Minute, cfg.Attendance.SweepInterval, "unset keys keep defaults")
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvRejectsBadPolicy(t *testing.T) {
	t.Setenv("ATTENDANCE_POLICY_FILE", "")
	t.Setenv("ATTENDANCE_RADIUS_METERS", "-1")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radius")
}

func TestLoadAttendanceMissingFile(t *testing.T) {
	_, err := LoadAttendance(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestAgentFromEnv(t *testing.T) {
	t.Run("token required", func(t *testing.T) {
		t.Setenv("TIMECLOCK_TOKEN", "")
		_, err := AgentFromEnv()
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("TIMECLOCK_TOKEN", "tok")
		cfg, err := AgentFromEnv()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.PollInterval)
		assert.Equal(t, 5*time.Minute, cfg.SampleInterval)
		assert.Equal(t, 10*time.Second, cfg.AcquireTimeout)
	})
}
