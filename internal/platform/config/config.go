// Package config builds process configuration from environment variables,
// with an optional YAML overlay for the attendance policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "timeclock/pkg/platform/strings"
)

// Server captures configuration for cmd/server.
type Server struct {
	Addr          string
	Environment   string
	DatabaseURL   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	Log           Log
	Redis         RedisConfig
	Kafka         KafkaConfig
	Geocode       Geocode
	RateLimit     RateLimit
	Attendance    Attendance
}

type Log struct {
	Level  string
	Format string
}

// RedisConfig is optional; an empty URL disables the geocode cache and the
// sweep lease.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig is optional; without brokers the audit outbox is drained to
// the log only. OpsSampleRate is the share of ping outcomes written to the
// audit log.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
	RelayBatch    int
	OpsSampleRate float64
}

type Geocode struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// RateLimit bounds check-in and check-out requests per user. Zero disables
// the limit.
type RateLimit struct {
	WritesPerWindow int
	Window          time.Duration
}

// Attendance is the punctuality, geofence and auto-close policy.
type Attendance struct {
	Cutoff          string        `yaml:"cutoff"`
	Zone            string        `yaml:"zone"`
	RadiusMeters    float64       `yaml:"radius_meters"`
	MaxOpenDuration time.Duration `yaml:"max_open_duration"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// DefaultAttendance is the policy used when nothing overrides it.
func DefaultAttendance() Attendance {
	return Attendance{
		Cutoff:          "10:01",
		Zone:            "+05:45",
		RadiusMeters:    500,
		MaxOpenDuration: 16 * time.Hour,
		SweepInterval:   5 * time.Minute,
	}
}

// Agent captures configuration for cmd/agent.
type Agent struct {
	APIBaseURL     string
	Token          string
	PollInterval   time.Duration
	SampleInterval time.Duration
	AcquireTimeout time.Duration
	PositionFile   string
	Log            Log
}

// FromEnv builds a Server config. ATTENDANCE_POLICY_FILE, when set, is read
// first and individual ATTENDANCE_* variables override it.
func FromEnv() (Server, error) {
	jwt := JWTFromEnv()
	cfg := Server{
		Addr:          getEnv("TIMECLOCK_ADDR", ":8080"),
		Environment:   getEnv("TIMECLOCK_ENV", "development"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: jwt.SigningKey,
		JWTIssuer:     jwt.Issuer,
		JWTAudience:   jwt.Audience,
		Log:           logFromEnv(),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       pstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			AuditTopic:    getEnv("KAFKA_AUDIT_TOPIC", "attendance.audit"),
			RelayInterval: getDuration("AUDIT_RELAY_INTERVAL", 2*time.Second),
			RelayBatch:    getInt("AUDIT_RELAY_BATCH", 100),
			OpsSampleRate: getFloat("AUDIT_OPS_SAMPLE_RATE", 0.05),
		},
		Geocode: Geocode{
			BaseURL:   os.Getenv("GEOCODE_BASE_URL"),
			UserAgent: getEnv("GEOCODE_USER_AGENT", "timeclock/1.0"),
			Timeout:   getDuration("GEOCODE_TIMEOUT", 3*time.Second),
			CacheTTL:  getDuration("GEOCODE_CACHE_TTL", 24*time.Hour),
		},
		RateLimit: RateLimit{
			WritesPerWindow: getInt("RATE_LIMIT_WRITES", 20),
			Window:          getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
	if cfg.RateLimit.WritesPerWindow > 0 && cfg.RateLimit.Window <= 0 {
		return Server{}, errors.New("RATE_LIMIT_WINDOW must be positive")
	}

	policy, err := LoadAttendance(os.Getenv("ATTENDANCE_POLICY_FILE"))
	if err != nil {
		return Server{}, err
	}
	policy.Cutoff = getEnv("ATTENDANCE_CUTOFF", policy.Cutoff)
	policy.Zone = getEnv("ATTENDANCE_ZONE", policy.Zone)
	policy.RadiusMeters = getFloat("ATTENDANCE_RADIUS_METERS", policy.RadiusMeters)
	policy.MaxOpenDuration = getDuration("ATTENDANCE_MAX_OPEN_DURATION", policy.MaxOpenDuration)
	policy.SweepInterval = getDuration("ATTENDANCE_SWEEP_INTERVAL", policy.SweepInterval)
	if err := policy.Validate(); err != nil {
		return Server{}, err
	}
	cfg.Attendance = policy
	return cfg, nil
}

// JWT is the bearer token configuration shared by the server and the
// agent's token minting command.
type JWT struct {
	SigningKey string
	Issuer     string
	Audience   string
}

func JWTFromEnv() JWT {
	return JWT{
		SigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:     getEnv("JWT_ISSUER", "timeclock"),
		Audience:   getEnv("JWT_AUDIENCE", "attendance"),
	}
}

// AgentFromEnv builds an Agent config.
func AgentFromEnv() (Agent, error) {
	cfg := Agent{
		APIBaseURL:     getEnv("TIMECLOCK_API_URL", "http://localhost:8080"),
		Token:          os.Getenv("TIMECLOCK_TOKEN"),
		PollInterval:   getDuration("AGENT_POLL_INTERVAL", 30*time.Second),
		SampleInterval: getDuration("AGENT_SAMPLE_INTERVAL", 5*time.Minute),
		AcquireTimeout: getDuration("AGENT_ACQUIRE_TIMEOUT", 10*time.Second),
		PositionFile:   os.Getenv("AGENT_POSITION_FILE"),
		Log:            logFromEnv(),
	}
	if cfg.Token == "" {
		return Agent{}, errors.New("TIMECLOCK_TOKEN is required")
	}
	if cfg.PollInterval <= 0 || cfg.SampleInterval <= 0 || cfg.AcquireTimeout <= 0 {
		return Agent{}, errors.New("agent intervals must be positive")
	}
	return cfg, nil
}

// LoadAttendance reads a YAML policy file over the defaults. An empty path
// returns the defaults.
func LoadAttendance(path string) (Attendance, error) {
	policy := DefaultAttendance()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Attendance{}, fmt.Errorf("read attendance policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return Attendance{}, fmt.Errorf("unmarshal attendance policy: %w", err)
	}
	return policy, nil
}

// Validate checks ranges only. Cutoff and zone syntax are parsed by the
// punctuality package at wiring time.
func (a Attendance) Validate() error {
	var errs []error
	if a.Cutoff == "" {
		errs = append(errs, errors.New("attendance cutoff is required"))
	}
	if a.Zone == "" {
		errs = append(errs, errors.New("attendance zone is required"))
	}
	if a.RadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("attendance radius must be positive, got %v", a.RadiusMeters))
	}
	if a.MaxOpenDuration <= 0 {
		errs = append(errs, fmt.Errorf("max open duration must be positive, got %s", a.MaxOpenDuration))
	}
	if a.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive, got %s", a.SweepInterval))
	}
	return errors.Join(errs...)
}

func logFromEnv() Log {
	return Log{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
