// Package service is the attendance session engine. It owns the per-user
// state machine NONE -> ACTIVE -> CLOSED | AUTO_CLOSED and every rule gating
// those transitions: the location requirement, the punctuality cutoff, the
// check-out geofence and the auto-close age limit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"timeclock/internal/attendance/geofence"
	"timeclock/internal/attendance/metrics"
	"timeclock/internal/attendance/models"
	"timeclock/internal/attendance/punctuality"
	id "timeclock/pkg/domain"
	dErrors "timeclock/pkg/domain-errors"
	"timeclock/pkg/platform/audit"
	"timeclock/pkg/platform/sentinel"
	"timeclock/pkg/requestcontext"
)

// Store persists sessions and pings. Terminal transitions are conditional on
// the row still being ACTIVE and report sentinel.ErrInvalidState otherwise.
type Store interface {
	CreateIfNoneActive(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindActiveByUser(ctx context.Context, userID id.UserID) (*models.Session, error)
	CloseIfActive(ctx context.Context, sessionID id.SessionID, params models.CloseParams) (*models.Session, error)
	AutoCloseIfActive(ctx context.Context, sessionID id.SessionID, at time.Time, totalHours float64) (*models.Session, error)
	AppendPing(ctx context.Context, ping *models.LocationPing) error
	ListPings(ctx context.Context, sessionID id.SessionID) ([]models.LocationPing, error)
	CountPings(ctx context.Context, sessionIDs []id.SessionID) (map[id.SessionID]int, error)
	ListActiveOpenedBefore(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.Session, error)
}

// AuditPublisher records session transitions. A failed Emit fails the
// transition.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// SecurityAuditor records rejected check-outs and integrity faults. It never
// blocks the caller.
type SecurityAuditor interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// OpsTracker records sampled ping outcomes. It never blocks the caller.
type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent) bool
}

// Geocoder turns coordinates into a display address. Failures are tolerated.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// TxRunner runs fn so that the store writes and audit append inside it
// commit together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	DefaultMaxOpenDuration = 16 * time.Hour
	DefaultGeocodeTimeout  = 3 * time.Second
	DefaultHistoryLimit    = 20
	MaxHistoryLimit        = 100
)

type Config struct {
	Policy          punctuality.Policy
	Fence           geofence.Fence
	MaxOpenDuration time.Duration
	GeocodeTimeout  time.Duration
}

type Service struct {
	store    Store
	tx       TxRunner
	auditor  AuditPublisher
	security SecurityAuditor
	ops      OpsTracker
	geocoder Geocoder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	policy          punctuality.Policy
	fence           geofence.Fence
	maxOpenDuration time.Duration
	geocodeTimeout  time.Duration
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithGeocoder(g Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

func WithSecurityAuditor(a SecurityAuditor) Option {
	return func(s *Service) { s.security = a }
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) { s.ops = t }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithTxRunner replaces the per-user lock used when no database transaction
// is available.
func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

func New(store Store, auditor AuditPublisher, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if auditor == nil {
		return nil, errors.New("audit publisher is required")
	}
	if cfg.Policy.Zone == nil {
		return nil, errors.New("punctuality policy zone is required")
	}
	if cfg.Fence.RadiusMeters <= 0 {
		cfg.Fence = geofence.NewFence(geofence.DefaultRadiusMeters)
	}
	if cfg.MaxOpenDuration <= 0 {
		cfg.MaxOpenDuration = DefaultMaxOpenDuration
	}
	if cfg.GeocodeTimeout <= 0 {
		cfg.GeocodeTimeout = DefaultGeocodeTimeout
	}

	s := &Service{
		store:           store,
		auditor:         auditor,
		policy:          cfg.Policy,
		fence:           cfg.Fence,
		maxOpenDuration: cfg.MaxOpenDuration,
		geocodeTimeout:  cfg.GeocodeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("timeclock/attendance")
	}
	return s, nil
}

// MaxOpenDuration is the age past which an ACTIVE session is auto-closed.
func (s *Service) MaxOpenDuration() time.Duration { return s.maxOpenDuration }

func (s *Service) now(ctx context.Context, at time.Time) time.Time {
	if at.IsZero() {
		return requestcontext.Now(ctx)
	}
	return at
}

func (s *Service) startSpan(ctx context.Context, name string, userID id.UserID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("user_id", userID.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// resolveAddress keeps a client-supplied address and otherwise asks the
// geocoder within a short budget. It never fails.
func (s *Service) resolveAddress(ctx context.Context, loc models.Location) string {
	if loc.Address != "" || s.geocoder == nil {
		return loc.Address
	}
	ctx, cancel := context.WithTimeout(ctx, s.geocodeTimeout)
	defer cancel()

	addr, err := s.geocoder.Reverse(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		s.metrics.IncGeocode("failed")
		s.logger.DebugContext(ctx, "reverse geocode failed", "error", err)
		return ""
	}
	s.metrics.IncGeocode("resolved")
	return addr
}

func (s *Service) emitSecurity(ctx context.Context, event audit.SecurityEvent) {
	if s.security == nil {
		return
	}
	event.IP = requestcontext.ClientIP(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	s.security.Emit(ctx, event)
}

func validateLocation(loc *models.Location) error {
	if loc == nil {
		return dErrors.New(dErrors.CodeLocationRequired, "location is required")
	}
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return dErrors.New(dErrors.CodeValidation, "latitude must be between -90 and 90")
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return dErrors.New(dErrors.CodeValidation, "longitude must be between -180 and 180")
	}
	return nil
}

func toPoint(loc models.Location) geofence.Point {
	return geofence.Point{Lat: loc.Latitude, Lng: loc.Longitude}
}

// findActive returns the user's ACTIVE session or nil when there is none.
func (s *Service) findActive(ctx context.Context, userID id.UserID) (*models.Session, error) {
	session, err := s.store.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active session")
	}
	return session, nil
}
