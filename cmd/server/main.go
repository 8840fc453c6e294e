package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"timeclock/internal/attendance/autoclose"
	"timeclock/internal/attendance/geofence"
	"timeclock/internal/attendance/handler"
	attmetrics "timeclock/internal/attendance/metrics"
	"timeclock/internal/attendance/punctuality"
	"timeclock/internal/attendance/service"
	"timeclock/internal/attendance/store"
	"timeclock/internal/geocode"
	"timeclock/internal/jwttoken"
	"timeclock/internal/platform/config"
	"timeclock/internal/platform/httpserver"
	"timeclock/internal/platform/kafka"
	"timeclock/internal/platform/logger"
	platformmetrics "timeclock/internal/platform/metrics"
	"timeclock/internal/platform/postgres"
	platformredis "timeclock/internal/platform/redis"
	"timeclock/internal/ratelimit"
	httptransport "timeclock/internal/transport/http"
	audit "timeclock/pkg/platform/audit"
	"timeclock/pkg/platform/audit/publishers/compliance"
	"timeclock/pkg/platform/audit/publishers/ops"
	"timeclock/pkg/platform/audit/publishers/security"
	"timeclock/pkg/platform/audit/relay"
	auditmemory "timeclock/pkg/platform/audit/store/memory"
	auditpostgres "timeclock/pkg/platform/audit/store/postgres"
	"timeclock/pkg/platform/circuit"
)

const shutdownGrace = 10 * time.Second

// main wires high-level dependencies and owns the process lifecycle.
// Business logic lives in internal service packages.
func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type auditBackend interface {
	audit.Store
	audit.Outbox
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	policy, err := punctuality.NewPolicy(cfg.Attendance.Cutoff, cfg.Attendance.Zone)
	if err != nil {
		return fmt.Errorf("attendance policy: %w", err)
	}

	reg := prometheus.DefaultRegisterer
	checks := map[string]httptransport.HealthCheck{}

	var (
		sessions service.Store
		auditLog auditBackend
		txRunner service.TxRunner
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		sessions = store.NewPostgres(db)
		auditLog = auditpostgres.New(db)
		txRunner = newAttendancePostgresTx(db)
		checks["database"] = db.PingContext
	} else {
		log.Warn("DATABASE_URL not set, sessions are kept in memory")
		sessions = store.NewInMemory()
		auditLog = auditmemory.NewInMemoryStore()
		txRunner = service.NewShardedTx(0)
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = rdb.Health
	}

	var sink relay.Sink = relay.LogSink{Logger: log}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("audit topic not ensured", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		sink = producer
		checks["kafka"] = producer.Ping
	}

	securityAudit := security.New(auditLog,
		security.WithLogger(log),
		security.WithMetrics(security.NewMetrics(reg)),
	)
	complianceAudit := compliance.New(auditLog,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)

	opsAudit := ops.New(auditLog,
		ops.WithSampler(ops.NewSampler(cfg.Kafka.OpsSampleRate)),
		ops.WithLogger(log),
		ops.WithMetrics(ops.NewMetrics(reg)),
	)

	metrics := attmetrics.New(reg)
	opts := []service.Option{
		service.WithMetrics(metrics),
		service.WithLogger(log),
		service.WithSecurityAuditor(securityAudit),
		service.WithOpsTracker(opsAudit),
		service.WithTxRunner(txRunner),
	}
	if cfg.Geocode.BaseURL != "" {
		var cache geocode.Cache = geocode.NewMemoryCache()
		if rdb != nil {
			cache = geocode.NewRedisCache(rdb.Client)
		}
		resolver := geocode.NewResolver(
			geocode.NewNominatim(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent, cfg.Geocode.Timeout),
			geocode.WithCache(cache, cfg.Geocode.CacheTTL),
			geocode.WithBreaker(circuit.New("geocode")),
			geocode.WithLogger(log),
		)
		opts = append(opts, service.WithGeocoder(resolver))
	}

	svc, err := service.New(sessions, complianceAudit, service.Config{
		Policy:          policy,
		Fence:           geofence.NewFence(cfg.Attendance.RadiusMeters),
		MaxOpenDuration: cfg.Attendance.MaxOpenDuration,
		GeocodeTimeout:  cfg.Geocode.Timeout,
	}, opts...)
	if err != nil {
		return err
	}

	sweeperOpts := []autoclose.Option{
		autoclose.WithInterval(cfg.Attendance.SweepInterval),
		autoclose.WithLogger(log),
		autoclose.WithMetrics(metrics),
	}
	if rdb != nil {
		sweeperOpts = append(sweeperOpts, autoclose.WithLease(
			autoclose.NewRedisLease(rdb.Client, autoclose.DefaultLeaseKey, replicaID()),
		))
	}
	sweeper := autoclose.New(svc, sweeperOpts...)

	var writeLimit func(http.Handler) http.Handler
	if cfg.RateLimit.WritesPerWindow > 0 {
		var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
		if rdb != nil {
			limitStore = ratelimit.NewRedisStore(rdb.Client)
		}
		limiter := ratelimit.NewLimiter(limitStore, cfg.RateLimit.WritesPerWindow, cfg.RateLimit.Window, log)
		writeLimit = ratelimit.PerUser(limiter, "attendance")
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Attendance: handler.New(svc, log),
		Tokens:     jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
		Logger:     log,
		Metrics:    platformmetrics.Handler(),
		Checks:     checks,
		WriteLimit: writeLimit,
	})
	srv := httpserver.New(cfg.Addr, router)

	securityAudit.Start(ctx)
	defer securityAudit.Close()
	platformmetrics.MarkStarted("server")

	log.Info("starting timeclock",
		"addr", cfg.Addr,
		"env", cfg.Environment,
		"cutoff", policy.Cutoff(),
		"radius_m", cfg.Attendance.RadiusMeters,
		"max_open", cfg.Attendance.MaxOpenDuration.String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, shutdownGrace, log)
	})
	g.Go(func() error {
		return ignoreCanceled(sweeper.Run(gctx))
	})
	g.Go(func() error {
		return relay.New(auditLog, sink, log, cfg.Kafka.RelayInterval, cfg.Kafka.RelayBatch).Run(gctx)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func replicaID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "timeclock"
	}
	return host + "-" + uuid.NewString()[:8]
}
