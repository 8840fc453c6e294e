package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"timeclock/internal/agent"
	"timeclock/internal/client"
	"timeclock/internal/jwttoken"
	"timeclock/internal/platform/config"
	"timeclock/internal/platform/logger"
	"timeclock/internal/position"
	id "timeclock/pkg/domain"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "mint-token" {
		if err := mintToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	cfg, err := config.AgentFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("agent exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Agent, log *slog.Logger) error {
	if cfg.PositionFile == "" {
		return errors.New("AGENT_POSITION_FILE is required")
	}
	provider := position.File{Path: cfg.PositionFile, MaxAge: 2 * cfg.SampleInterval}
	api := client.New(cfg.APIBaseURL, cfg.Token)
	metrics := agent.NewMetrics(prometheus.DefaultRegisterer)

	state := agent.NewState()
	poller := agent.NewPoller(api, state, cfg.PollInterval, log, metrics)
	sampler := agent.NewSampler(provider, api,
		agent.WithSampleInterval(cfg.SampleInterval),
		agent.WithAcquireTimeout(cfg.AcquireTimeout),
		agent.WithSamplerLogger(log),
		agent.WithSamplerMetrics(metrics),
	)
	watcher := agent.NewWatcher(state, sampler, log)

	log.Info("agent started",
		"api", cfg.APIBaseURL,
		"poll_interval", cfg.PollInterval.String(),
		"sample_interval", cfg.SampleInterval.String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// mintToken prints a bearer token for a user, signed with the server key.
// It is meant for development and kiosk provisioning.
func mintToken(args []string) error {
	fs := flag.NewFlagSet("mint-token", flag.ContinueOnError)
	user := fs.String("user", "", "user id (UUID)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	userID, err := id.ParseUserID(*user)
	if err != nil {
		return fmt.Errorf("-user: %w", err)
	}
	jwt := config.JWTFromEnv()
	token, err := jwttoken.NewService(jwt.SigningKey, jwt.Issuer, jwt.Audience).Issue(userID, *ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}
