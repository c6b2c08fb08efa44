package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dropship-settlements/internal/app"
	"github.com/angelmondragon/dropship-settlements/internal/cron"
	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/instance"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
	"github.com/angelmondragon/dropship-settlements/pkg/migrate"
	"github.com/angelmondragon/dropship-settlements/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.FromConfig(serviceKind, cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	// replay re-drives the webhook pipeline; link creation is api-only
	stack, err := app.Build(app.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		Metrics: metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("wire settlement services: %w", err)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, stack)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, stack *app.Stack) (*cron.Registry, error) {
	expiry, err := cron.NewLinkExpiryJob(cron.LinkExpiryJobParams{
		Logger: logg,
		DB:     dbClient,
		Links:  stack.LinkRepo,
		Debts:  stack.DebtRepo,
		Outbox: stack.Outbox,
		TTL:    cfg.Settlement.LinkTTL,
	})
	if err != nil {
		return nil, err
	}
	replay, err := cron.NewConfirmationReplayJob(cron.ConfirmationReplayJobParams{
		Logger:      logg,
		Replayer:    stack.Webhooks,
		After:       cfg.Settlement.ReplayAfter,
		BatchSize:   cfg.Settlement.ReplayBatchSize,
		MaxAttempts: cfg.Settlement.ReplayMaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Outbox:      stack.OutboxRepo,
		DeadLetters: stack.DeadLetterRepo,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(expiry, replay, retention)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
