package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dropship-settlements/api/routes"
	"github.com/angelmondragon/dropship-settlements/internal/app"
	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/infinitypay"
	"github.com/angelmondragon/dropship-settlements/pkg/instance"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
	"github.com/angelmondragon/dropship-settlements/pkg/migrate"
	"github.com/angelmondragon/dropship-settlements/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	boot := logger.New(logger.Options{ServiceName: "api"})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.FromConfig("api", cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     cfg.App.Addr(),
		"instance": instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
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

	gateway, err := infinitypay.NewClient(ctx, cfg.InfinityPay, logg)
	if err != nil {
		return fmt.Errorf("infinitypay client: %w", err)
	}
	stack, err := app.Build(app.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		Gateway: gateway,
		Metrics: metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("wire settlement services: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.App.Addr(),
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			nil,
			stack.Debts,
			stack.Links,
			stack.Shipments,
			stack.Suppliers,
			stack.Ledger,
			stack.DeadLetters,
			stack.Webhooks,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logg.Info(ctx, "draining api server")
	return server.Shutdown(shutdownCtx)
}
