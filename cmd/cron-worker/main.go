package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/app"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	serviceKind = "cron-worker"
	lockScope   = "cron"
	lockID      = "storefront"
)

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	services, err := app.Build(ctx, cfg, logg, app.Infra{
		DB:            dbClient,
		Redis:         redisClient,
		Notifications: pubsubClient.NotificationPublisher(),
		Registerer:    prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	service, err := newCronService(cfg, logg, redisClient, dbClient, services)
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if once {
		logg.Info(ctx, "running cron jobs once")
		return service.RunOnce(ctx)
	}
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func newCronService(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, dbClient *db.Client, services *app.Services) (*cron.Service, error) {
	sweep, err := cron.NewFulfillmentSweepJob(cron.FulfillmentSweepJobParams{
		Logger:    logg,
		Finder:    services.Reconciler,
		Fulfiller: services.Fulfillment,
		MinAge:    cfg.Fulfillment.RetryMinAge,
		BatchSize: cfg.Fulfillment.RetryBatchSize,
	})
	if err != nil {
		return nil, err
	}
	audit, err := cron.NewEmergencyAuditJob(cron.EmergencyAuditJobParams{
		Logger:  logg,
		Auditor: services.Emergency,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  services.OutboxRepo,
		Retention:   cfg.Eventing.OutboxRetention,
		MinAttempts: cfg.Outbox.MaxAttempts,
		ChunkSize:   cfg.Eventing.OutboxPruneChunk,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry(sweep, audit)
	if err := registry.RegisterEvery(retention, cfg.Cron.PruneEvery); err != nil {
		return nil, err
	}

	lock, err := redis.NewLock(redisClient, redisClient.LockKey(lockScope, lockID), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    services.CronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
}
