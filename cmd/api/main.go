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
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/app"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

const serviceKind = "api"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// run owns every connection the server needs and closes them in reverse
// order of opening once the server has drained.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

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

	infra := app.Infra{
		DB:            dbClient,
		Redis:         redisClient,
		Notifications: pubsubClient.NotificationPublisher(),
		Registerer:    prometheus.DefaultRegisterer,
	}
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return fmt.Errorf("bootstrap square: %w", err)
		}
		infra.Square = squareClient
	} else {
		logg.Warn(ctx, "square not configured, card orders disabled")
	}

	services, err := app.Build(ctx, cfg, logg, infra)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	handler := routes.NewRouter(cfg, logg, routes.Deps{
		DB:           dbClient,
		Cache:        redisClient,
		Idempotency:  redisClient,
		RateLimits:   redisClient,
		Tenants:      services.Tenants,
		Checkout:     services.Checkout,
		Orders:       services.Orders,
		Fulfillment:  services.Fulfillment,
		Cart:         services.Cart,
		Wallet:       services.Wallet,
		Gateway:      services.Gateway,
		GatewayGuard: services.GatewayGuard,
		Metrics:      metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
	})

	server := api.NewServer(":"+cfg.App.Port, cfg.HTTP, handler)
	logg.Info(logg.WithField(ctx, "addr", server.Addr), "starting api server")
	return api.Serve(ctx, server, cfg.HTTP.ShutdownTimeout, logg)
}
