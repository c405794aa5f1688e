// Package app assembles the order placement and settlement services shared by
// the API and cron binaries.
package app

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/emergency"
	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/internal/supplier"
	"github.com/angelmondragon/storefront-backend/internal/tenants"
	"github.com/angelmondragon/storefront-backend/internal/wallet"
	gatewaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

const gatewayReplayScope = "gateway-webhook"

// Infra holds the connected clients. Redis, Notifications and Square are
// optional: without Redis the in-flight fulfillment guard is a no-op, without
// a topic notifications are dropped and without Square card orders are
// rejected.
type Infra struct {
	DB            *db.Client
	Redis         *redis.Client
	Notifications *gcppubsub.Publisher
	Square        *square.Client
	Registerer    prometheus.Registerer
}

// Services is the wired service graph.
type Services struct {
	Tenants      *tenants.Resolver
	Cart         *cart.Service
	Inventory    *inventory.Reserver
	Wallet       *wallet.Service
	Outbox       *outbox.Service
	OutboxRepo   *outbox.Repository
	Reconciler   *settlement.Reconciler
	Fulfillment  *fulfillment.Service
	Emergency    *emergency.Service
	Orders       *orders.Service
	Checkout     *checkout.Service
	Gateway      *gatewaywebhook.Service
	GatewayGuard *gatewaywebhook.ReplayGuard
	CronMetrics  *metrics.CronJobMetrics
}

func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, infra Infra) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if infra.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	reg := infra.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	conn := infra.DB.DB()
	orderRepo := repo.NewOrders(conn)
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(reg)

	var notifier notifications.Sender = notifications.Nop{}
	if infra.Notifications != nil {
		publisher, err := notifications.NewPublisher(infra.Notifications, logg, cfg.PubSub.PublishTimeout)
		if err != nil {
			return nil, fmt.Errorf("notifications: %w", err)
		}
		notifier = publisher
	}

	supplierClient, err := supplier.NewClient(cfg.Supplier, logg, supplier.WithMetrics(fulfillmentMetrics))
	if err != nil {
		return nil, fmt.Errorf("supplier client: %w", err)
	}
	sealer, err := security.NewSealer(cfg.Fulfillment.RevealKey)
	if err != nil {
		return nil, fmt.Errorf("reveal sealer: %w", err)
	}

	tenantResolver, err := tenants.NewResolver(tenants.ResolverParams{
		Repository:      tenants.NewRepository(conn),
		Logger:          logg,
		AutoProvision:   cfg.FeatureFlags.AutoProvisionTenants,
		DefaultCurrency: cfg.Orders.DefaultCurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("tenant resolver: %w", err)
	}
	cartService, err := cart.NewService(cart.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	reserver, err := inventory.NewReserver(inventory.ReserverParams{
		Logger:  logg,
		Matcher: supplierClient,
		Policy:  inventory.NewReplenishPolicy(cfg.FeatureFlags),
	})
	if err != nil {
		return nil, fmt.Errorf("inventory reserver: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	walletService, err := wallet.NewService(wallet.ServiceParams{
		Repository: wallet.NewRepository(conn),
		Tx:         infra.DB,
		Logger:     logg,
		Outbox:     emitter,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}
	reconciler, err := settlement.NewReconciler(settlement.ReconcilerParams{
		DB:          infra.DB,
		Orders:      orderRepo,
		Wallet:      walletService,
		Outbox:      emitter,
		Logger:      logg,
		MaxAttempts: cfg.Fulfillment.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement reconciler: %w", err)
	}

	var locks fulfillment.Locker = fulfillment.NoopLocker{}
	if infra.Redis != nil {
		locks = fulfillment.NewRedisLocker(infra.Redis, cfg.Fulfillment.InFlightTTL)
	}
	fulfiller, err := fulfillment.NewService(fulfillment.ServiceParams{
		DB:         infra.DB,
		Orders:     orderRepo,
		Supplier:   supplierClient,
		Settlement: reconciler,
		Sealer:     sealer,
		Locks:      locks,
		Outbox:     emitter,
		Notifier:   notifier,
		Metrics:    fulfillmentMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment service: %w", err)
	}

	emergencyService, err := emergency.NewService(emergency.ServiceParams{
		Repository: emergency.NewRepository(conn),
		Tx:         infra.DB,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("emergency inventory: %w", err)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		DB:        infra.DB,
		Orders:    orderRepo,
		Inventory: reserver,
		Wallet:    walletService,
		Emergency: emergencyService,
		Codes:     fulfiller,
		Outbox:    emitter,
		Notifier:  notifier,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	checkoutParams := checkout.ServiceParams{
		DB:          infra.DB,
		Orders:      orderRepo,
		Tenants:     tenantResolver,
		Cart:        cartService,
		Supplier:    supplierClient,
		Inventory:   reserver,
		Wallet:      walletService,
		Fulfillment: fulfiller,
		Gateway:     reconciler,
		Outbox:      emitter,
		Notifier:    notifier,
		Config:      cfg.Orders,
		Logger:      logg,
	}
	if infra.Square != nil {
		charger, err := payments.NewSquareCharger(infra.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square charger: %w", err)
		}
		checkoutParams.Cards = charger
	}
	checkoutService, err := checkout.NewService(checkoutParams)
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	gatewayService, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Settlement:  reconciler,
		Fulfillment: fulfiller,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway webhook: %w", err)
	}

	services := &Services{
		Tenants:     tenantResolver,
		Cart:        cartService,
		Inventory:   reserver,
		Wallet:      walletService,
		Outbox:      emitter,
		OutboxRepo:  outboxRepo,
		Reconciler:  reconciler,
		Fulfillment: fulfiller,
		Emergency:   emergencyService,
		Orders:      orderService,
		Checkout:    checkoutService,
		Gateway:     gatewayService,
		CronMetrics: metrics.NewCronJobMetrics(reg),
	}
	if infra.Redis != nil {
		guard, err := gatewaywebhook.NewReplayGuard(infra.Redis, cfg.Gateway.IdempotencyTTL, gatewayReplayScope)
		if err != nil {
			return nil, fmt.Errorf("gateway replay guard: %w", err)
		}
		services.GatewayGuard = guard
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"cards":         infra.Square != nil,
		"notifications": infra.Notifications != nil,
		"inFlightGuard": infra.Redis != nil,
	}), "service graph ready")
	return services, nil
}
