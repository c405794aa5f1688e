package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	walletcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/wallet"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface. Nil stores disable the
// middleware that needs them.
type Deps struct {
	DB           pinger
	Cache        pinger
	Idempotency  redis.IdempotencyStore
	RateLimits   middleware.RateLimitStore
	Tenants      middleware.TenantResolver
	Checkout     ordercontrollers.OrderPlacer
	Orders       ordercontrollers.OrderService
	Fulfillment  ordercontrollers.FulfillmentRetrier
	Cart         cartcontrollers.Service
	Wallet       walletcontrollers.Service
	Gateway      webhookcontrollers.GatewayWebhookService
	GatewayGuard webhookcontrollers.GatewayReplayGuard
	Metrics      *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	orderPolicy := middleware.NewRateLimitPolicy(
		"orders",
		cfg.RateLimit.OrdersWindow,
		cfg.RateLimit.OrdersIPLimit,
		cfg.RateLimit.OrdersSubjectLimit,
	)
	idempotent := middleware.Idempotency(deps.Idempotency, middleware.StandardIdempotency, logg)
	critical := middleware.Idempotency(deps.Idempotency, middleware.CriticalIdempotency, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/gateway", webhookcontrollers.GatewayWebhook(deps.Gateway, cfg.Gateway.WebhookSecret, deps.GatewayGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.TenantContext(deps.Tenants, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
				r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(middleware.RateLimit(orderPolicy, deps.RateLimits, logg), critical).
					Post("/", ordercontrollers.Create(deps.Checkout, logg))
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
				r.With(critical).Post("/{orderId}/retry", ordercontrollers.Retry(deps.Fulfillment, logg))
				r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.CustomerCancel(deps.Orders, logg))
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", walletcontrollers.Balance(deps.Wallet, logg))
				r.Get("/transactions", walletcontrollers.Transactions(deps.Wallet, logg))
			})

			r.Route("/merchant", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleMerchant))
				r.Route("/orders/{orderId}", func(r chi.Router) {
					r.With(idempotent).Post("/approve", ordercontrollers.Approve(deps.Orders, logg))
					r.With(idempotent).Post("/reject", ordercontrollers.Reject(deps.Orders, logg))
					r.With(idempotent).Post("/cancel", ordercontrollers.MerchantCancel(deps.Orders, logg))
					r.With(critical).Post("/refund", ordercontrollers.Refund(deps.Orders, logg))
				})
				r.With(critical).Post("/wallets/{customerId}/top-up", walletcontrollers.TopUp(deps.Wallet, logg))
			})
		})
	})

	return r
}
