package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/kiggyshop-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/kiggyshop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/kiggyshop-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/kiggyshop-backend/internal/checkout"
	"github.com/angelmondragon/kiggyshop-backend/internal/fulfillment"
	"github.com/angelmondragon/kiggyshop-backend/internal/orders"
	"github.com/angelmondragon/kiggyshop-backend/internal/stock"
	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/kiggyshop-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer depends on.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type WebhookVerifier interface {
	VerifyAndRoute(payload []byte, signature string) (*fulfillment.CheckoutCompleted, error)
}

type Fulfiller interface {
	Fulfill(ctx context.Context, in fulfillment.CheckoutCompleted) (*fulfillment.Result, error)
	FlagUnshippable(ctx context.Context, in *fulfillment.UnshippableError) error
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	gatherer prometheus.Gatherer,
	shopMetrics *metrics.ShopMetrics,
	stockService stock.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	webhookVerifier WebhookVerifier,
	fulfiller Fulfiller,
	webhookGuard WebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.Checkout.RateWindow, cfg.Checkout.RateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisStore,
		}))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stock", controllers.StockList(stockService, logg))
		r.Get("/stock/{itemID}", controllers.StockGet(stockService, logg))

		r.With(
			middleware.RateLimit(checkoutPolicy, redisStore, logg),
			middleware.Idempotency(redisStore, logg, middleware.ReplayWindow),
		).Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(webhookVerifier, fulfiller, webhookGuard, shopMetrics, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin, logg))
		idempotent := r.With(middleware.Idempotency(redisStore, logg, middleware.ReplayWindow))

		r.Get("/stock", controllers.StockList(stockService, logg))
		idempotent.Put("/stock", controllers.AdminStockUpsert(stockService, logg))
		r.Delete("/stock/{itemID}", controllers.AdminStockDelete(stockService, logg))

		r.Get("/orders", controllers.AdminOrders(ordersService, logg))
		r.Get("/orders/{orderID}", controllers.AdminOrderDetail(ordersService, logg))
		r.Delete("/orders/{orderID}", controllers.AdminOrderDelete(ordersService, logg))
		r.With(middleware.Idempotency(redisStore, logg, middleware.ShipReplayWindow)).
			Put("/orders/{orderID}/ship", controllers.AdminOrderShip(ordersService, logg))
	})

	return r
}
