package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/kiggyshop-backend/api/routes"
	"github.com/angelmondragon/kiggyshop-backend/internal/cart"
	"github.com/angelmondragon/kiggyshop-backend/internal/checkout"
	"github.com/angelmondragon/kiggyshop-backend/internal/fulfillment"
	"github.com/angelmondragon/kiggyshop-backend/internal/orders"
	"github.com/angelmondragon/kiggyshop-backend/internal/stock"
	stripewebhook "github.com/angelmondragon/kiggyshop-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db"
	"github.com/angelmondragon/kiggyshop-backend/pkg/instance"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/metrics"
	"github.com/angelmondragon/kiggyshop-backend/pkg/migrate"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/kiggyshop-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/kiggyshop-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 20 * time.Second
	readHeaderTimeout = 10 * time.Second
	webhookGuardScope = "stripe-webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shopMetrics := metrics.NewShopMetrics(registry)

	stripeClient, err := pkgstripe.NewClient(bootCtx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	gateway, err := pkgstripe.NewCheckoutGateway(pkgstripe.GatewayParams{
		Client:  stripeClient,
		Config:  cfg.Stripe,
		Logger:  logg,
		Observe: shopMetrics.ProviderCall,
	})
	if err != nil {
		return err
	}

	gormDB := dbClient.DB()
	stockRepo := stock.NewRepository(gormDB)
	stockService, err := stock.NewService(stockRepo, cfg.Stripe.Currency)
	if err != nil {
		return err
	}
	calculator, err := cart.NewCalculator(stockRepo, cfg.Checkout.MaxLines)
	if err != nil {
		return err
	}

	sessionRepo := checkout.NewRepository(gormDB)
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:       sessionRepo,
		Pricer:     calculator,
		Gateway:    gateway,
		Shipping:   cfg.Shipping,
		Currency:   cfg.Stripe.Currency,
		SessionTTL: cfg.Checkout.SessionTTL,
		Logger:     logg,
		Metrics:    shopMetrics,
	})
	if err != nil {
		return err
	}

	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	ordersRepo := orders.NewRepository(gormDB)
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, logg)
	if err != nil {
		return err
	}

	coordinator, err := fulfillment.NewCoordinator(fulfillment.Params{
		Tx:       dbClient,
		Sessions: sessionRepo,
		Orders:   ordersRepo,
		Stock:    stockRepo,
		Outbox:   outboxService,
		Logger:   logg,
		Metrics:  shopMetrics,
	})
	if err != nil {
		return err
	}

	verifier, err := stripewebhook.NewVerifier(stripeClient.SigningSecret(), 0)
	if err != nil {
		return err
	}
	webhookIdem, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return err
	}
	guard, err := webhookIdem.Scope(webhookGuardScope)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID("api"),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			shopMetrics,
			stockService,
			checkoutService,
			ordersService,
			verifier,
			coordinator,
			guard,
		),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
