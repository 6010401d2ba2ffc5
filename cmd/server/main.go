package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dukerupert/vanir/internal"
	"github.com/dukerupert/vanir/internal/commission"
	"github.com/dukerupert/vanir/internal/gateway"
	"github.com/dukerupert/vanir/internal/handler/api"
	"github.com/dukerupert/vanir/internal/handler/webhook"
	"github.com/dukerupert/vanir/internal/middleware"
	"github.com/dukerupert/vanir/internal/notify"
	"github.com/dukerupert/vanir/internal/postgres"
	"github.com/dukerupert/vanir/internal/router"
	"github.com/dukerupert/vanir/internal/service"
	"github.com/dukerupert/vanir/internal/telemetry"
	"github.com/dukerupert/vanir/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := postgres.NewOrderStore(pool)

	// Initialize Stripe payment provider
	logger.Info("Initializing payment gateway...")
	gatewayConfig := gateway.StripeConfig{
		APIKey:        cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}
	provider, err := gateway.NewStripeProvider(gatewayConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize payment gateway: %w", err)
	}
	logger.Info("Payment gateway initialized", "test_mode", gatewayConfig.IsTestMode())

	// Initialize NATS event dispatcher
	logger.Info("Connecting to NATS...")
	dispatcher, err := notify.NewNATSDispatcher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer dispatcher.Close()
	logger.Info("NATS connected", "subject_prefix", cfg.NATS.SubjectPrefix)

	// Initialize commission calculator
	calculator, err := commission.NewRateCalculator(cfg.Commission.PlatformFeeRate, cfg.Commission.ProcessingFeeRate)
	if err != nil {
		return fmt.Errorf("invalid commission rates: %w", err)
	}
	logger.Info("Commission calculator initialized",
		"platform_fee_rate", cfg.Commission.PlatformFeeRate,
		"processing_fee_rate", cfg.Commission.ProcessingFeeRate)

	// Initialize supplier directory
	directory := service.NewMockDirectory() // TODO: replace with supplier-service-backed directory once its API ships

	// Initialize services
	orderService := service.NewOrderService(store, provider, directory, dispatcher, logger)
	fulfillmentService := service.NewFulfillmentService(store, provider, dispatcher, logger)
	reconciler := service.NewPaymentReconciler(store, calculator, dispatcher, logger)

	// Initialize business metrics
	telemetry.InitBusinessMetrics("vanir")

	// Initialize handlers
	orderHandler := api.NewOrderHandler(orderService, fulfillmentService)
	webhookHandler := webhook.NewGatewayHandler(provider, reconciler, cfg.Stripe.WebhookSecret)

	// Initialize middleware and router
	metrics := middleware.NewMetrics("vanir")

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		middleware.WithRequestLogger(logger),
	)

	// Metrics endpoint (protect via firewall in production)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})

	// Webhooks authenticate by signature, not actor headers
	r.Post("/webhooks/gateway", webhookHandler.HandleWebhook)

	// Order API
	apiGroup := r.Group(middleware.WithActor)
	apiGroup.Post("/api/v1/orders", orderHandler.Create)
	apiGroup.Get("/api/v1/orders/{id}", orderHandler.Get)
	apiGroup.Get("/api/v1/orders/number/{number}", orderHandler.GetByNumber)
	apiGroup.Patch("/api/v1/orders/{id}", orderHandler.Action)

	// Start the payment status poller
	if cfg.Poller.Enabled {
		poller := worker.NewPoller(store, provider, reconciler, worker.Config{
			PollInterval: cfg.Poller.PollInterval,
			SettleAfter:  cfg.Poller.SettleAfter,
			BatchSize:    cfg.Poller.BatchSize,
		}, logger)
		go func() {
			if err := poller.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("payment poller stopped", "error", err)
			}
		}()
	}

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting order pipeline server", "address", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
