package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/danigamesx/barber-ai-sub000/internal/api/router"
	"github.com/danigamesx/barber-ai-sub000/internal/appointments"
	"github.com/danigamesx/barber-ai-sub000/internal/availability"
	"github.com/danigamesx/barber-ai-sub000/internal/billing"
	"github.com/danigamesx/barber-ai-sub000/internal/catalog"
	appconfig "github.com/danigamesx/barber-ai-sub000/internal/config"
	"github.com/danigamesx/barber-ai-sub000/internal/entitlements"
	"github.com/danigamesx/barber-ai-sub000/internal/http/handlers"
	"github.com/danigamesx/barber-ai-sub000/internal/ledger"
	"github.com/danigamesx/barber-ai-sub000/internal/observability/metrics"
	"github.com/danigamesx/barber-ai-sub000/internal/payments"
	"github.com/danigamesx/barber-ai-sub000/internal/schedule"
	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

func main() {
	// Load .env in development; the file is absent in production images.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := connectRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	metricsHandler, bookingMetrics, paymentMetrics := setupMetrics()

	// Repositories.
	settingsStore := tenants.NewStore(redisClient)
	catalogRepo := catalog.NewRepository(pool)
	scheduleRepo := schedule.NewRepository(pool)
	apptRepo := appointments.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	entitlementRepo := entitlements.NewRepository(pool)
	planRepo := billing.NewRepository(pool)
	sessionRepo := payments.NewSessionRepository(pool)
	processed := payments.NewProcessedTracker(pool)

	// Services.
	availabilitySvc := availability.NewService(scheduleRepo, apptRepo, cfg.SlotStep, logger)
	bookingSvc := appointments.NewService(apptRepo, settingsStore, catalogRepo, ledgerRepo, entitlementRepo, availabilitySvc, logger).
		WithMetrics(bookingMetrics)

	stripeGW, squareGW := setupGateways(cfg, logger)
	reconciler := payments.NewReconciler(sessionRepo, bookingSvc, entitlementRepo, planRepo, logger).
		WithMetrics(paymentMetrics)

	checkout := payments.NewCheckoutHandler(sessionRepo, stripeGW, squareGW, settingsStore,
		catalogRepo, ledgerRepo, availabilitySvc, reconciler, payments.PlanPricing{
			MonthlyCents: cfg.MonthlyPlanCents,
			AnnualCents:  cfg.AnnualPlanCents,
			Currency:     cfg.DefaultCurrency,
		}, logger).
		WithMetrics(paymentMetrics)

	routerCfg := &router.Config{
		Logger: logger,

		Appointments:   handlers.NewAppointmentsHandler(bookingSvc, logger),
		Availability:   handlers.NewAvailabilityHandler(availabilitySvc, catalogRepo, settingsStore, logger),
		Schedule:       handlers.NewScheduleHandler(scheduleRepo, logger),
		TenantSettings: handlers.NewTenantSettingsHandler(settingsStore, logger),
		Plan:           handlers.NewPlanHandler(planRepo, cfg.TrialDays, logger),

		Checkout:        checkout,
		PaymentRedirect: payments.NewRedirectHandler(sessionRepo, logger),
		StripeWebhook: payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, stripeGW,
			reconciler, processed, cfg.WebhookMaxBodySize, logger).WithMetrics(paymentMetrics),
		SquareWebhook: payments.NewSquareWebhookHandler(cfg.SquareWebhookKey, squareGW,
			reconciler, processed, cfg.WebhookMaxBodySize, logger).WithMetrics(paymentMetrics),

		PlanStates:      planRepo,
		OwnerAuthSecret: cfg.OwnerJWTSecret,

		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRatePerSec:  cfg.WebhookRatePerSec,
		WebhookBurst:       cfg.WebhookBurst,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupMetrics builds the process-wide Prometheus registry and the domain
// metric sets exported on /metrics.
func setupMetrics() (http.Handler, *metrics.BookingMetrics, *metrics.PaymentMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	booking := metrics.NewBookingMetrics(reg)
	payment := metrics.NewPaymentMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), booking, payment
}

// connectPostgresPool opens the pgx pool, returning nil when the URL is
// missing or the connection cannot be established.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	return pool
}

func connectRedis(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// setupGateways builds both payment gateways. An unconfigured gateway still
// exists so the checkout handler can report it as unavailable per tenant.
func setupGateways(cfg *appconfig.Config, logger *logging.Logger) (*payments.StripeGateway, *payments.SquareGateway) {
	stripe := payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL, logger).
		WithBaseURL(cfg.StripeBaseURL)

	squareBase := cfg.SquareBaseURL
	if squareBase == "" && cfg.SquareSandbox {
		squareBase = "https://connect.squareupsandbox.com"
	}
	square := payments.NewSquareGateway(cfg.SquareAccessToken, cfg.SquareLocationID, cfg.SquareSuccessURL, logger).
		WithBaseURL(squareBase)

	return stripe, square
}
