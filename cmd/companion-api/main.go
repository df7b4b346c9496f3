// Package main is the entry point for the companion-api server.
// The API is called by the chat bot and by operators, never by end users
// directly; every protected route takes a service token.
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

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/jmylchreest/companion-api/internal/auth"
	"github.com/jmylchreest/companion-api/internal/cache"
	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/database"
	"github.com/jmylchreest/companion-api/internal/http/handlers"
	"github.com/jmylchreest/companion-api/internal/http/mw"
	"github.com/jmylchreest/companion-api/internal/http/routes"
	"github.com/jmylchreest/companion-api/internal/logging"
	"github.com/jmylchreest/companion-api/internal/metrics"
	"github.com/jmylchreest/companion-api/internal/plans"
	"github.com/jmylchreest/companion-api/internal/repository"
	"github.com/jmylchreest/companion-api/internal/service"
	"github.com/jmylchreest/companion-api/internal/shutdown"
	"github.com/jmylchreest/companion-api/internal/version"
)

const (
	requestTimeout           = 15 * time.Second
	webhookRequestsPerMinute = 300
)

func main() {
	// Local development convenience; a missing .env is not an error
	_ = godotenv.Load()

	logger := logging.SetDefault()

	logger.Info("starting companion-api", version.Get().LogAttrs()...)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(database.Options{
		DSN:            cfg.DatabaseURL,
		TursoURL:       cfg.TursoURL,
		TursoAuthToken: cfg.TursoAuthToken,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if schemaVersion, err := database.Ready(ctx, db); err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	// Plan catalog, optionally overridden from object storage
	planCatalog := plans.New(nil, logger)
	if cfg.PlansEnabled {
		s3cfg := plans.S3Config{
			Endpoint:  cfg.PlansEndpoint,
			Region:    cfg.PlansRegion,
			AccessKey: cfg.PlansAccessKey,
			SecretKey: cfg.PlansSecretKey,
			Bucket:    cfg.PlansBucket,
			Key:       cfg.PlansKey,
			CacheTTL:  cfg.PlansCacheTTL,
		}
		client, err := plans.NewS3Client(ctx, s3cfg)
		if err != nil {
			logger.Error("failed to create plans storage client", "error", err)
			os.Exit(1)
		}
		planCatalog.WithSource(plans.NewS3Source(client, s3cfg, nil, logger))
		if err := planCatalog.Reload(ctx); err != nil {
			// Built-in defaults stay in effect
			logger.Warn("failed to load plan overrides", "error", err)
		}
		logger.Info("plan overrides enabled", "bucket", cfg.PlansBucket, "key", cfg.PlansKey, "cache_ttl", cfg.PlansCacheTTL.String())
	}

	// Subscription view cache
	var viewCache cache.Cache
	if cfg.RedisEnabled() {
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "companion:",
		})
		if err == nil {
			err = redisCache.Health(ctx)
		}
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisCache.Close() }()
		viewCache = redisCache
		logger.Info("redis cache enabled", "addr", cfg.RedisAddr)
	} else {
		memoryCache := cache.NewMemory(nil, time.Minute, logger)
		defer func() { _ = memoryCache.Close() }()
		viewCache = memoryCache
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(cfg, repos, planCatalog, viewCache, nil, logger)

	if cfg.MaintenanceEnabled {
		go services.Maintenance.RunScheduled(ctx, cfg.MaintenanceInterval)
		logger.Info("maintenance sweep started",
			"interval", cfg.MaintenanceInterval.String(),
			"action_retention", cfg.MaintenanceActionRetention.String(),
		)
	}

	verifier := auth.NewTokenVerifier(cfg.ServiceTokenKey, cfg.ServiceTokenIssuer, nil)

	idle := shutdown.NewIdleMonitor(shutdown.Config{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz", "/metrics"},
		Busy:         services.Maintenance.Busy,
		Logger:       logger,
	})

	router := chi.NewRouter()

	router.Use(idle.Middleware)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(metrics.Middleware)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Request size limit (1MB)
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Callers are identified before rate limiting; HumaAuth rejects later
	rateCfg := mw.DefaultRateLimitConfig()
	rateCfg.CallerRequestsPerMinute = cfg.CallerRateLimit
	router.Use(mw.IdentifyCaller(verifier))
	router.Use(mw.RateLimitByCaller(rateCfg))

	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, verifier))

	routes.Register(api, &routes.Handlers{
		HealthCheck:  handlers.HealthCheck,
		ListPlans:    handlers.NewPlansHandler(planCatalog, logger).ListPlans,
		Livez:        handlers.Livez,
		Readyz:       handlers.NewReadyzHandler(handlers.DBCheckerFunc(func(ctx context.Context) (string, error) { return database.Ready(ctx, db) }), logger).Readyz,
		Subscription: handlers.NewSubscriptionHandler(services.Subscription, logger),
		Validation:   handlers.NewValidationHandler(services.Validator, logger),
		Admin:        handlers.NewAdminHandler(services.Subscription, services.Maintenance, planCatalog, logger),
	})

	// Prometheus scrape endpoint, admin tokens only
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(verifier))
		r.Use(mw.RequireAdmin())
		r.Handle("/metrics", metrics.Handler())
	})

	// Payment webhooks (signature verified by handler, not service auth)
	router.Group(func(r chi.Router) {
		r.Use(mw.RateLimitByIP(webhookRequestsPerMinute))

		if cfg.StripeEnabled() {
			stripeWebhook := handlers.NewStripeWebhookHandler(cfg.StripeSecretKey, cfg.StripeWebhookSecret, services.Subscription, logger)
			r.Post("/api/v1/webhooks/stripe", stripeWebhook.HandleWebhook)
			logger.Info("stripe webhook endpoint enabled")
		}
		if cfg.PaymentWebhooksEnabled() {
			paymentWebhook := handlers.NewPaymentWebhookHandler(cfg.PaymentWebhookSecret, services.Subscription, logger)
			r.Post("/api/v1/webhooks/payments", paymentWebhook.HandleWebhook)
			logger.Info("payment relay webhook endpoint enabled")
		}
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on signal or idle timeout
	idle.Start()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-sigChan:
			logger.Info("shutting down server")
		case <-idle.Idle():
			logger.Info("shutting down idle server")
		}
		idle.Stop()

		// Stops the maintenance loop
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
