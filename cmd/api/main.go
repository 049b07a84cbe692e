package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/events"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/metrics"
	middlewareCustom "github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/providers"
	"github.com/BradenHooton/sentinel/internal/repositories"
	"github.com/BradenHooton/sentinel/internal/routes"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		logger.Warn("invalid log level, using info", slog.String("log_level", cfg.Server.LogLevel))
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Signal Store is optional; without it the engine runs on in-memory state only
	var (
		db           *database.DB
		intelStore   services.IntelligenceStore
		orderStore   services.OrderHistoryStore
		decisionRepo services.DecisionStore
		eventRepo    services.EventStore
		health       routes.HealthChecker
	)
	if cfg.Database.HasPassword() {
		db, err = database.NewConnection(context.Background(), &cfg.Database, logger)
		switch {
		case errors.Is(err, database.ErrMisconfigured):
			logger.Error("signal store misconfigured, continuing without persistence", slog.Any("error", err))
			db = nil
		case err != nil:
			logger.Warn("signal store unreachable, continuing without persistence", slog.Any("error", err))
			db = nil
		}
	} else {
		logger.Warn("DB_PASSWORD not set, running without a signal store")
	}
	if db != nil {
		intelStore = repositories.NewIntelligenceRepository(db)
		orderStore = repositories.NewOrderHistoryRepository(db)
		decisionRepo = repositories.NewSecurityDecisionRepository(db)
		eventRepo = repositories.NewSecurityEventRepository(db)
		health = db
	}

	// Reputation providers; a provider without a credential stays disabled
	httpClient := providers.NewHTTPClient()
	provs := []providers.Provider{
		providers.NewIPQualityScore(cfg.Providers.IPQualityScoreKey, "", httpClient),
		providers.NewAbuseIPDB(cfg.Providers.AbuseIPDBKey, "", httpClient),
		providers.NewIPInfo(cfg.Providers.IPInfoToken, "", httpClient),
	}
	for _, p := range provs {
		logger.Info("reputation provider", slog.String("provider", p.Name()), slog.Bool("enabled", p.Enabled()))
	}

	// Optional kafka fan-out
	var (
		publisher services.EventPublisher
		producer  *events.Producer
	)
	if len(cfg.Events.Brokers) > 0 {
		producer = events.NewProducer(cfg.Events.Brokers, cfg.Events.Topic, logger)
		publisher = producer
	}

	clock := services.SystemClock()
	auditLogger := pkglogger.NewSecurityAuditLogger(logger, cfg.Server.Env)

	// Initialize services
	auditService := services.NewAuditService(decisionRepo, eventRepo, publisher, auditLogger, logger, services.AuditConfig{
		QueueSize:    cfg.Audit.QueueSize,
		WriteTimeout: 5 * time.Second,
	})

	guard := services.NewBruteForceGuard(services.GuardConfig{
		MaxAttemptsPerIP:      cfg.BruteForce.MaxAttemptsPerIP,
		IPWindow:              cfg.BruteForce.IPWindow,
		IPBlockDuration:       cfg.BruteForce.IPBlockDuration,
		MaxAttemptsPerAccount: cfg.BruteForce.MaxAttemptsPerAccount,
		AccountWindow:         cfg.BruteForce.AccountWindow,
		AccountBlockDuration:  cfg.BruteForce.AccountBlockDuration,
		MultiAccountThreshold: cfg.BruteForce.MultiAccountThreshold,
		TrackingWindow:        cfg.BruteForce.TrackingWindow,
		StuffingBlockDuration: cfg.BruteForce.StuffingBlockDuration,
		SweepInterval:         cfg.BruteForce.SweepInterval,
	}, clock, auditService, logger)

	intelService := services.NewIntelligenceService(intelStore, provs, services.IntelligenceConfig{
		SuspiciousTTL:   cfg.Intelligence.SuspiciousTTL,
		CleanTTL:        cfg.Intelligence.CleanTTL,
		ProviderTimeout: cfg.Providers.Timeout,
		CacheSize:       cfg.Intelligence.CacheSize,
		Precedence:      services.DefaultPrecedence,
	}, clock, logger)

	fraudScorer := services.NewFraudScorer(orderStore, clock, logger, cfg.Server.Env)

	engine := services.NewDecisionEngine(intelService, guard, auditService, services.DecisionConfig{
		TrustedCountries:         cfg.Decision.TrustedCountries,
		BlacklistBlockConfidence: cfg.Decision.BlacklistBlockConfidence,
	}, clock)

	// Initialize handlers
	h := routes.Handlers{
		Intelligence: handlers.NewIntelligenceHandler(intelService, logger),
		Login:        handlers.NewLoginHandler(guard, clock.Now),
		Orders:       handlers.NewOrderHandler(fraudScorer, logger),
		Decisions:    handlers.NewDecisionHandler(engine, auditService, logger),
	}

	ipConfig, invalid := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	for _, cidr := range invalid {
		logger.Warn("ignoring invalid trusted proxy", slog.String("cidr", cidr))
	}

	// Background pool and runtime stats
	statsCtx, statsCancel := context.WithCancel(context.Background())
	defer statsCancel()
	var pool *pgxpool.Pool
	if db != nil {
		pool = db.Pool
	}
	go metrics.StartPoolStatsCollector(statsCtx, pool, 15*time.Second)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.RequestContext(ipConfig))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, h, routes.Options{
		Tokens:    auth.NewTokenValidator(cfg.Auth.TokenSecret),
		IPConfig:  ipConfig,
		RateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.RateLimit},
		Health:    health,
		Logger:    logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	statsCancel()
	guard.Close()
	auditService.Close()
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to close kafka producer", slog.Any("error", err))
		}
	}
	if db != nil {
		db.Close()
	}

	logger.Info("server stopped gracefully")
}
