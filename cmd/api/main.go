package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pesos-ledger/config"
	httpHandler "pesos-ledger/internal/adapter/http/handler"
	pgStorage "pesos-ledger/internal/adapter/storage/postgres"
	redisStorage "pesos-ledger/internal/adapter/storage/redis"
	"pesos-ledger/internal/core/ports"
	"pesos-ledger/internal/service"
	"pesos-ledger/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Pesos wallet ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	movementRepo := pgStorage.NewMovementRepo(pool)
	auditRepo := pgStorage.NewAuditLogRepo(pool)
	userRepo := pgStorage.NewUserRepo(pool)
	settingsRepo := pgStorage.NewSettingsRepo(pool, cfg.Wallet.ExpirationDays)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	reservationCache := redisStorage.NewReservationCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	ledgerSvc := service.NewLedgerService(walletRepo, movementRepo, auditRepo, userRepo, settingsRepo, transactor, log)
	checkoutSvc := service.NewCheckoutService(walletRepo, movementRepo, reservationCache, transactor, log)
	reportingSvc := service.NewReportingService(
		walletRepo,
		movementRepo,
		transactor,
		cfg.Wallet.ReservationAlertWindow,
		cfg.Wallet.DefaultPageSize,
		cfg.Wallet.MaxPageSize,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		CheckoutSvc:    checkoutSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		InternalAPIKey: cfg.Server.InternalAPIKey,
		Logger:         log,
	})

	if cfg.Server.InternalAPIKey == "" {
		log.Warn().Msg("internal API key not set, checkout routes disabled")
	}

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
