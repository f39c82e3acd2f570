package handler

import (
	"pesos-ledger/internal/adapter/http/middleware"
	redisStore "pesos-ledger/internal/adapter/storage/redis"
	"pesos-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	CheckoutSvc    ports.CheckoutService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	InternalAPIKey string // empty = internal checkout routes disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	// --- User-facing wallet routes (JWT) ---
	walletHandler := NewWalletHandler(deps.LedgerSvc, deps.ReportingSvc)
	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("/balance", rl("wallet"), walletHandler.GetBalance)
		wallet.GET("/movements", rl("wallet"), walletHandler.ListMovements)
		wallet.POST("/transfer", rl("transfer"), walletHandler.Transfer)
	}

	// --- Back-office routes (JWT + admin role) ---
	adminHandler := NewAdminHandler(deps.LedgerSvc, deps.ReportingSvc)
	admin := v1.Group("/admin/wallet", jwtAuth, middleware.AdminRequired())
	{
		admin.POST("/credit", rl("admin"), adminHandler.Credit)
		admin.POST("/debit", rl("admin"), adminHandler.Debit)
		admin.PUT("/:user_id/block", rl("admin"), adminHandler.SetBlocked)
		admin.GET("/movements", rl("admin"), adminHandler.ListMovements)
		admin.GET("/movements/export", rl("export"), adminHandler.ExportMovements)
		admin.GET("/reports/anomalies", rl("admin"), adminHandler.Anomalies)
		admin.GET("/reports/expiring-credits", rl("admin"), adminHandler.ExpiringCredits)
		admin.GET("/reports/stale-reservations", rl("admin"), adminHandler.StaleReservations)
	}

	// --- Service-to-service checkout routes (shared API key) ---
	if deps.InternalAPIKey != "" {
		checkoutHandler := NewCheckoutHandler(deps.CheckoutSvc)
		checkout := v1.Group("/internal/checkout", middleware.InternalAuth(deps.InternalAPIKey))
		{
			checkout.POST("/reserve", rl("checkout"), checkoutHandler.Reserve)
			checkout.POST("/:movement_id/attach", rl("checkout"), checkoutHandler.Attach)
			checkout.POST("/:movement_id/revert", rl("checkout"), checkoutHandler.Revert)
		}
	}

	return r
}
