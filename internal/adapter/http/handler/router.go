package handler

import (
	"agentpay/internal/adapter/http/middleware"
	redisStore "agentpay/internal/adapter/storage/redis"
	"agentpay/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PurchaseSvc    ports.PurchaseService
	WalletSvc      ports.WalletService
	CatalogSvc     ports.CatalogService
	MerchantRepo   ports.MerchantRepository
	AgentKeyRepo   ports.AgentKeyRepository
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis + chain RPC)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

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

	// All API routes authenticate with the agent's bearer key.
	agentAuth := middleware.AgentKeyAuth(deps.AgentKeyRepo, deps.Logger)
	v1 := r.Group("/api/v1", agentAuth)

	purchaseHandler := NewPurchaseHandler(deps.PurchaseSvc)
	v1.POST("/purchases", rl("purchases"), purchaseHandler.Create)

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", rl("wallet"), walletHandler.GetBalance)
		wallet.GET("/transactions", rl("wallet"), walletHandler.ListTransactions)
	}

	merchantHandler := NewMerchantHandler(deps.MerchantRepo, deps.CatalogSvc)
	merchants := v1.Group("/merchants")
	{
		merchants.GET("", rl("catalog"), merchantHandler.List)
		merchants.GET("/:id/products/:product_id", rl("catalog"), merchantHandler.GetProduct)
	}

	return r
}
