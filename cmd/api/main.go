package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentpay/config"
	"agentpay/internal/adapter/cardnetwork"
	"agentpay/internal/adapter/chain"
	"agentpay/internal/adapter/custody"
	httpHandler "agentpay/internal/adapter/http/handler"
	"agentpay/internal/adapter/merchantapi"
	pgStorage "agentpay/internal/adapter/storage/postgres"
	redisStorage "agentpay/internal/adapter/storage/redis"
	"agentpay/internal/core/ports"
	"agentpay/internal/service"
	"agentpay/internal/settlement"
	"agentpay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("agentpay-api", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("settlement", cfg.Settlement.Mode).
		Msg("Starting AgentPay")

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

	// Initialize chain RPC client
	chainClient, err := chain.New(ctx, cfg.Chain, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}
	defer chainClient.Close()
	log.Info().Str("network", cfg.Chain.Network).Msg("Chain RPC connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	agentKeyRepo := pgStorage.NewAgentKeyRepo(pool)
	policyRepo := pgStorage.NewPolicyRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	productCache := redisStorage.NewProductCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize outbound clients
	custodyClient := custody.NewClient(cfg.Custody, log)
	storeClient := merchantapi.NewClient(cfg.Catalog.Timeout, log)

	// Select settlement strategy
	var strategy ports.SettlementStrategy
	switch cfg.Settlement.Mode {
	case "connect":
		cardClient := cardnetwork.NewClient(cfg.CardNetwork, log)
		strategy, err = settlement.NewConnectStrategy(cardClient, custodyClient, chainClient, cfg.Chain, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize connect settlement strategy")
		}
	default:
		strategy = settlement.NewFacilitatorStrategy(custodyClient, cfg.Facilitator, cfg.Chain, log)
	}

	// Initialize business services
	spendingSvc := service.NewSpendingService(policyRepo, txRepo, log)
	catalogSvc := service.NewCatalogService(merchantRepo, storeClient, productCache, cfg.Catalog.CacheTTL, log)
	walletSvc := service.NewWalletService(walletRepo, txRepo, chainClient, log)
	purchaseSvc := service.NewPurchaseService(
		walletRepo,
		merchantRepo,
		txRepo,
		orderRepo,
		catalogSvc,
		spendingSvc,
		chainClient,
		strategy,
		storeClient,
		transactor,
		cfg.Settlement.Timeout,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PurchaseSvc:    purchaseSvc,
		WalletSvc:      walletSvc,
		CatalogSvc:     catalogSvc,
		MerchantRepo:   merchantRepo,
		AgentKeyRepo:   agentKeyRepo,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

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
