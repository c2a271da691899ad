package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/dalasi-wallet-core/internal/api_gateway"
	"github.com/dalasi-wallet-core/internal/api_gateway/service"
	"github.com/dalasi-wallet-core/internal/config"
	datamongo "github.com/dalasi-wallet-core/internal/data/mongo"
	"github.com/dalasi-wallet-core/internal/data/postgres"
	"github.com/dalasi-wallet-core/internal/fx"
	"github.com/dalasi-wallet-core/internal/idempotency"
	"github.com/dalasi-wallet-core/internal/logger"
	"github.com/dalasi-wallet-core/internal/platform/messaging/producers"
	"github.com/dalasi-wallet-core/internal/platform/metrics"
	"github.com/dalasi-wallet-core/internal/platform/persistence"
	"github.com/dalasi-wallet-core/internal/providers"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisDB, err := persistence.NewRedisDB(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	taskProducer, err := producers.NewSettlementTaskProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize settlement task producer", "error", err)
		os.Exit(1)
	}

	instruments := metrics.New()

	// Repositories
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	conversionRepo := postgres.NewConversionRepository(log, postgresDB)
	cardRepo := postgres.NewCardRepository(log, postgresDB)
	eventRepo := datamongo.NewProviderEventRepository(log, mongoDB.Database())

	// Idempotency guard backed by Redis
	guard := idempotency.NewGuard(
		log,
		idempotency.NewRedisStore(redisDB.Client()),
		instruments,
		cfg.Redis.KeyTTL,
	)

	// Currency conversion
	usdGmdRate, err := decimal.NewFromString(cfg.FX.UsdGmdRate)
	if err != nil {
		log.Error("Invalid FX_USD_GMD_RATE", "value", cfg.FX.UsdGmdRate, "error", err)
		os.Exit(1)
	}
	feePolicy, err := fx.NewFeePolicy(cfg.FX.FeePolicy, cfg.FX.FeeFlat, cfg.FX.FeeBps)
	if err != nil {
		log.Error("Invalid FX fee policy", "error", err)
		os.Exit(1)
	}
	fxService := fx.NewService(log, fx.DefaultRates(usdGmdRate), feePolicy, cfg.FX.MarkupBps)

	registry := providers.NewRegistry(log, &cfg.Providers)

	// Services
	walletService := service.NewWalletService(log, walletRepo, transactionRepo)
	transactionService := service.NewTransactionService(log, postgresDB, transactionRepo, conversionRepo, walletRepo, fxService, guard, taskProducer)
	cardService := service.NewCardService(log, cardRepo, walletRepo, registry.CardIssuer())
	webhookService := service.NewWebhookService(log, registry, eventRepo, transactionRepo, cardRepo, guard, taskProducer)

	server := api_gateway.NewServer(log, cfg, walletService, transactionService, cardService, webhookService)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	postgresDB.Close()

	if err = taskProducer.Close(); err != nil {
		log.Error("Error closing settlement task producer", "error", err)
	}

	if err = redisDB.Close(); err != nil {
		log.Error("Error closing Redis connection", "error", err)
	}

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
