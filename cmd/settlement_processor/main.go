package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dalasi-wallet-core/internal/config"
	datamongo "github.com/dalasi-wallet-core/internal/data/mongo"
	"github.com/dalasi-wallet-core/internal/data/postgres"
	"github.com/dalasi-wallet-core/internal/logger"
	"github.com/dalasi-wallet-core/internal/notification"
	"github.com/dalasi-wallet-core/internal/platform/messaging/consumers"
	"github.com/dalasi-wallet-core/internal/platform/messaging/producers"
	"github.com/dalasi-wallet-core/internal/platform/metrics"
	"github.com/dalasi-wallet-core/internal/platform/persistence"
	"github.com/dalasi-wallet-core/internal/providers"
	"github.com/dalasi-wallet-core/internal/reconciliation"
	"github.com/dalasi-wallet-core/internal/settlement/components"
	"github.com/dalasi-wallet-core/internal/settlement/consumer"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("settlement_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	// Repositories
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	conversionRepo := postgres.NewConversionRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	journalRepo := datamongo.NewJournalRepository(log, mongoDB.Database())
	eventRepo := datamongo.NewProviderEventRepository(log, mongoDB.Database())

	instruments := metrics.New()

	// Provider adapters
	registry := providers.NewRegistry(log, &cfg.Providers)

	// Kafka consumer for settlement tasks
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer might be nil if DLQTopic is not configured. Handler is nil-safe.

	notificationProducer, err := producers.NewNotificationProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize notification producer", "error", err)
		os.Exit(1)
	}

	// The reconciliation worker re-enqueues verdicts as settlement tasks so
	// swept transactions settle through the same path as webhooks.
	taskProducer, err := producers.NewSettlementTaskProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize settlement task producer", "error", err)
		os.Exit(1)
	}

	processingService := components.CreateProcessingService(
		postgresDB,
		walletRepo,
		transactionRepo,
		conversionRepo,
		outboxRepo,
		journalRepo,
		eventRepo,
		registry,
		instruments,
		log,
		cfg,
	)

	settlementTaskHandler := consumer.NewSettlementTaskHandler(
		log,
		processingService,
		dlqProducer,
	)

	// Outbox poller pushing settlement outcomes to the notifications topic
	eventPublisher := notification.NewEventPublisher(
		outboxRepo,
		notificationProducer,
		log,
	)
	poller := notification.NewPoller(
		&cfg.Outbox,
		outboxRepo,
		eventPublisher,
		log,
	)

	// Reconciliation worker for transactions stuck in PROVIDER_PENDING
	failureRecorder := components.NewFailureRecorder(
		postgresDB,
		transactionRepo,
		components.NewWalletManager(walletRepo, log),
		components.NewOutboxManager(outboxRepo, walletRepo, log),
		log,
	)
	reconWorker := reconciliation.NewWorker(
		&cfg.Reconciliation,
		transactionRepo,
		eventRepo,
		registry,
		failureRecorder,
		taskProducer,
		instruments,
		log,
	)

	errChan := make(chan error, 2)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.SettlementTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.SettlementTopic, cfg.Kafka.ConsumerGroup, settlementTaskHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Reconciliation Worker",
			"sweep_interval", cfg.Reconciliation.SweepInterval.String(),
			"pending_timeout", cfg.Reconciliation.PendingTimeout.String(),
		)
		reconWorker.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	// Drain the worker pool before closing its downstream dependencies
	if wpService, ok := processingService.(*service.WorkerPoolProcessingService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	if err = notificationProducer.Close(); err != nil {
		log.Error("Error closing notification producer", "error", err)
	}

	if err = taskProducer.Close(); err != nil {
		log.Error("Error closing settlement task producer", "error", err)
	}

	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Settlement Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Settlement Processor shutdown completed with errors")
	} else {
		log.Info("Settlement Processor shutdown completed successfully")
	}
}
