package components

import (
	"log/slog"

	"github.com/dalasi-wallet-core/internal/config"
	"github.com/dalasi-wallet-core/internal/domain/conversion"
	"github.com/dalasi-wallet-core/internal/domain/journal"
	"github.com/dalasi-wallet-core/internal/domain/outbox"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/platform/persistence"
	"github.com/dalasi-wallet-core/internal/providers/cardissuer"
	"github.com/dalasi-wallet-core/internal/providers/mobilemoney"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

// CreateProcessingService creates a new ProcessingService with all its dependencies.
func CreateProcessingService(
	pgDB *persistence.PostgresDB,
	walletRepo wallet.Repository,
	transactionRepo transaction.Repository,
	conversionRepo conversion.Repository,
	outboxRepo outbox.Repository,
	journalRepo journal.Repository,
	eventRepo provider.EventRepository,
	providers service.ProviderResolver,
	metrics service.Instrumentation,
	logger *slog.Logger,
	cfg *config.Config,
) service.ProcessingService {
	validator := NewIntentValidator(walletRepo, logger)
	walletManager := NewWalletManager(walletRepo, logger)
	outboxManager := NewOutboxManager(outboxRepo, walletRepo, logger)
	journalWriter := NewJournalWriter(journalRepo, logger)
	failureRecorder := NewFailureRecorder(pgDB, transactionRepo, walletManager, outboxManager, logger)

	// Transaction types that leave the platform route to a default adapter
	// unless the task names one explicitly.
	defaultProviders := map[shared.TransactionType]string{
		shared.TransactionTypeTopUp:        mobilemoney.ProviderName,
		shared.TransactionTypeBankTransfer: mobilemoney.ProviderName,
		shared.TransactionTypeCardTopUp:    cardissuer.ProviderName,
		shared.TransactionTypeCardPayment:  cardissuer.ProviderName,
	}

	baseService := service.NewSettlementService(
		pgDB,
		transactionRepo,
		conversionRepo,
		eventRepo,
		validator,
		walletManager,
		journalWriter,
		outboxManager,
		failureRecorder,
		providers,
		defaultProviders,
		metrics,
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)

	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
