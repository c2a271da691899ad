package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/config"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/platform/messaging/producers"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

// Instrumentation receives sweep observations
type Instrumentation interface {
	ObserveReconciliationRun(result string)
	ObserveSwept(count int)
	ObserveFlagged()
	ObservePendingAge(seconds float64)
}

// Worker sweeps transactions stuck in PROVIDER_PENDING past the configured
// timeout. It asks the provider for the authoritative status and feeds the
// answer back through the settlement engine as a synthetic provider event, so
// reconciliation and webhooks share one settlement path.
type Worker struct {
	transactionRepo transaction.Repository
	eventRepo       provider.EventRepository
	providers       service.ProviderResolver
	failureRecorder service.FailureRecorder
	taskProducer    producers.MessagePublisher
	metrics         Instrumentation
	logger          *slog.Logger
	sweepInterval   time.Duration
	pendingTimeout  time.Duration
	batchSize       int
}

func NewWorker(
	cfg *config.ReconciliationConfig,
	transactionRepo transaction.Repository,
	eventRepo provider.EventRepository,
	providers service.ProviderResolver,
	failureRecorder service.FailureRecorder,
	taskProducer producers.MessagePublisher,
	metrics Instrumentation,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		transactionRepo: transactionRepo,
		eventRepo:       eventRepo,
		providers:       providers,
		failureRecorder: failureRecorder,
		taskProducer:    taskProducer,
		metrics:         metrics,
		logger:          logger,
		sweepInterval:   cfg.SweepInterval,
		pendingTimeout:  cfg.PendingTimeout,
		batchSize:       cfg.BatchSize,
	}
}

// Start begins sweeping until context is canceled
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting reconciliation worker",
		"sweep_interval", w.sweepInterval.String(),
		"pending_timeout", w.pendingTimeout.String(),
		"batch_size", w.batchSize,
	)
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconciliation worker stopping due to context cancellation")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("Reconciliation sweep failed", "error", err)
				w.observeRun("error")
			} else {
				w.observeRun("ok")
			}
		}
	}
}

// Sweep runs one reconciliation pass over timed-out pending transactions.
func (w *Worker) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-w.pendingTimeout)
	pending, err := w.transactionRepo.ListPendingOlderThan(ctx, cutoff, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list timed-out pending transactions: %w", err)
	}

	if len(pending) == 0 {
		w.logger.Debug("No timed-out pending transactions found")
		return nil
	}

	w.logger.Info("Reconciling timed-out pending transactions", "count", len(pending), "cutoff", cutoff)

	for _, txn := range pending {
		if w.metrics != nil {
			w.metrics.ObservePendingAge(time.Since(txn.UpdatedAt).Seconds())
		}
		if err := w.reconcileOne(ctx, txn); err != nil {
			w.logger.Error("Failed to reconcile transaction",
				"transaction_id", txn.ID.String(),
				"error", err,
			)
		}
	}

	if w.metrics != nil {
		w.metrics.ObserveSwept(len(pending))
	}
	return nil
}

func (w *Worker) reconcileOne(ctx context.Context, txn *transaction.Transaction) error {
	logger := w.logger.With("transaction_id", txn.ID.String())

	// A transaction the provider never acknowledged has nothing to query;
	// its pending state can only be a lost initiate, so fail it outright.
	if !txn.ProviderAcked || txn.ProviderRef == "" {
		logger.Warn("Pending transaction was never acknowledged by provider, failing with timeout")
		return w.failureRecorder.RecordFailure(ctx, txn, shared.FailureReasonPendingTimeout)
	}

	adapter, err := w.providers.Get(txn.Provider)
	if err != nil {
		logger.Error("No adapter for pending transaction's provider", "provider", txn.Provider, "error", err)
		return w.flag(ctx, logger, txn)
	}

	outcome, err := adapter.ReconcileStatus(ctx, provider.Reference{
		Provider:    txn.Provider,
		ProviderRef: txn.ProviderRef,
	})
	if err != nil {
		logger.Warn("Provider status query failed, flagging for review", "provider", txn.Provider, "error", err)
		return w.flag(ctx, logger, txn)
	}

	switch outcome {
	case provider.OutcomeSettled, provider.OutcomeFailed:
		return w.emitSyntheticEvent(ctx, logger, txn, outcome)
	case provider.OutcomeAccepted:
		// The provider is still working on it. Leave it pending; the next
		// sweep picks it up again.
		logger.Info("Provider still processing, leaving transaction pending")
		return nil
	default:
		logger.Warn("Provider returned unknown status, flagging for review", "outcome", string(outcome))
		return w.flag(ctx, logger, txn)
	}
}

// emitSyntheticEvent records the reconciled outcome as a provider event and
// queues it for the settlement engine, exactly as a webhook delivery would.
func (w *Worker) emitSyntheticEvent(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction, outcome provider.Outcome) error {
	event := &provider.Event{
		ID:            uuid.New(),
		Provider:      txn.Provider,
		ProviderRef:   txn.ProviderRef,
		Kind:          provider.EventKindTransaction,
		TransactionID: txn.ID,
		Outcome:       outcome,
		ReceivedAt:    time.Now(),
	}
	if err := w.eventRepo.Save(ctx, event); err != nil {
		if errors.Is(err, provider.ErrDuplicateEvent) {
			// A webhook for the same delivery landed first; its task already
			// carries the outcome.
			logger.Info("Reconciled outcome already recorded by webhook, skipping")
			return nil
		}
		return fmt.Errorf("failed to save reconciled provider event: %w", err)
	}

	task := &shared.SettlementTask{
		Kind:          shared.TaskKindProviderEvent,
		TransactionID: txn.ID,
		EventID:       event.ID.String(),
		Provider:      txn.Provider,
		CorrelationID: txn.CorrelationID,
	}
	if err := w.taskProducer.Publish(ctx, txn.ID.String(), task); err != nil {
		return fmt.Errorf("failed to publish reconciled settlement task: %w", err)
	}

	logger.Info("Reconciled outcome queued for settlement",
		"provider", txn.Provider,
		"provider_ref", txn.ProviderRef,
		"outcome", string(outcome),
	)
	return nil
}

func (w *Worker) flag(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction) error {
	if txn.ReviewFlag {
		return nil
	}
	if err := w.transactionRepo.SetReviewFlag(ctx, txn.ID); err != nil {
		return fmt.Errorf("failed to flag transaction for review: %w", err)
	}
	if w.metrics != nil {
		w.metrics.ObserveFlagged()
	}
	logger.Warn("Transaction flagged for manual review")
	return nil
}

func (w *Worker) observeRun(result string) {
	if w.metrics != nil {
		w.metrics.ObserveReconciliationRun(result)
	}
}
