package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dalasi-wallet-core/internal/domain/conversion"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
)

// Instrumentation receives terminal-state and provider-call observations
type Instrumentation interface {
	ObserveTerminal(txType, status string)
	ObserveProviderCall(provider, result string)
}

// SettlementServiceImpl drives transactions through the settlement state
// machine: validation, reservation, the outbound provider call, and the
// webhook-confirmed terminal transition.
type SettlementServiceImpl struct {
	db               TxRunner
	transactionRepo  transaction.Repository
	conversionRepo   conversion.Repository
	eventRepo        provider.EventRepository
	validator        IntentValidator
	walletManager    WalletManager
	journalWriter    JournalWriter
	outboxManager    OutboxManager
	failureRecorder  FailureRecorder
	providers        ProviderResolver
	defaultProviders map[shared.TransactionType]string
	metrics          Instrumentation
	logger           *slog.Logger
}

func NewSettlementService(
	db TxRunner,
	transactionRepo transaction.Repository,
	conversionRepo conversion.Repository,
	eventRepo provider.EventRepository,
	validator IntentValidator,
	walletManager WalletManager,
	journalWriter JournalWriter,
	outboxManager OutboxManager,
	failureRecorder FailureRecorder,
	providers ProviderResolver,
	defaultProviders map[shared.TransactionType]string,
	metrics Instrumentation,
	logger *slog.Logger,
) ProcessingService {
	return &SettlementServiceImpl{
		db:               db,
		transactionRepo:  transactionRepo,
		conversionRepo:   conversionRepo,
		eventRepo:        eventRepo,
		validator:        validator,
		walletManager:    walletManager,
		journalWriter:    journalWriter,
		outboxManager:    outboxManager,
		failureRecorder:  failureRecorder,
		providers:        providers,
		defaultProviders: defaultProviders,
		metrics:          metrics,
		logger:           logger,
	}
}

// ProcessTask handles one settlement task. A nil return acknowledges the Kafka
// message; errors are returned only for conditions worth redelivering.
func (s *SettlementServiceImpl) ProcessTask(ctx context.Context, task *shared.SettlementTask) error {
	logger := s.logger
	if task.CorrelationID != "" {
		logger = s.logger.With("correlation_id", task.CorrelationID)
	}

	switch task.Kind {
	case shared.TaskKindIntent:
		return s.processIntent(ctx, logger, task)
	case shared.TaskKindProviderEvent:
		return s.applyProviderEvent(ctx, logger, task)
	default:
		logger.Error("Unknown settlement task kind", "kind", string(task.Kind))
		return nil // Unprocessable, acknowledge
	}
}

func (s *SettlementServiceImpl) processIntent(ctx context.Context, logger *slog.Logger, task *shared.SettlementTask) error {
	txn, err := s.transactionRepo.GetByID(ctx, task.TransactionID)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			logger.Error("Intent task references unknown transaction", "transaction_id", task.TransactionID.String())
			return nil
		}
		return err // Let Kafka retry
	}

	if txn.IsTerminal() {
		logger.Info("Intent already settled, skipping redelivery",
			"transaction_id", txn.ID.String(),
			"status", string(txn.Status),
		)
		return nil
	}

	logger.Info("Processing settlement intent",
		"transaction_id", txn.ID.String(),
		"type", string(txn.Type),
		"amount", txn.Amount,
		"currency", string(txn.Currency),
	)

	if err := s.validator.Validate(ctx, txn); err != nil {
		logger.Warn("Intent validation failed", "transaction_id", txn.ID.String(), "error", err)
		if recordErr := s.recordFailure(ctx, txn, mapValidationFailure(err)); recordErr != nil {
			return recordErr
		}
		return nil
	}

	switch txn.Type {
	case shared.TransactionTypeInternalTransfer, shared.TransactionTypeConversion,
		shared.TransactionTypeFee, shared.TransactionTypeRefund:
		return s.settleInternal(ctx, logger, txn)
	case shared.TransactionTypeTopUp, shared.TransactionTypeCardTopUp:
		return s.initiateCollection(ctx, logger, txn, task.Provider)
	case shared.TransactionTypeCardPayment, shared.TransactionTypeBankTransfer:
		return s.initiateDisbursement(ctx, logger, txn, task.Provider)
	default:
		logger.Error("No settlement path for transaction type", "type", string(txn.Type))
		if recordErr := s.recordFailure(ctx, txn, shared.FailureReasonUnknownError); recordErr != nil {
			return recordErr
		}
		return nil
	}
}

// settleInternal settles wallet-to-wallet movements in one database
// transaction: the reservation, its commit, and the destination credit take
// effect together or not at all.
func (s *SettlementServiceImpl) settleInternal(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction) error {
	creditAmount := txn.Amount - txn.Fee
	if txn.Type == shared.TransactionTypeConversion {
		rec, err := s.conversionRepo.GetByTransactionID(ctx, txn.ID)
		if err != nil {
			logger.Error("Conversion transaction missing conversion record", "transaction_id", txn.ID.String(), "error", err)
			return err
		}
		creditAmount = rec.ToAmount
	}

	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.walletManager.Reserve(ctx, tx, txn.Source.WalletID, txn.Amount); err != nil {
			return err
		}
		txnRepoTx := s.transactionRepo.WithTx(tx)
		if err := txnRepoTx.UpdateStatus(ctx, txn.ID, txn.Status, shared.TransactionStatusReserved, ""); err != nil {
			return err
		}
		if _, err := s.walletManager.CommitReservation(ctx, tx, txn.Source.WalletID, txn.Amount); err != nil {
			return err
		}
		if _, err := s.walletManager.Credit(ctx, tx, txn.Destination.WalletID, creditAmount); err != nil {
			return err
		}
		if err := txnRepoTx.UpdateStatus(ctx, txn.ID, shared.TransactionStatusReserved, shared.TransactionStatusSettled, ""); err != nil {
			return err
		}
		txn.Status = shared.TransactionStatusSettled
		return s.outboxManager.CreateOutboxEntry(ctx, tx, txn)
	})
	if err != nil {
		if isBusinessFailure(err) {
			if recordErr := s.recordFailure(ctx, txn, mapBalanceFailure(err)); recordErr != nil {
				return recordErr
			}
			return nil
		}
		if errors.Is(err, transaction.ErrInvalidStateTransition{}) {
			// Lost a race to a concurrent transition; the winner settled or
			// failed the transaction already.
			logger.Warn("Settlement race lost, skipping", "transaction_id", txn.ID.String())
			return nil
		}
		return err
	}

	s.finishTerminal(ctx, logger, txn)
	logger.Info("Internal settlement committed", "transaction_id", txn.ID.String())
	return nil
}

// initiateCollection requests an inbound movement (top-up) from the provider.
// No funds are reserved; the wallet is credited only when the provider
// confirms via webhook.
func (s *SettlementServiceImpl) initiateCollection(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction, providerName string) error {
	if txn.ProviderAcked {
		logger.Info("Collection already initiated, skipping redelivery",
			"transaction_id", txn.ID.String(),
			"provider", txn.Provider,
			"provider_ref", txn.ProviderRef,
		)
		return nil
	}

	adapter, err := s.resolveAdapter(txn, providerName)
	if err != nil {
		logger.Error("No provider adapter for collection", "transaction_id", txn.ID.String(), "error", err)
		if recordErr := s.recordFailure(ctx, txn, shared.FailureReasonProviderUnavailable); recordErr != nil {
			return recordErr
		}
		return nil
	}

	ref, err := adapter.Initiate(ctx, s.buildIntent(txn))
	s.observeProviderCall(adapter.Name(), err)
	if err != nil {
		return s.handleInitiateError(ctx, logger, txn, err)
	}

	if err := s.transactionRepo.MarkProviderAcked(ctx, txn.ID, ref.Provider, ref.ProviderRef); err != nil {
		return err
	}
	txn.MarkProviderAcked(ref.Provider, ref.ProviderRef)

	s.journal(ctx, logger, txn)
	logger.Info("Collection initiated with provider",
		"transaction_id", txn.ID.String(),
		"provider", ref.Provider,
		"provider_ref", ref.ProviderRef,
	)
	return nil
}

// initiateDisbursement reserves the source funds, then hands the movement to
// the provider. The reservation holds until the provider's webhook settles or
// fails the transaction.
func (s *SettlementServiceImpl) initiateDisbursement(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction, providerName string) error {
	adapter, err := s.resolveAdapter(txn, providerName)
	if err != nil {
		logger.Error("No provider adapter for disbursement", "transaction_id", txn.ID.String(), "error", err)
		if recordErr := s.recordFailure(ctx, txn, shared.FailureReasonProviderUnavailable); recordErr != nil {
			return recordErr
		}
		return nil
	}

	// A redelivered task resumes where the previous attempt stopped. The
	// reservation and the provider call each happen at most once; repeating
	// the reserve would strand a second hold in pending.
	if txn.Status == shared.TransactionStatusCreated {
		err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			if _, err := s.walletManager.Reserve(ctx, tx, txn.Source.WalletID, txn.Amount); err != nil {
				return err
			}
			return s.transactionRepo.WithTx(tx).UpdateStatus(ctx, txn.ID, shared.TransactionStatusCreated, shared.TransactionStatusReserved, "")
		})
		if err != nil {
			if isBusinessFailure(err) {
				if recordErr := s.recordFailure(ctx, txn, mapBalanceFailure(err)); recordErr != nil {
					return recordErr
				}
				return nil
			}
			if errors.Is(err, transaction.ErrInvalidStateTransition{}) {
				logger.Warn("Reservation race lost, skipping", "transaction_id", txn.ID.String())
				return nil
			}
			return err
		}
		txn.Status = shared.TransactionStatusReserved
		s.journal(ctx, logger, txn)
	}

	if !txn.ProviderAcked {
		ref, err := adapter.Initiate(ctx, s.buildIntent(txn))
		s.observeProviderCall(adapter.Name(), err)
		if err != nil {
			return s.handleInitiateError(ctx, logger, txn, err)
		}

		if err := s.transactionRepo.MarkProviderAcked(ctx, txn.ID, ref.Provider, ref.ProviderRef); err != nil {
			return err
		}
		txn.MarkProviderAcked(ref.Provider, ref.ProviderRef)
	}

	if err := s.transactionRepo.UpdateStatus(ctx, txn.ID, shared.TransactionStatusReserved, shared.TransactionStatusProviderPending, ""); err != nil {
		if errors.Is(err, transaction.ErrInvalidStateTransition{}) {
			logger.Warn("Pending transition race lost, skipping", "transaction_id", txn.ID.String())
			return nil
		}
		return err
	}
	txn.Status = shared.TransactionStatusProviderPending

	s.journal(ctx, logger, txn)
	logger.Info("Disbursement initiated with provider",
		"transaction_id", txn.ID.String(),
		"provider", txn.Provider,
		"provider_ref", txn.ProviderRef,
	)
	return nil
}

// applyProviderEvent applies a webhook-confirmed outcome to its transaction
func (s *SettlementServiceImpl) applyProviderEvent(ctx context.Context, logger *slog.Logger, task *shared.SettlementTask) error {
	eventID, err := uuid.Parse(task.EventID)
	if err != nil {
		logger.Error("Provider event task carries invalid event id", "event_id", task.EventID)
		return nil
	}

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, provider.ErrEventNotFound{}) {
			logger.Error("Provider event not found", "event_id", task.EventID)
			return nil
		}
		return err
	}
	if event.Processed {
		logger.Info("Provider event already processed, skipping", "event_id", event.ID.String())
		return nil
	}

	txn, err := s.resolveEventTransaction(ctx, event)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			logger.Warn("Provider event references unknown transaction; retaining for audit",
				"provider", event.Provider,
				"provider_ref", event.ProviderRef,
			)
			return s.eventRepo.MarkProcessed(ctx, event.ID)
		}
		return err
	}

	logger = logger.With("transaction_id", txn.ID.String(), "provider", event.Provider)

	if txn.IsTerminal() {
		// Late success after a locally recorded failure is flagged for manual
		// review; a false settlement is worse than a late one, so no
		// automatic reversal.
		if event.Outcome == provider.OutcomeSettled && txn.Status == shared.TransactionStatusFailed {
			logger.Warn("Provider reports settled after local failure, flagging for review")
			if err := s.transactionRepo.SetReviewFlag(ctx, txn.ID); err != nil {
				return err
			}
		} else {
			logger.Info("Duplicate provider event for terminal transaction, no-op", "status", string(txn.Status))
		}
		return s.eventRepo.MarkProcessed(ctx, event.ID)
	}

	switch event.Outcome {
	case provider.OutcomeSettled:
		if err := s.settleFromProvider(ctx, logger, txn); err != nil {
			return err
		}
	case provider.OutcomeFailed:
		if err := s.recordFailure(ctx, txn, shared.FailureReasonProviderDeclined); err != nil {
			return err
		}
	case provider.OutcomeAccepted:
		logger.Info("Provider acknowledged, awaiting settlement confirmation")
	default:
		logger.Warn("Provider event outcome unknown, leaving transaction pending")
	}

	return s.eventRepo.MarkProcessed(ctx, event.ID)
}

// settleFromProvider applies a provider-confirmed settlement: credits for
// inbound flows, reservation commit for outbound ones.
func (s *SettlementServiceImpl) settleFromProvider(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction) error {
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if txn.Type.IsExternalCredit() {
			if _, err := s.walletManager.Credit(ctx, tx, txn.Destination.WalletID, txn.Amount-txn.Fee); err != nil {
				return err
			}
		} else {
			if _, err := s.walletManager.CommitReservation(ctx, tx, txn.Source.WalletID, txn.Amount); err != nil {
				return err
			}
		}
		txnRepoTx := s.transactionRepo.WithTx(tx)
		if err := txnRepoTx.UpdateStatus(ctx, txn.ID, txn.Status, shared.TransactionStatusSettled, ""); err != nil {
			return err
		}
		txn.Status = shared.TransactionStatusSettled
		return s.outboxManager.CreateOutboxEntry(ctx, tx, txn)
	})
	if err != nil {
		if errors.Is(err, transaction.ErrInvalidStateTransition{}) {
			logger.Warn("Settlement race lost applying provider event")
			return nil
		}
		return err
	}

	s.finishTerminal(ctx, logger, txn)
	logger.Info("Provider settlement applied")
	return nil
}

func (s *SettlementServiceImpl) resolveEventTransaction(ctx context.Context, event *provider.Event) (*transaction.Transaction, error) {
	if event.TransactionID != uuid.Nil {
		return s.transactionRepo.GetByID(ctx, event.TransactionID)
	}
	return s.transactionRepo.GetByProviderRef(ctx, event.Provider, event.ProviderRef)
}

func (s *SettlementServiceImpl) resolveAdapter(txn *transaction.Transaction, providerName string) (provider.Adapter, error) {
	name := providerName
	if name == "" {
		name = s.defaultProviders[txn.Type]
	}
	return s.providers.Get(name)
}

func (s *SettlementServiceImpl) buildIntent(txn *transaction.Transaction) provider.Intent {
	counterparty := txn.Destination.External
	if txn.Type.IsExternalCredit() {
		counterparty = txn.Source.External
	}
	return provider.Intent{
		TransactionID:  txn.ID,
		Type:           txn.Type,
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		CounterpartyID: counterparty,
		IdempotencyKey: txn.IdempotencyKey,
	}
}

func (s *SettlementServiceImpl) handleInitiateError(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction, err error) error {
	reason := shared.FailureReasonProviderUnavailable
	if errors.Is(err, provider.ErrProviderDeclined) {
		reason = shared.FailureReasonProviderDeclined
	}

	logger.Warn("Provider initiate failed",
		"transaction_id", txn.ID.String(),
		"reason", string(reason),
		"error", err,
	)
	if recordErr := s.recordFailure(ctx, txn, reason); recordErr != nil {
		return recordErr
	}
	return nil
}

// recordFailure runs the shared failure path and emits the terminal journal
// entry and metric.
func (s *SettlementServiceImpl) recordFailure(ctx context.Context, txn *transaction.Transaction, reason shared.FailureReason) error {
	if err := s.failureRecorder.RecordFailure(ctx, txn, reason); err != nil {
		return err
	}
	s.finishTerminal(ctx, s.logger, txn)
	return nil
}

// finishTerminal emits the journal entry and terminal metric after a terminal
// transition committed. Journal appends are retried on redelivery, so a
// failure here is logged, not returned.
func (s *SettlementServiceImpl) finishTerminal(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction) {
	s.journal(ctx, logger, txn)
	if s.metrics != nil {
		s.metrics.ObserveTerminal(string(txn.Type), string(txn.Status))
	}
}

func (s *SettlementServiceImpl) observeProviderCall(providerName string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, provider.ErrProviderDeclined) {
			result = "declined"
		}
	}
	s.metrics.ObserveProviderCall(providerName, result)
}

func (s *SettlementServiceImpl) journal(ctx context.Context, logger *slog.Logger, txn *transaction.Transaction) {
	if err := s.journalWriter.Record(ctx, txn); err != nil {
		logger.Error("Failed to append journal entry",
			"transaction_id", txn.ID.String(),
			"status", string(txn.Status),
			"error", err,
		)
	}
}

// isBusinessFailure reports whether the error is a terminal business outcome
// rather than an infrastructure fault.
func isBusinessFailure(err error) bool {
	return errors.Is(err, wallet.ErrInsufficientFunds) ||
		errors.Is(err, wallet.ErrInvalidAmount) ||
		errors.Is(err, wallet.ErrWalletDeactivated) ||
		errors.Is(err, wallet.ErrWalletNotFound{}) ||
		errors.Is(err, shared.ErrInvalidCurrency)
}

func mapBalanceFailure(err error) shared.FailureReason {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return shared.FailureReasonInsufficientFunds
	case errors.Is(err, wallet.ErrInvalidAmount):
		return shared.FailureReasonInvalidAmount
	case errors.Is(err, wallet.ErrWalletNotFound{}):
		return shared.FailureReasonWalletNotFound
	case errors.Is(err, shared.ErrInvalidCurrency):
		return shared.FailureReasonCurrencyMismatch
	default:
		return shared.FailureReasonUnknownError
	}
}

func mapValidationFailure(err error) shared.FailureReason {
	switch {
	case errors.Is(err, shared.ErrInvalidAmount):
		return shared.FailureReasonInvalidAmount
	case errors.Is(err, shared.ErrInvalidCurrency):
		return shared.FailureReasonCurrencyMismatch
	case errors.Is(err, wallet.ErrWalletNotFound{}):
		return shared.FailureReasonWalletNotFound
	case errors.Is(err, wallet.ErrWalletDeactivated):
		return shared.FailureReasonWalletNotFound
	default:
		return shared.FailureReasonUnknownError
	}
}
