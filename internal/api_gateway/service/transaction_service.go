package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dalasi-wallet-core/internal/domain/conversion"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/fx"
	"github.com/dalasi-wallet-core/internal/idempotency"
	"github.com/dalasi-wallet-core/internal/platform/messaging/producers"
)

// TxRunner runs a function inside one database transaction. Satisfied by
// persistence.PostgresDB.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// idempotentResult is the guard-stored body replayed to duplicate requests.
type idempotentResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
}

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	db              TxRunner
	transactionRepo transaction.Repository
	conversionRepo  conversion.Repository
	walletRepo      wallet.Repository
	fxService       *fx.Service
	guard           *idempotency.Guard
	producer        producers.MessagePublisher
	logger          *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(
	logger *slog.Logger,
	db TxRunner,
	transactionRepo transaction.Repository,
	conversionRepo conversion.Repository,
	walletRepo wallet.Repository,
	fxService *fx.Service,
	guard *idempotency.Guard,
	producer producers.MessagePublisher,
) TransactionService {
	return &TransactionServiceImpl{
		db:              db,
		transactionRepo: transactionRepo,
		conversionRepo:  conversionRepo,
		walletRepo:      walletRepo,
		fxService:       fxService,
		guard:           guard,
		producer:        producer,
		logger:          logger,
	}
}

// InitiateTopUp accepts an inbound external credit intent
func (s *TransactionServiceImpl) InitiateTopUp(ctx context.Context, params *TopUpParams) (*transaction.Transaction, bool, error) {
	txType := shared.TransactionTypeTopUp
	if params.SourceKind == shared.EndpointKindCard {
		txType = shared.TransactionTypeCardTopUp
	}

	build := func() (*transaction.Transaction, error) {
		txn, err := transaction.New(
			txType,
			transaction.ExternalRef(params.SourceKind, params.SourceRef),
			transaction.WalletRef(params.WalletID),
			params.Amount,
			params.Fee,
			params.Currency,
		)
		if err != nil {
			return nil, err
		}
		txn.Provider = params.Provider
		return txn, nil
	}

	return s.initiate(ctx, params.IdempotencyKey, params.CorrelationID, params.Provider, build, nil)
}

// InitiateTransfer accepts a wallet-to-wallet movement intent
func (s *TransactionServiceImpl) InitiateTransfer(ctx context.Context, params *TransferParams) (*transaction.Transaction, bool, error) {
	if params.SourceWalletID == params.DestinationWalletID {
		return nil, false, shared.ErrInvalidTransactionType
	}

	build := func() (*transaction.Transaction, error) {
		return transaction.New(
			shared.TransactionTypeInternalTransfer,
			transaction.WalletRef(params.SourceWalletID),
			transaction.WalletRef(params.DestinationWalletID),
			params.Amount,
			params.Fee,
			params.Currency,
		)
	}

	return s.initiate(ctx, params.IdempotencyKey, params.CorrelationID, "", build, nil)
}

// InitiatePayment accepts an outbound debit intent to a card, bank, or
// mobile-money endpoint
func (s *TransactionServiceImpl) InitiatePayment(ctx context.Context, params *PaymentParams) (*transaction.Transaction, bool, error) {
	build := func() (*transaction.Transaction, error) {
		txn, err := transaction.New(
			params.Type,
			transaction.WalletRef(params.WalletID),
			transaction.ExternalRef(params.DestinationKind, params.DestinationRef),
			params.Amount,
			0,
			params.Currency,
		)
		if err != nil {
			return nil, err
		}
		txn.Provider = params.Provider
		return txn, nil
	}

	return s.initiate(ctx, params.IdempotencyKey, params.CorrelationID, params.Provider, build, nil)
}

// InitiateConversion quotes and accepts a cross-currency movement. The
// transaction and its conversion record commit together; the engine later
// reads the record to know the destination credit amount.
func (s *TransactionServiceImpl) InitiateConversion(ctx context.Context, params *ConversionParams) (*transaction.Transaction, *conversion.Record, bool, error) {
	quote, err := s.fxService.Quote(params.FromCurrency, params.ToCurrency, params.Amount)
	if err != nil {
		return nil, nil, false, err
	}

	var record *conversion.Record
	build := func() (*transaction.Transaction, error) {
		txn, err := transaction.New(
			shared.TransactionTypeConversion,
			transaction.WalletRef(params.SourceWalletID),
			transaction.WalletRef(params.DestinationWalletID),
			params.Amount,
			0,
			params.FromCurrency,
		)
		if err != nil {
			return nil, err
		}
		txn.ExchangeRate = quote.Rate.String()

		record, err = conversion.NewRecord(
			txn.ID,
			params.FromCurrency,
			params.ToCurrency,
			quote.FromAmount,
			quote.ToAmount,
			quote.Fee,
			quote.Rate,
		)
		if err != nil {
			return nil, err
		}
		return txn, nil
	}

	persist := func(ctx context.Context, tx pgx.Tx) error {
		return s.conversionRepo.WithTx(tx).Create(ctx, record)
	}

	txn, duplicate, err := s.initiate(ctx, params.IdempotencyKey, params.CorrelationID, "", build, persist)
	if err != nil {
		return nil, nil, false, err
	}
	if duplicate {
		record, err = s.conversionRepo.GetByTransactionID(ctx, txn.ID)
		if err != nil {
			return nil, nil, false, err
		}
	}
	return txn, record, duplicate, nil
}

// QuoteConversion prices a conversion without committing anything
func (s *TransactionServiceImpl) QuoteConversion(ctx context.Context, from, to shared.Currency, amount int64) (*fx.Quote, error) {
	return s.fxService.Quote(from, to, amount)
}

// GetTransaction retrieves a transaction by its ID. Returns nil if not found
func (s *TransactionServiceImpl) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	txn, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			s.logger.Info("Transaction not found", "transaction_id", id.String())
			return nil, nil
		}
		s.logger.Error("Failed to get transaction by ID", "transaction_id", id.String(), "error", err)
		return nil, err
	}
	return txn, nil
}

// CancelTransaction cancels a transaction the provider has not acknowledged
// yet. A reservation already taken for it is restored to the source wallet in
// the same database transaction, so the cancel either releases everything or
// nothing. Returns nil if the transaction does not exist.
func (s *TransactionServiceImpl) CancelTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	var cancelled *transaction.Transaction
	var released bool
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txnRepo := s.transactionRepo.WithTx(tx)
		txn, err := txnRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		from := txn.Status
		if err := txn.Transition(shared.TransactionStatusCancelled); err != nil {
			return err
		}

		if from == shared.TransactionStatusReserved {
			walletRepo := s.walletRepo.WithTx(tx)
			w, err := walletRepo.LockForUpdate(ctx, txn.Source.WalletID)
			if err != nil {
				return err
			}
			if err := w.ReleaseReservation(txn.Amount); err != nil {
				return err
			}
			if err := walletRepo.Update(ctx, w); err != nil {
				return err
			}
			released = true
		}

		if err := txnRepo.UpdateStatus(ctx, txn.ID, from, shared.TransactionStatusCancelled, ""); err != nil {
			return err
		}
		cancelled = txn
		return nil
	})
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			s.logger.Info("Transaction not found for cancellation", "transaction_id", id.String())
			return nil, nil
		}
		if errors.Is(err, transaction.ErrInvalidStateTransition{}) {
			s.logger.Warn("Cancellation rejected", "transaction_id", id.String(), "error", err)
			return nil, err
		}
		s.logger.Error("Failed to cancel transaction", "transaction_id", id.String(), "error", err)
		return nil, err
	}

	s.logger.Info("Transaction cancelled",
		"transaction_id", cancelled.ID.String(),
		"released_reservation", released,
	)
	return cancelled, nil
}

// initiate runs the shared acceptance path: claim the idempotency key, persist
// the transaction (plus any extra rows), queue the settlement task, and store
// the result for replay. Returns (transaction, duplicate, error).
func (s *TransactionServiceImpl) initiate(
	ctx context.Context,
	idempotencyKey, correlationID, providerName string,
	build func() (*transaction.Transaction, error),
	persist func(ctx context.Context, tx pgx.Tx) error,
) (*transaction.Transaction, bool, error) {
	logger := s.logger
	if correlationID != "" {
		logger = s.logger.With("correlation_id", correlationID)
	}

	if idempotencyKey != "" {
		result, duplicate, err := s.guard.CheckAndRegister(ctx, idempotency.ScopeClient, idempotencyKey)
		if err != nil {
			// The database unique index still backstops duplicates.
			logger.Warn("Idempotency guard unavailable, relying on storage uniqueness", "error", err)
		} else if duplicate {
			return s.replayDuplicate(ctx, logger, idempotencyKey, result)
		}
	}

	txn, err := build()
	if err != nil {
		return nil, false, err
	}
	txn.IdempotencyKey = idempotencyKey
	txn.CorrelationID = correlationID

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.transactionRepo.WithTx(tx).Create(ctx, txn); err != nil {
			return err
		}
		if persist != nil {
			return persist(ctx, tx)
		}
		return nil
	})
	if err != nil {
		if errors.As(err, &transaction.ErrDuplicateIdempotencyKey{}) {
			existing, lookupErr := s.transactionRepo.GetByIdempotencyKey(ctx, idempotencyKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				logger.Info("Duplicate idempotency key, returning existing transaction",
					"idempotency_key", idempotencyKey,
					"transaction_id", existing.ID.String(),
				)
				return existing, true, nil
			}
		}
		logger.Error("Failed to persist transaction", "error", err)
		return nil, false, err
	}

	task := &shared.SettlementTask{
		Kind:          shared.TaskKindIntent,
		TransactionID: txn.ID,
		Provider:      providerName,
		CorrelationID: correlationID,
	}
	if err := s.producer.Publish(ctx, txn.ID.String(), task); err != nil {
		logger.Error("Failed to publish settlement task",
			"transaction_id", txn.ID.String(),
			"error", err,
		)
		return nil, false, err
	}

	if idempotencyKey != "" {
		body, _ := json.Marshal(idempotentResult{TransactionID: txn.ID})
		storeErr := s.guard.StoreResult(ctx, idempotency.ScopeClient, idempotencyKey, &idempotency.Result{
			Status:     string(txn.Status),
			StatusCode: http.StatusAccepted,
			Body:       body,
		})
		if storeErr != nil {
			logger.Warn("Failed to store idempotency result", "error", storeErr)
		}
	}

	logger.Info("Transaction accepted for settlement",
		"transaction_id", txn.ID.String(),
		"type", string(txn.Type),
		"amount", txn.Amount,
		"currency", string(txn.Currency),
	)
	return txn, false, nil
}

func (s *TransactionServiceImpl) replayDuplicate(ctx context.Context, logger *slog.Logger, idempotencyKey string, result *idempotency.Result) (*transaction.Transaction, bool, error) {
	if result == nil || result.InFlight() {
		logger.Info("Concurrent request in flight for idempotency key", "idempotency_key", idempotencyKey)
		return nil, false, ErrOperationInFlight
	}

	var stored idempotentResult
	if err := json.Unmarshal(result.Body, &stored); err != nil {
		return nil, false, fmt.Errorf("corrupt stored idempotency result for key %s: %w", idempotencyKey, err)
	}

	existing, err := s.transactionRepo.GetByID(ctx, stored.TransactionID)
	if err != nil {
		return nil, false, err
	}

	logger.Info("Replaying stored result for duplicate request",
		"idempotency_key", idempotencyKey,
		"transaction_id", existing.ID.String(),
	)
	return existing, true, nil
}
