package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/fx"
)

func newTestFxService() *fx.Service {
	source := fx.DefaultRates(decimal.NewFromInt(68))
	return fx.NewService(newTestLogger(), source, fx.FlatFee{Amount: 50}, 100)
}

type txnServiceMocks struct {
	db              *fakeTxRunner
	transactionRepo *MockTransactionRepo
	conversionRepo  *MockConversionRepo
	walletRepo      *MockWalletRepo
	producer        *MockMessagingProducer
}

func newTxnService(t *testing.T) (TransactionService, *txnServiceMocks) {
	t.Helper()
	m := &txnServiceMocks{
		db:              &fakeTxRunner{},
		transactionRepo: new(MockTransactionRepo),
		conversionRepo:  new(MockConversionRepo),
		walletRepo:      new(MockWalletRepo),
		producer:        new(MockMessagingProducer),
	}
	svc := NewTransactionService(
		newTestLogger(),
		m.db,
		m.transactionRepo,
		m.conversionRepo,
		m.walletRepo,
		newTestFxService(),
		newTestGuard(t),
		m.producer,
	)
	return svc, m
}

func TestTransactionService_InitiateTransfer(t *testing.T) {
	ctx := context.Background()

	params := func() *TransferParams {
		return &TransferParams{
			SourceWalletID:      uuid.New(),
			DestinationWalletID: uuid.New(),
			Amount:              10_000,
			Fee:                 100,
			Currency:            shared.CurrencyGMD,
			IdempotencyKey:      uuid.New().String(),
			CorrelationID:       "corr-1",
		}
	}

	t.Run("accepts and queues the transfer", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := params()

		m.transactionRepo.On("Create", ctx, mock.AnythingOfType("*transaction.Transaction")).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(task *shared.SettlementTask) bool {
			return task.Kind == shared.TaskKindIntent && task.CorrelationID == "corr-1"
		})).Return(nil).Once()

		txn, duplicate, err := svc.InitiateTransfer(ctx, p)

		require.NoError(t, err)
		assert.False(t, duplicate)
		require.NotNil(t, txn)
		assert.Equal(t, shared.TransactionTypeInternalTransfer, txn.Type)
		assert.Equal(t, shared.TransactionStatusCreated, txn.Status)
		assert.Equal(t, p.IdempotencyKey, txn.IdempotencyKey)
		m.transactionRepo.AssertExpectations(t)
		m.producer.AssertExpectations(t)
	})

	t.Run("repeat of a completed request replays the original transaction", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := params()

		m.transactionRepo.On("Create", ctx, mock.AnythingOfType("*transaction.Transaction")).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()

		first, duplicate, err := svc.InitiateTransfer(ctx, p)
		require.NoError(t, err)
		require.False(t, duplicate)

		m.transactionRepo.On("GetByID", ctx, first.ID).Return(first, nil).Once()

		second, duplicate, err := svc.InitiateTransfer(ctx, p)
		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, first.ID, second.ID)
		m.producer.AssertNumberOfCalls(t, "Publish", 1)
		m.transactionRepo.AssertExpectations(t)
	})

	t.Run("concurrent duplicate is rejected as in flight", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := params()

		// First request registers the key but fails before storing a result,
		// leaving the in-flight marker behind.
		m.transactionRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.Anything).Return(errors.New("kafka unavailable")).Once()

		_, _, err := svc.InitiateTransfer(ctx, p)
		require.Error(t, err)

		_, _, err = svc.InitiateTransfer(ctx, p)
		assert.ErrorIs(t, err, ErrOperationInFlight)
	})

	t.Run("storage uniqueness violation returns the existing transaction", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := params()
		existing, err := transaction.New(
			shared.TransactionTypeInternalTransfer,
			transaction.WalletRef(p.SourceWalletID),
			transaction.WalletRef(p.DestinationWalletID),
			p.Amount, p.Fee, p.Currency,
		)
		require.NoError(t, err)
		existing.IdempotencyKey = p.IdempotencyKey

		m.transactionRepo.On("Create", ctx, mock.Anything).
			Return(transaction.ErrDuplicateIdempotencyKey{Key: p.IdempotencyKey}).Once()
		m.transactionRepo.On("GetByIdempotencyKey", ctx, p.IdempotencyKey).Return(existing, nil).Once()

		txn, duplicate, err := svc.InitiateTransfer(ctx, p)

		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, existing.ID, txn.ID)
		m.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("same source and destination wallet is rejected", func(t *testing.T) {
		svc, _ := newTxnService(t)
		p := params()
		p.DestinationWalletID = p.SourceWalletID

		_, _, err := svc.InitiateTransfer(ctx, p)
		assert.ErrorIs(t, err, shared.ErrInvalidTransactionType)
	})

	t.Run("publish failure surfaces to the caller", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := params()
		publishErr := errors.New("kafka unavailable")

		m.transactionRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.Anything).Return(publishErr).Once()

		_, _, err := svc.InitiateTransfer(ctx, p)
		assert.ErrorIs(t, err, publishErr)
	})
}

func TestTransactionService_InitiateTopUp(t *testing.T) {
	ctx := context.Background()

	t.Run("mobile money top-up starts provider pending", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := &TopUpParams{
			WalletID:       uuid.New(),
			Amount:         25_000,
			Fee:            250,
			Currency:       shared.CurrencyGMD,
			SourceKind:     shared.EndpointKindMobileMoney,
			SourceRef:      "2207001122",
			Provider:       "qmoney",
			IdempotencyKey: uuid.New().String(),
		}

		m.transactionRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(task *shared.SettlementTask) bool {
			return task.Kind == shared.TaskKindIntent && task.Provider == "qmoney"
		})).Return(nil).Once()

		txn, duplicate, err := svc.InitiateTopUp(ctx, p)

		require.NoError(t, err)
		assert.False(t, duplicate)
		assert.Equal(t, shared.TransactionTypeTopUp, txn.Type)
		assert.Equal(t, shared.TransactionStatusProviderPending, txn.Status)
		assert.Equal(t, "qmoney", txn.Provider)
		m.producer.AssertExpectations(t)
	})

	t.Run("card source selects the card top-up type", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := &TopUpParams{
			WalletID:   uuid.New(),
			Amount:     5_000,
			Currency:   shared.CurrencyUSD,
			SourceKind: shared.EndpointKindCard,
			SourceRef:  "card-ref-9",
			Provider:   "cardproc",
		}

		m.transactionRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()

		txn, _, err := svc.InitiateTopUp(ctx, p)

		require.NoError(t, err)
		assert.Equal(t, shared.TransactionTypeCardTopUp, txn.Type)
	})

	t.Run("invalid amount is rejected before persistence", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := &TopUpParams{
			WalletID:   uuid.New(),
			Amount:     0,
			Currency:   shared.CurrencyGMD,
			SourceKind: shared.EndpointKindMobileMoney,
			SourceRef:  "2207001122",
		}

		_, _, err := svc.InitiateTopUp(ctx, p)

		assert.ErrorIs(t, err, shared.ErrInvalidAmount)
		m.transactionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestTransactionService_InitiateConversion(t *testing.T) {
	ctx := context.Background()

	params := func() *ConversionParams {
		return &ConversionParams{
			SourceWalletID:      uuid.New(),
			DestinationWalletID: uuid.New(),
			Amount:              100, // 1.00 USD
			FromCurrency:        shared.CurrencyUSD,
			ToCurrency:          shared.CurrencyGMD,
			IdempotencyKey:      uuid.New().String(),
		}
	}

	t.Run("creates transaction and record together", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := params()

		m.transactionRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		m.conversionRepo.On("Create", ctx, mock.AnythingOfType("*conversion.Record")).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()

		txn, record, duplicate, err := svc.InitiateConversion(ctx, p)

		require.NoError(t, err)
		assert.False(t, duplicate)
		require.NotNil(t, txn)
		require.NotNil(t, record)
		assert.Equal(t, shared.TransactionTypeConversion, txn.Type)
		assert.Equal(t, shared.CurrencyUSD, txn.Currency)
		assert.NotEmpty(t, txn.ExchangeRate)
		assert.Equal(t, txn.ID, record.TransactionID)
		assert.Equal(t, p.Amount, record.FromAmount)
		assert.Positive(t, record.ToAmount)
		m.conversionRepo.AssertExpectations(t)
	})

	t.Run("same currency is rejected", func(t *testing.T) {
		svc, _ := newTxnService(t)
		p := params()
		p.ToCurrency = shared.CurrencyUSD

		_, _, _, err := svc.InitiateConversion(ctx, p)
		assert.ErrorIs(t, err, fx.ErrUnsupportedPair)
	})

	t.Run("duplicate replays transaction and record", func(t *testing.T) {
		svc, m := newTxnService(t)
		p := params()

		m.transactionRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		m.conversionRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		m.producer.On("Publish", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()

		first, firstRecord, _, err := svc.InitiateConversion(ctx, p)
		require.NoError(t, err)

		m.transactionRepo.On("GetByID", ctx, first.ID).Return(first, nil).Once()
		m.conversionRepo.On("GetByTransactionID", ctx, first.ID).Return(firstRecord, nil).Once()

		second, secondRecord, duplicate, err := svc.InitiateConversion(ctx, p)

		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, firstRecord.ID, secondRecord.ID)
		m.producer.AssertNumberOfCalls(t, "Publish", 1)
	})
}

func TestTransactionService_QuoteConversion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTxnService(t)

	quote, err := svc.QuoteConversion(ctx, shared.CurrencyUSD, shared.CurrencyGMD, 10_000)

	require.NoError(t, err)
	assert.Equal(t, shared.CurrencyUSD, quote.FromCurrency)
	assert.Equal(t, shared.CurrencyGMD, quote.ToCurrency)
	assert.Equal(t, int64(10_000), quote.FromAmount)
	assert.Positive(t, quote.ToAmount)
	assert.Equal(t, int64(50), quote.Fee)
}

func TestTransactionService_GetTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the transaction", func(t *testing.T) {
		svc, m := newTxnService(t)
		txn, err := transaction.New(
			shared.TransactionTypeInternalTransfer,
			transaction.WalletRef(uuid.New()),
			transaction.WalletRef(uuid.New()),
			10_000, 0, shared.CurrencyGMD,
		)
		require.NoError(t, err)

		m.transactionRepo.On("GetByID", ctx, txn.ID).Return(txn, nil).Once()

		got, err := svc.GetTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, txn, got)
	})

	t.Run("not found yields nil without error", func(t *testing.T) {
		svc, m := newTxnService(t)
		id := uuid.New()

		m.transactionRepo.On("GetByID", ctx, id).
			Return(nil, transaction.ErrTransactionNotFound{TransactionID: id}).Once()

		got, err := svc.GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestTransactionService_CancelTransaction(t *testing.T) {
	ctx := context.Background()

	newPayment := func(t *testing.T) *transaction.Transaction {
		t.Helper()
		txn, err := transaction.New(
			shared.TransactionTypeCardPayment,
			transaction.WalletRef(uuid.New()),
			transaction.ExternalRef(shared.EndpointKindCard, "card-ref-1"),
			5_000, 0, shared.CurrencyUSD,
		)
		require.NoError(t, err)
		return txn
	}

	t.Run("cancels an accepted transaction", func(t *testing.T) {
		svc, m := newTxnService(t)
		txn := newPayment(t)

		m.transactionRepo.On("GetByID", ctx, txn.ID).Return(txn, nil).Once()
		m.transactionRepo.On("UpdateStatus", ctx, txn.ID, shared.TransactionStatusCreated, shared.TransactionStatusCancelled, shared.FailureReason("")).Return(nil).Once()

		got, err := svc.CancelTransaction(ctx, txn.ID)

		require.NoError(t, err)
		assert.Equal(t, shared.TransactionStatusCancelled, got.Status)
		m.walletRepo.AssertNotCalled(t, "LockForUpdate", mock.Anything, mock.Anything)
		m.transactionRepo.AssertExpectations(t)
	})

	t.Run("releases the reservation of a reserved transaction", func(t *testing.T) {
		svc, m := newTxnService(t)
		txn := newPayment(t)
		txn.Status = shared.TransactionStatusReserved
		w := &wallet.Wallet{
			ID:             txn.Source.WalletID,
			PendingBalance: txn.Amount,
		}

		m.transactionRepo.On("GetByID", ctx, txn.ID).Return(txn, nil).Once()
		m.walletRepo.On("LockForUpdate", ctx, txn.Source.WalletID).Return(w, nil).Once()
		m.walletRepo.On("Update", ctx, w).Return(nil).Once()
		m.transactionRepo.On("UpdateStatus", ctx, txn.ID, shared.TransactionStatusReserved, shared.TransactionStatusCancelled, shared.FailureReason("")).Return(nil).Once()

		got, err := svc.CancelTransaction(ctx, txn.ID)

		require.NoError(t, err)
		assert.Equal(t, shared.TransactionStatusCancelled, got.Status)
		assert.Equal(t, int64(0), w.PendingBalance)
		assert.Equal(t, txn.Amount, w.AvailableBalance)
		m.walletRepo.AssertExpectations(t)
		m.transactionRepo.AssertExpectations(t)
	})

	t.Run("refuses after provider acknowledgment", func(t *testing.T) {
		svc, m := newTxnService(t)
		txn := newPayment(t)
		txn.Status = shared.TransactionStatusProviderPending
		txn.MarkProviderAcked("mockpay", "MP-90")

		m.transactionRepo.On("GetByID", ctx, txn.ID).Return(txn, nil).Once()

		_, err := svc.CancelTransaction(ctx, txn.ID)

		assert.ErrorIs(t, err, transaction.ErrInvalidStateTransition{})
		m.transactionRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.walletRepo.AssertNotCalled(t, "LockForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("refuses a terminal transaction", func(t *testing.T) {
		svc, m := newTxnService(t)
		txn := newPayment(t)
		txn.Status = shared.TransactionStatusSettled

		m.transactionRepo.On("GetByID", ctx, txn.ID).Return(txn, nil).Once()

		_, err := svc.CancelTransaction(ctx, txn.ID)

		assert.ErrorIs(t, err, transaction.ErrInvalidStateTransition{})
	})

	t.Run("not found yields nil without error", func(t *testing.T) {
		svc, m := newTxnService(t)
		id := uuid.New()

		m.transactionRepo.On("GetByID", ctx, id).
			Return(nil, transaction.ErrTransactionNotFound{TransactionID: id}).Once()

		got, err := svc.CancelTransaction(ctx, id)

		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
