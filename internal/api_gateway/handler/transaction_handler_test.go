package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dalasi-wallet-core/internal/api_gateway/service"
	"github.com/dalasi-wallet-core/internal/domain/conversion"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/fx"
)

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) InitiateTopUp(ctx context.Context, params *service.TopUpParams) (*transaction.Transaction, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*transaction.Transaction), args.Bool(1), args.Error(2)
}

func (m *MockTransactionService) InitiateTransfer(ctx context.Context, params *service.TransferParams) (*transaction.Transaction, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*transaction.Transaction), args.Bool(1), args.Error(2)
}

func (m *MockTransactionService) InitiatePayment(ctx context.Context, params *service.PaymentParams) (*transaction.Transaction, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*transaction.Transaction), args.Bool(1), args.Error(2)
}

func (m *MockTransactionService) InitiateConversion(ctx context.Context, params *service.ConversionParams) (*transaction.Transaction, *conversion.Record, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, nil, args.Bool(2), args.Error(3)
	}
	return args.Get(0).(*transaction.Transaction), args.Get(1).(*conversion.Record), args.Bool(2), args.Error(3)
}

func (m *MockTransactionService) QuoteConversion(ctx context.Context, from, to shared.Currency, amount int64) (*fx.Quote, error) {
	args := m.Called(ctx, from, to, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fx.Quote), args.Error(1)
}

func (m *MockTransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) CancelTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func newTransferTransaction(t *testing.T) *transaction.Transaction {
	t.Helper()
	txn, err := transaction.New(
		shared.TransactionTypeInternalTransfer,
		transaction.WalletRef(uuid.New()),
		transaction.WalletRef(uuid.New()),
		10_000, 100, shared.CurrencyGMD,
	)
	require.NoError(t, err)
	return txn
}

func postJSON(router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestTransactionHandler_Transfer(t *testing.T) {
	logger := newHandlerTestLogger()

	t.Run("Accepted", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)
		txn := newTransferTransaction(t)

		mockService.On("InitiateTransfer", mock.Anything, mock.MatchedBy(func(p *service.TransferParams) bool {
			return p.Amount == 10_000 && p.Currency == shared.CurrencyGMD
		})).Return(txn, false, nil)

		router := setupTestRouter()
		router.POST("/transactions/transfer", h.Transfer)

		rr := postJSON(router, "/transactions/transfer", TransferRequest{
			SourceWalletID:      txn.Source.WalletID.String(),
			DestinationWalletID: txn.Destination.WalletID.String(),
			Amount:              10_000,
			Fee:                 100,
			Currency:            "GMD",
			IdempotencyKey:      "transfer-1",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		got := decodeData[TransactionResponse](t, rr.Body.Bytes())
		assert.Equal(t, txn.ID.String(), got.ID)
		assert.Equal(t, "CREATED", got.Status)
		mockService.AssertExpectations(t)
	})

	t.Run("DuplicateReplaysWith200", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)
		txn := newTransferTransaction(t)

		mockService.On("InitiateTransfer", mock.Anything, mock.Anything).Return(txn, true, nil)

		router := setupTestRouter()
		router.POST("/transactions/transfer", h.Transfer)

		rr := postJSON(router, "/transactions/transfer", TransferRequest{
			SourceWalletID:      txn.Source.WalletID.String(),
			DestinationWalletID: txn.Destination.WalletID.String(),
			Amount:              10_000,
			Currency:            "GMD",
		})

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("InFlightConflicts", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		mockService.On("InitiateTransfer", mock.Anything, mock.Anything).
			Return(nil, false, service.ErrOperationInFlight)

		router := setupTestRouter()
		router.POST("/transactions/transfer", h.Transfer)

		rr := postJSON(router, "/transactions/transfer", TransferRequest{
			SourceWalletID:      uuid.New().String(),
			DestinationWalletID: uuid.New().String(),
			Amount:              10_000,
			Currency:            "GMD",
		})

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("InvalidAmountRejected", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/transactions/transfer", h.Transfer)

		rr := postJSON(router, "/transactions/transfer", TransferRequest{
			SourceWalletID:      uuid.New().String(),
			DestinationWalletID: uuid.New().String(),
			Amount:              -5,
			Currency:            "GMD",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "InitiateTransfer", mock.Anything, mock.Anything)
	})
}

func TestTransactionHandler_TopUp(t *testing.T) {
	logger := newHandlerTestLogger()

	t.Run("Accepted", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		walletID := uuid.New()
		txn, err := transaction.New(
			shared.TransactionTypeTopUp,
			transaction.ExternalRef(shared.EndpointKindMobileMoney, "2207001122"),
			transaction.WalletRef(walletID),
			25_000, 0, shared.CurrencyGMD,
		)
		require.NoError(t, err)

		mockService.On("InitiateTopUp", mock.Anything, mock.MatchedBy(func(p *service.TopUpParams) bool {
			return p.WalletID == walletID && p.SourceKind == shared.EndpointKindMobileMoney && p.Provider == "qmoney"
		})).Return(txn, false, nil)

		router := setupTestRouter()
		router.POST("/transactions/top-up", h.TopUp)

		rr := postJSON(router, "/transactions/top-up", TopUpRequest{
			WalletID:   walletID.String(),
			Amount:     25_000,
			Currency:   "GMD",
			SourceKind: "MOBILE_MONEY",
			SourceRef:  "2207001122",
			Provider:   "qmoney",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		got := decodeData[TransactionResponse](t, rr.Body.Bytes())
		assert.Equal(t, "PROVIDER_PENDING", got.Status)
		mockService.AssertExpectations(t)
	})

	t.Run("UnknownSourceKindRejected", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/transactions/top-up", h.TopUp)

		rr := postJSON(router, "/transactions/top-up", TopUpRequest{
			WalletID:   uuid.New().String(),
			Amount:     25_000,
			Currency:   "GMD",
			SourceKind: "CASH",
			SourceRef:  "x",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestTransactionHandler_Convert(t *testing.T) {
	logger := newHandlerTestLogger()

	t.Run("Accepted", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		rate := decimal.RequireFromString("67.32")
		txn, err := transaction.New(
			shared.TransactionTypeConversion,
			transaction.WalletRef(uuid.New()),
			transaction.WalletRef(uuid.New()),
			100, 0, shared.CurrencyUSD,
		)
		require.NoError(t, err)
		txn.ExchangeRate = rate.String()

		record, err := conversion.NewRecord(txn.ID, shared.CurrencyUSD, shared.CurrencyGMD, 100, 6_682, 50, rate)
		require.NoError(t, err)

		mockService.On("InitiateConversion", mock.Anything, mock.Anything).Return(txn, record, false, nil)

		router := setupTestRouter()
		router.POST("/transactions/convert", h.Convert)

		rr := postJSON(router, "/transactions/convert", ConversionRequest{
			SourceWalletID:      txn.Source.WalletID.String(),
			DestinationWalletID: txn.Destination.WalletID.String(),
			Amount:              100,
			FromCurrency:        "USD",
			ToCurrency:          "GMD",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		got := decodeData[ConversionResponse](t, rr.Body.Bytes())
		assert.Equal(t, txn.ID.String(), got.Transaction.ID)
		assert.Equal(t, int64(6_682), got.Quote.ToAmount)
		assert.Equal(t, "67.32", got.Quote.Rate)
	})

	t.Run("SamePairRejected", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		mockService.On("InitiateConversion", mock.Anything, mock.Anything).
			Return(nil, nil, false, fx.ErrUnsupportedPair)

		router := setupTestRouter()
		router.POST("/transactions/convert", h.Convert)

		rr := postJSON(router, "/transactions/convert", ConversionRequest{
			SourceWalletID:      uuid.New().String(),
			DestinationWalletID: uuid.New().String(),
			Amount:              100,
			FromCurrency:        "USD",
			ToCurrency:          "USD",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestTransactionHandler_Quote(t *testing.T) {
	logger := newHandlerTestLogger()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		quote := &fx.Quote{
			FromCurrency: shared.CurrencyUSD,
			ToCurrency:   shared.CurrencyGMD,
			FromAmount:   10_000,
			ToAmount:     672_950,
			Rate:         decimal.RequireFromString("67.3"),
			Fee:          50,
			QuotedAt:     time.Now(),
		}
		mockService.On("QuoteConversion", mock.Anything, shared.CurrencyUSD, shared.CurrencyGMD, int64(10_000)).
			Return(quote, nil)

		router := setupTestRouter()
		router.GET("/transactions/quote", h.Quote)

		req, _ := http.NewRequest(http.MethodGet, "/transactions/quote?from=USD&to=GMD&amount=10000", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		got := decodeData[QuoteResponse](t, rr.Body.Bytes())
		assert.Equal(t, int64(672_950), got.ToAmount)
		assert.Equal(t, "67.3", got.Rate)
	})

	t.Run("MissingParamsRejected", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)

		router := setupTestRouter()
		router.GET("/transactions/quote", h.Quote)

		req, _ := http.NewRequest(http.MethodGet, "/transactions/quote?from=USD", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestTransactionHandler_GetByID(t *testing.T) {
	logger := newHandlerTestLogger()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)
		txn := newTransferTransaction(t)

		mockService.On("GetTransaction", mock.Anything, txn.ID).Return(txn, nil)

		router := setupTestRouter()
		router.GET("/transactions/:id", h.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/transactions/"+txn.ID.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		got := decodeData[TransactionResponse](t, rr.Body.Bytes())
		assert.Equal(t, txn.ID.String(), got.ID)
		assert.Equal(t, txn.Source.WalletID.String(), got.Source.WalletID)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockTransactionService)
		h := NewTransactionHandler(logger, mockService)
		id := uuid.New()

		mockService.On("GetTransaction", mock.Anything, id).Return(nil, nil)

		router := setupTestRouter()
		router.GET("/transactions/:id", h.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/transactions/"+id.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestTransactionHandler_Cancel(t *testing.T) {
	logger := newHandlerTestLogger()

	newCancelRouter := func(mockService *MockTransactionService) http.Handler {
		h := NewTransactionHandler(logger, mockService)
		router := setupTestRouter()
		router.POST("/transactions/:id/cancel", h.Cancel)
		return router
	}

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransactionService)
		txn := newTransferTransaction(t)
		txn.Status = shared.TransactionStatusCancelled

		mockService.On("CancelTransaction", mock.Anything, txn.ID).Return(txn, nil)

		rr := postJSON(newCancelRouter(mockService), "/transactions/"+txn.ID.String()+"/cancel", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		got := decodeData[TransactionResponse](t, rr.Body.Bytes())
		assert.Equal(t, string(shared.TransactionStatusCancelled), got.Status)
	})

	t.Run("TooLateConflicts", func(t *testing.T) {
		mockService := new(MockTransactionService)
		id := uuid.New()

		mockService.On("CancelTransaction", mock.Anything, id).
			Return(nil, transaction.ErrInvalidStateTransition{TransactionID: id})

		rr := postJSON(newCancelRouter(mockService), "/transactions/"+id.String()+"/cancel", nil)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockTransactionService)
		id := uuid.New()

		mockService.On("CancelTransaction", mock.Anything, id).Return(nil, nil)

		rr := postJSON(newCancelRouter(mockService), "/transactions/"+id.String()+"/cancel", nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("InvalidID", func(t *testing.T) {
		mockService := new(MockTransactionService)

		rr := postJSON(newCancelRouter(mockService), "/transactions/not-a-uuid/cancel", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "CancelTransaction", mock.Anything, mock.Anything)
	})
}
