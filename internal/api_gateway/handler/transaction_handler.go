package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/api_gateway/middleware"
	"github.com/dalasi-wallet-core/internal/api_gateway/service"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/fx"
)

// TransactionHandler handles HTTP requests for transaction operations
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// TopUp initiates an external credit into a wallet
func (h *TransactionHandler) TopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		RespondBadRequest(c, "Invalid wallet ID")
		return
	}

	params := &service.TopUpParams{
		WalletID:       walletID,
		Amount:         req.Amount,
		Fee:            req.Fee,
		Currency:       shared.Currency(req.Currency),
		SourceKind:     shared.EndpointKind(req.SourceKind),
		SourceRef:      req.SourceRef,
		Provider:       req.Provider,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
	}

	txn, duplicate, err := h.transactionService.InitiateTopUp(c.Request.Context(), params)
	h.respondInitiated(c, txn, duplicate, err)
}

// Transfer initiates a wallet-to-wallet movement
func (h *TransactionHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sourceID, err := uuid.Parse(req.SourceWalletID)
	if err != nil {
		RespondBadRequest(c, "Invalid source wallet ID")
		return
	}
	destinationID, err := uuid.Parse(req.DestinationWalletID)
	if err != nil {
		RespondBadRequest(c, "Invalid destination wallet ID")
		return
	}

	params := &service.TransferParams{
		SourceWalletID:      sourceID,
		DestinationWalletID: destinationID,
		Amount:              req.Amount,
		Fee:                 req.Fee,
		Currency:            shared.Currency(req.Currency),
		IdempotencyKey:      req.IdempotencyKey,
		CorrelationID:       middleware.GetCorrelationID(c),
	}

	txn, duplicate, err := h.transactionService.InitiateTransfer(c.Request.Context(), params)
	h.respondInitiated(c, txn, duplicate, err)
}

// Payment initiates an outbound debit to an external endpoint
func (h *TransactionHandler) Payment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		RespondBadRequest(c, "Invalid wallet ID")
		return
	}

	params := &service.PaymentParams{
		WalletID:        walletID,
		Amount:          req.Amount,
		Currency:        shared.Currency(req.Currency),
		Type:            shared.TransactionType(req.Type),
		DestinationKind: shared.EndpointKind(req.DestinationKind),
		DestinationRef:  req.DestinationRef,
		Provider:        req.Provider,
		IdempotencyKey:  req.IdempotencyKey,
		CorrelationID:   middleware.GetCorrelationID(c),
	}

	txn, duplicate, err := h.transactionService.InitiatePayment(c.Request.Context(), params)
	h.respondInitiated(c, txn, duplicate, err)
}

// Convert initiates a cross-currency movement between two wallets
func (h *TransactionHandler) Convert(c *gin.Context) {
	var req ConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sourceID, err := uuid.Parse(req.SourceWalletID)
	if err != nil {
		RespondBadRequest(c, "Invalid source wallet ID")
		return
	}
	destinationID, err := uuid.Parse(req.DestinationWalletID)
	if err != nil {
		RespondBadRequest(c, "Invalid destination wallet ID")
		return
	}

	params := &service.ConversionParams{
		SourceWalletID:      sourceID,
		DestinationWalletID: destinationID,
		Amount:              req.Amount,
		FromCurrency:        shared.Currency(req.FromCurrency),
		ToCurrency:          shared.Currency(req.ToCurrency),
		IdempotencyKey:      req.IdempotencyKey,
		CorrelationID:       middleware.GetCorrelationID(c),
	}

	txn, record, duplicate, err := h.transactionService.InitiateConversion(c.Request.Context(), params)
	if err != nil {
		h.respondInitiateError(c, err)
		return
	}

	response := ConversionResponse{
		Transaction: mapTransactionToResponse(txn),
		Quote: QuoteResponse{
			FromCurrency: string(record.FromCurrency),
			ToCurrency:   string(record.ToCurrency),
			FromAmount:   record.FromAmount,
			ToAmount:     record.ToAmount,
			Rate:         record.Rate.String(),
			Fee:          record.Fee,
			QuotedAt:     record.CreatedAt.Format(time.RFC3339),
		},
	}
	if duplicate {
		RespondOK(c, response)
		return
	}
	RespondAccepted(c, response)
}

// Quote prices a conversion without committing anything
func (h *TransactionHandler) Quote(c *gin.Context) {
	var params QuoteParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid quote parameters", "error", err)
		RespondBadRequest(c, "Invalid quote parameters: "+err.Error())
		return
	}

	quote, err := h.transactionService.QuoteConversion(
		c.Request.Context(),
		shared.Currency(params.From),
		shared.Currency(params.To),
		params.Amount,
	)
	if err != nil {
		if errors.Is(err, fx.ErrUnsupportedPair) || errors.Is(err, shared.ErrInvalidCurrency) || errors.Is(err, shared.ErrInvalidAmount) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to quote conversion", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, QuoteResponse{
		FromCurrency: string(quote.FromCurrency),
		ToCurrency:   string(quote.ToCurrency),
		FromAmount:   quote.FromAmount,
		ToAmount:     quote.ToAmount,
		Rate:         quote.Rate.String(),
		Fee:          quote.Fee,
		QuotedAt:     quote.QuotedAt.Format(time.RFC3339),
	})
}

// GetByID retrieves transaction details by its ID, returns 404 if not found
func (h *TransactionHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid transaction ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	txn, err := h.transactionService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get transaction", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}
	if txn == nil {
		RespondNotFound(c, "Transaction not found")
		return
	}

	RespondOK(c, mapTransactionToResponse(txn))
}

// Cancel cancels a transaction the provider has not acknowledged yet
func (h *TransactionHandler) Cancel(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid transaction ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	txn, err := h.transactionService.CancelTransaction(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrInvalidStateTransition{}) {
			RespondConflict(c, "Transaction can no longer be cancelled")
			return
		}
		h.logger.Error("Failed to cancel transaction", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}
	if txn == nil {
		RespondNotFound(c, "Transaction not found")
		return
	}

	RespondOK(c, mapTransactionToResponse(txn))
}

// respondInitiated writes the accepted-or-replayed response for an intent.
// A fresh acceptance is 202; a replay of a previously accepted request is 200.
func (h *TransactionHandler) respondInitiated(c *gin.Context, txn *transaction.Transaction, duplicate bool, err error) {
	if err != nil {
		h.respondInitiateError(c, err)
		return
	}
	if duplicate {
		RespondOK(c, mapTransactionToResponse(txn))
		return
	}
	RespondAccepted(c, mapTransactionToResponse(txn))
}

func (h *TransactionHandler) respondInitiateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOperationInFlight):
		RespondConflict(c, "A request with this idempotency key is already in progress")
	case errors.Is(err, shared.ErrInvalidAmount),
		errors.Is(err, shared.ErrInvalidCurrency),
		errors.Is(err, shared.ErrInvalidTransactionType),
		errors.Is(err, fx.ErrUnsupportedPair):
		RespondBadRequest(c, err.Error())
	default:
		h.logger.Error("Failed to initiate transaction", "error", err)
		RespondInternalError(c)
	}
}

// mapTransactionToResponse maps a transaction entity to a response DTO
func mapTransactionToResponse(txn *transaction.Transaction) TransactionResponse {
	response := TransactionResponse{
		ID:            txn.ID.String(),
		Type:          string(txn.Type),
		Source:        mapEndpointToResponse(txn.Source),
		Destination:   mapEndpointToResponse(txn.Destination),
		Amount:        txn.Amount,
		Fee:           txn.Fee,
		Currency:      string(txn.Currency),
		ExchangeRate:  txn.ExchangeRate,
		Status:        string(txn.Status),
		FailureReason: string(txn.FailureReason),
		Provider:      txn.Provider,
		CreatedAt:     txn.CreatedAt.Format(time.RFC3339),
	}

	if txn.SettledAt != nil {
		response.SettledAt = txn.SettledAt.Format(time.RFC3339)
	}

	return response
}

func mapEndpointToResponse(ref transaction.EndpointRef) EndpointResponse {
	response := EndpointResponse{
		Kind:     string(ref.Kind),
		External: ref.External,
	}
	if ref.WalletID != uuid.Nil {
		response.WalletID = ref.WalletID.String()
	}
	return response
}
