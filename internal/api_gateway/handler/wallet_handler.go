package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/api_gateway/service"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
)

// WalletHandler handles HTTP requests for wallet operations
type WalletHandler struct {
	walletService service.WalletService
	logger        *slog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(logger *slog.Logger, walletService service.WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

// Create handles creation of a new wallet for an (account, currency) pair
func (h *WalletHandler) Create(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid account ID")
		return
	}

	w, err := h.walletService.CreateWallet(c.Request.Context(), accountID, shared.Currency(req.Currency))
	if err != nil {
		h.logger.Error("Failed to create wallet", "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapWalletToResponse(w))
}

// GetByID retrieves a wallet by its ID, returning 404 if not found
func (h *WalletHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid wallet ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid wallet ID")
		return
	}

	w, err := h.walletService.GetWallet(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get wallet", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}
	if w == nil {
		RespondNotFound(c, "Wallet not found")
		return
	}

	RespondOK(c, mapWalletToResponse(w))
}

// GetTransactions retrieves paginated transaction history for a wallet
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid wallet ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid wallet ID")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	transactions, total, err := h.walletService.GetWalletTransactions(
		c.Request.Context(),
		id,
		pagination.Page,
		pagination.PerPage,
	)
	if err != nil {
		h.logger.Error("Failed to get wallet transactions", "wallet_id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	var responses []TransactionResponse
	for _, txn := range transactions {
		responses = append(responses, mapTransactionToResponse(txn))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

// mapWalletToResponse maps a wallet entity to a wallet response DTO
func mapWalletToResponse(w *wallet.Wallet) WalletResponse {
	return WalletResponse{
		ID:               w.ID.String(),
		AccountID:        w.AccountID.String(),
		Currency:         string(w.Currency),
		AvailableBalance: w.AvailableBalance,
		PendingBalance:   w.PendingBalance,
		TotalBalance:     w.TotalBalance(),
		Status:           string(w.Status),
		CreatedAt:        w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        w.UpdatedAt.Format(time.RFC3339),
	}
}
