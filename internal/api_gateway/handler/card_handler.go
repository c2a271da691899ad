package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/api_gateway/service"
	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
)

// CardHandler handles HTTP requests for card operations
type CardHandler struct {
	cardService service.CardService
	logger      *slog.Logger
}

// NewCardHandler creates a new card handler
func NewCardHandler(logger *slog.Logger, cardService service.CardService) *CardHandler {
	return &CardHandler{
		cardService: cardService,
		logger:      logger,
	}
}

// Issue requests a new card against a wallet
func (h *CardHandler) Issue(c *gin.Context) {
	var req IssueCardRequest
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
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		RespondBadRequest(c, "Invalid wallet ID")
		return
	}

	issued, err := h.cardService.IssueCard(c.Request.Context(), accountID, walletID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound{}) {
			RespondNotFound(c, "Wallet not found")
			return
		}
		if errors.Is(err, wallet.ErrWalletDeactivated) {
			RespondBadRequest(c, "Wallet is deactivated")
			return
		}
		h.logger.Error("Failed to issue card", "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapCardToResponse(issued))
}

// GetByID retrieves a card by its ID, returning 404 if not found
func (h *CardHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid card ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid card ID")
		return
	}

	found, err := h.cardService.GetCard(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get card", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}
	if found == nil {
		RespondNotFound(c, "Card not found")
		return
	}

	RespondOK(c, mapCardToResponse(found))
}

// List retrieves all cards for an account
func (h *CardHandler) List(c *gin.Context) {
	var params CardListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid or missing account_id")
		return
	}

	accountID, err := uuid.Parse(params.AccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid account ID")
		return
	}

	cards, err := h.cardService.ListCards(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("Failed to list cards", "account_id", params.AccountID, "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]CardResponse, 0, len(cards))
	for _, found := range cards {
		responses = append(responses, mapCardToResponse(found))
	}

	RespondOK(c, responses)
}

// Lock blocks a card for new payments
func (h *CardHandler) Lock(c *gin.Context) {
	h.mutate(c, h.cardService.LockCard)
}

// Unlock re-enables a locked card
func (h *CardHandler) Unlock(c *gin.Context) {
	h.mutate(c, h.cardService.UnlockCard)
}

func (h *CardHandler) mutate(c *gin.Context, apply func(ctx context.Context, id uuid.UUID) (*card.Card, error)) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid card ID")
		return
	}

	updated, err := apply(c.Request.Context(), id)
	if err != nil {
		var notFound card.ErrCardNotFound
		var notActive card.ErrCardNotActive
		var notLocked card.ErrCardNotLocked
		switch {
		case errors.As(err, &notFound):
			RespondNotFound(c, "Card not found")
		case errors.As(err, &notActive), errors.As(err, &notLocked):
			RespondConflict(c, err.Error())
		default:
			h.logger.Error("Failed to change card state", "id", idParam, "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondOK(c, mapCardToResponse(updated))
}

// mapCardToResponse maps a card entity to a card response DTO
func mapCardToResponse(found *card.Card) CardResponse {
	return CardResponse{
		ID:        found.ID.String(),
		AccountID: found.AccountID.String(),
		WalletID:  found.WalletID.String(),
		MaskedPAN: found.MaskedPAN,
		Provider:  found.Provider,
		Status:    string(found.Status),
		CreatedAt: found.CreatedAt.Format(time.RFC3339),
		UpdatedAt: found.UpdatedAt.Format(time.RFC3339),
	}
}
