package handler

import (
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/dalasi-wallet-core/internal/api_gateway/service"
)

// WebhookHandler handles inbound provider callbacks. It always acknowledges
// with 200 regardless of internal processing outcome, so a provider never
// enters a retry storm over a payload the core cannot use; failures are
// resolved asynchronously by reconciliation.
type WebhookHandler struct {
	webhookService service.WebhookService
	logger         *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *slog.Logger, webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// Receive ingests one provider callback
func (h *WebhookHandler) Receive(c *gin.Context) {
	providerName := c.Param("provider")

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", "provider", providerName, "error", err)
		RespondOK(c, gin.H{"status": "ignored"})
		return
	}

	event, duplicate, err := h.webhookService.HandleWebhook(c.Request.Context(), providerName, payload)
	if err != nil {
		h.logger.Error("Webhook processing failed", "provider", providerName, "error", err)
		RespondOK(c, gin.H{"status": "ignored"})
		return
	}
	if duplicate {
		RespondOK(c, gin.H{"status": "duplicate", "event_id": event.ID.String()})
		return
	}

	RespondOK(c, gin.H{"status": "received", "event_id": event.ID.String()})
}
