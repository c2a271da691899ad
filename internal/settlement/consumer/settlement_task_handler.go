package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/platform/messaging/producers"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

// SettlementTaskHandler handles incoming settlement task messages from Kafka
type SettlementTaskHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

// NewSettlementTaskHandler creates a new handler
func NewSettlementTaskHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *SettlementTaskHandler {
	return &SettlementTaskHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage processes Kafka messages
func (h *SettlementTaskHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var task shared.SettlementTask
	if err := json.Unmarshal(value, &task); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal settlement task from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Send to DLQ if available
		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
				// Return original error if DLQ fails
			} else {
				h.logger.Info("Successfully published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
				// Message handled, commit offset
				return nil
			}
		}
		// Allow Kafka retries
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger
	if task.CorrelationID != "" {
		logger = h.logger.With("correlation_id", task.CorrelationID)
	}

	logger.Info("Received settlement task for processing",
		"transaction_id", task.TransactionID.String(),
		"kind", string(task.Kind),
	)

	if err := h.processingService.ProcessTask(ctx, &task); err != nil {
		logger.Error("Failed to process settlement task",
			"transaction_id", task.TransactionID.String(),
			"kind", string(task.Kind),
			"error", err,
		)
		return fmt.Errorf("processing settlement task %s failed: %w", task.TransactionID.String(), err)
	}

	logger.Info("Successfully processed settlement task", "transaction_id", task.TransactionID.String())
	return nil // Success, commit offset
}
