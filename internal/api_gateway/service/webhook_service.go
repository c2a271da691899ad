package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/idempotency"
	"github.com/dalasi-wallet-core/internal/platform/messaging/producers"
)

// ProviderResolver resolves an adapter by provider name
type ProviderResolver interface {
	Get(name string) (provider.Adapter, error)
}

// WebhookServiceImpl implements the WebhookService interface
type WebhookServiceImpl struct {
	providers       ProviderResolver
	eventRepo       provider.EventRepository
	transactionRepo transaction.Repository
	cardRepo        card.Repository
	guard           *idempotency.Guard
	producer        producers.MessagePublisher
	logger          *slog.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	logger *slog.Logger,
	providers ProviderResolver,
	eventRepo provider.EventRepository,
	transactionRepo transaction.Repository,
	cardRepo card.Repository,
	guard *idempotency.Guard,
	producer producers.MessagePublisher,
) WebhookService {
	return &WebhookServiceImpl{
		providers:       providers,
		eventRepo:       eventRepo,
		transactionRepo: transactionRepo,
		cardRepo:        cardRepo,
		guard:           guard,
		producer:        producer,
		logger:          logger,
	}
}

// HandleWebhook parses, dedups, persists, and queues a provider callback.
// Returns (event, duplicate, error). Parse failures return
// provider.ErrMalformedWebhook wrapped by the adapter.
func (s *WebhookServiceImpl) HandleWebhook(ctx context.Context, providerName string, payload []byte) (*provider.Event, bool, error) {
	adapter, err := s.providers.Get(providerName)
	if err != nil {
		s.logger.Warn("Webhook for unknown provider", "provider", providerName)
		return nil, false, err
	}

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		s.logger.Warn("Malformed webhook payload", "provider", providerName, "error", err)
		return nil, false, err
	}

	_, duplicate, err := s.guard.CheckAndRegister(ctx, idempotency.ScopeWebhook, event.DedupKey())
	if err != nil {
		// Mongo's event store still absorbs the replay on Save.
		s.logger.Warn("Webhook dedup check unavailable", "provider", providerName, "error", err)
	} else if duplicate {
		s.logger.Info("Duplicate webhook delivery absorbed",
			"provider", providerName,
			"provider_ref", event.ProviderRef,
		)
		return event, true, nil
	}

	if event.Kind == provider.EventKindCardIssuance {
		return s.handleCardIssuance(ctx, event)
	}

	if event.TransactionID == uuid.Nil {
		txn, lookupErr := s.transactionRepo.GetByProviderRef(ctx, providerName, event.ProviderRef)
		if lookupErr == nil && txn != nil {
			event.TransactionID = txn.ID
		}
	}

	if err := s.eventRepo.Save(ctx, event); err != nil {
		if errors.Is(err, provider.ErrDuplicateEvent) {
			s.logger.Info("Duplicate webhook delivery absorbed by event store",
				"provider", providerName,
				"provider_ref", event.ProviderRef,
			)
			return event, true, nil
		}
		s.logger.Error("Failed to persist provider event",
			"provider", providerName,
			"provider_ref", event.ProviderRef,
			"error", err,
		)
		return nil, false, err
	}

	task := &shared.SettlementTask{
		Kind:          shared.TaskKindProviderEvent,
		TransactionID: event.TransactionID,
		EventID:       event.ID.String(),
		Provider:      providerName,
	}
	if err := s.producer.Publish(ctx, event.TransactionID.String(), task); err != nil {
		s.logger.Error("Failed to publish provider event task",
			"provider", providerName,
			"event_id", event.ID.String(),
			"error", err,
		)
		return nil, false, err
	}

	s.logger.Info("Provider webhook accepted",
		"provider", providerName,
		"provider_ref", event.ProviderRef,
		"outcome", string(event.Outcome),
		"event_id", event.ID.String(),
	)
	return event, false, nil
}

// handleCardIssuance applies an issuance confirmation directly: activating a
// card moves no funds, so these events never enter the settlement queue.
// Activation runs before the event is stored, so a redelivery after a partial
// failure can still complete it.
func (s *WebhookServiceImpl) handleCardIssuance(ctx context.Context, event *provider.Event) (*provider.Event, bool, error) {
	logger := s.logger.With("card_id", event.CardID.String(), "provider_ref", event.ProviderRef)

	if event.Outcome == provider.OutcomeSettled {
		c, err := s.cardRepo.GetByID(ctx, event.CardID)
		if err != nil {
			logger.Error("Issuance callback references unknown card", "error", err)
			return nil, false, err
		}
		if c.Status == card.StatusRequested {
			c.Activate(event.ProviderRef, event.MaskedPAN)
			if err := s.cardRepo.Update(ctx, c); err != nil {
				logger.Error("Failed to activate card", "error", err)
				return nil, false, err
			}
			logger.Info("Card activated", "masked_pan", c.MaskedPAN)
		}
	} else {
		logger.Warn("Card issuance not confirmed by processor", "outcome", string(event.Outcome))
	}

	if err := s.eventRepo.Save(ctx, event); err != nil {
		if errors.Is(err, provider.ErrDuplicateEvent) {
			return event, true, nil
		}
		logger.Error("Failed to persist issuance event", "error", err)
		return nil, false, err
	}
	if err := s.eventRepo.MarkProcessed(ctx, event.ID); err != nil {
		logger.Warn("Failed to mark issuance event processed", "error", err)
	}
	return event, false, nil
}
