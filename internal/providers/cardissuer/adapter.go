// Package cardissuer integrates the card issuing processor. The processor
// authenticates with a bearer token and uses a status vocabulary of its own;
// card payments and card top-ups both settle through its webhooks, and card
// issuance confirmations arrive on the same callback channel.
package cardissuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/config"
	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/domain/provider"
)

const ProviderName = "cardproc"

// Adapter implements provider.Adapter for the card processor
type Adapter struct {
	baseURL     string
	token       string
	maxAttempts int
	backoffBase time.Duration
	client      *http.Client
	logger      *slog.Logger
}

func NewAdapter(logger *slog.Logger, cfg *config.ProviderConfig) *Adapter {
	return &Adapter{
		baseURL:     cfg.BaseURL,
		token:       cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		logger:      logger,
	}
}

func (a *Adapter) Name() string {
	return ProviderName
}

// authorizationRequest is the processor's transaction request shape
type authorizationRequest struct {
	ClientReference string `json:"clientReference"`
	CardReference   string `json:"cardReference"`
	AmountMinor     int64  `json:"amountMinor"`
	CurrencyCode    string `json:"currencyCode"`
	TransactionKind string `json:"transactionKind"`
}

// authorizationResponse is the processor's synchronous acknowledgment
type authorizationResponse struct {
	ProcessorRef string `json:"processorRef"`
	Status       string `json:"status"`
	ReasonCode   string `json:"reasonCode,omitempty"`
}

// issuanceRequest is the processor's card creation shape. The card ID travels
// as clientReference and comes back on the issuance callback.
type issuanceRequest struct {
	ClientReference  string `json:"clientReference"`
	AccountReference string `json:"accountReference"`
}

// callbackPayload is the processor's webhook shape. Transaction callbacks
// carry no eventType; issuance confirmations arrive as "card.issued" with the
// card ID in cardReference.
type callbackPayload struct {
	EventType       string `json:"eventType,omitempty"`
	ProcessorRef    string `json:"processorRef"`
	ClientReference string `json:"clientReference"`
	CardReference   string `json:"cardReference,omitempty"`
	Status          string `json:"status"`
	ReasonCode      string `json:"reasonCode,omitempty"`
	MaskedPAN       string `json:"maskedPan,omitempty"`
}

// Initiate submits the card movement, retrying transport failures with
// exponential backoff. The idempotency key travels as clientReference, the
// processor's duplicate-suppression handle.
func (a *Adapter) Initiate(ctx context.Context, intent provider.Intent) (provider.Reference, error) {
	kind := "PURCHASE"
	if intent.Type.IsExternalCredit() {
		kind = "LOAD"
	}

	body, err := json.Marshal(authorizationRequest{
		ClientReference: intent.IdempotencyKey,
		CardReference:   intent.CounterpartyID,
		AmountMinor:     intent.Amount,
		CurrencyCode:    string(intent.Currency),
		TransactionKind: kind,
	})
	if err != nil {
		return provider.Reference{}, fmt.Errorf("failed to marshal card processor request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		resp, err := a.post(ctx, "/api/v2/transactions", body)
		if err == nil {
			return provider.Reference{Provider: ProviderName, ProviderRef: resp.ProcessorRef}, nil
		}
		if errors.Is(err, provider.ErrProviderDeclined) {
			return provider.Reference{}, err
		}
		lastErr = err

		a.logger.Warn("Card processor initiate attempt failed",
			"transaction_id", intent.TransactionID.String(),
			"attempt", attempt,
			"max_attempts", a.maxAttempts,
			"error", err,
		)

		if attempt < a.maxAttempts {
			select {
			case <-ctx.Done():
				return provider.Reference{}, ctx.Err()
			case <-time.After(a.backoffBase * time.Duration(1<<(attempt-1))):
			}
		}
	}

	return provider.Reference{}, fmt.Errorf("%w: card processor initiate failed after %d attempts: %v",
		provider.ErrProviderUnavailable, a.maxAttempts, lastErr)
}

func (a *Adapter) post(ctx context.Context, path string, body []byte) (*authorizationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build card processor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("card processor request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read card processor response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("card processor returned %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: card processor declined with %d: %s",
			provider.ErrProviderDeclined, resp.StatusCode, string(raw))
	}

	var parsed authorizationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse card processor response: %w", err)
	}
	if parsed.ProcessorRef == "" {
		return nil, fmt.Errorf("card processor response missing processorRef")
	}

	return &parsed, nil
}

// RequestIssuance asks the processor to issue a card against the account.
// The processor confirms asynchronously through a "card.issued" callback.
func (a *Adapter) RequestIssuance(ctx context.Context, c *card.Card) error {
	body, err := json.Marshal(issuanceRequest{
		ClientReference:  c.ID.String(),
		AccountReference: c.AccountID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal card issuance request: %w", err)
	}

	if _, err := a.post(ctx, "/api/v2/cards", body); err != nil {
		a.logger.Warn("Card issuance request failed", "card_id", c.ID.String(), "error", err)
		return fmt.Errorf("card issuance request failed: %w", err)
	}

	a.logger.Info("Card issuance requested with processor", "card_id", c.ID.String())
	return nil
}

// ParseWebhook validates and normalizes a processor callback into an Event
func (a *Adapter) ParseWebhook(raw []byte) (*provider.Event, error) {
	var payload callbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedWebhook, err)
	}
	if payload.ProcessorRef == "" || payload.Status == "" {
		return nil, fmt.Errorf("%w: missing processorRef or status", provider.ErrMalformedWebhook)
	}

	if payload.EventType == "card.issued" {
		cardID, err := uuid.Parse(payload.CardReference)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid cardReference on issuance callback", provider.ErrMalformedWebhook)
		}
		return &provider.Event{
			ID:          uuid.New(),
			Provider:    ProviderName,
			ProviderRef: payload.ProcessorRef,
			Kind:        provider.EventKindCardIssuance,
			CardID:      cardID,
			MaskedPAN:   payload.MaskedPAN,
			Outcome:     mapStatus(payload.Status),
			RawPayload:  raw,
			ReceivedAt:  time.Now(),
		}, nil
	}

	return &provider.Event{
		ID:          uuid.New(),
		Provider:    ProviderName,
		ProviderRef: payload.ProcessorRef,
		Kind:        provider.EventKindTransaction,
		Outcome:     mapStatus(payload.Status),
		RawPayload:  raw,
		ReceivedAt:  time.Now(),
	}, nil
}

// ReconcileStatus queries the processor for a transaction's current status
func (a *Adapter) ReconcileStatus(ctx context.Context, ref provider.Reference) (provider.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/v2/transactions/"+ref.ProviderRef, nil)
	if err != nil {
		return provider.OutcomeUnknown, fmt.Errorf("failed to build card processor status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.OutcomeUnknown, fmt.Errorf("%w: card processor status query failed: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.OutcomeUnknown, fmt.Errorf("%w: card processor status query returned %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed authorizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return provider.OutcomeUnknown, fmt.Errorf("failed to parse card processor status response: %w", err)
	}

	return mapStatus(parsed.Status), nil
}

// mapStatus normalizes the processor's status vocabulary onto the core outcomes
func mapStatus(status string) provider.Outcome {
	switch status {
	case "PROCESSING", "AUTHORIZED":
		return provider.OutcomeAccepted
	case "APPROVED", "SETTLED":
		return provider.OutcomeSettled
	case "DECLINED", "REVERSED", "TIMED_OUT":
		return provider.OutcomeFailed
	default:
		return provider.OutcomeUnknown
	}
}
