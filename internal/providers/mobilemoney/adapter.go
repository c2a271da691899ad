// Package mobilemoney integrates the QMoney mobile-money gateway. The gateway
// authenticates with an API key header, acknowledges payment requests with its
// own reference, and confirms settlement asynchronously via webhook.
package mobilemoney

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
	"github.com/dalasi-wallet-core/internal/domain/provider"
)

const ProviderName = "qmoney"

// Adapter implements provider.Adapter for the QMoney gateway
type Adapter struct {
	baseURL     string
	apiKey      string
	maxAttempts int
	backoffBase time.Duration
	client      *http.Client
	logger      *slog.Logger
}

func NewAdapter(logger *slog.Logger, cfg *config.ProviderConfig) *Adapter {
	return &Adapter{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		logger:      logger,
	}
}

func (a *Adapter) Name() string {
	return ProviderName
}

// paymentRequest is QMoney's charge/payout request shape
type paymentRequest struct {
	ExternalID string `json:"external_id"`
	Msisdn     string `json:"msisdn"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Direction  string `json:"direction"`
}

// paymentResponse is QMoney's synchronous acknowledgment
type paymentResponse struct {
	Reference string `json:"reference"`
	State     string `json:"state"`
	Message   string `json:"message,omitempty"`
}

// webhookPayload is QMoney's asynchronous confirmation shape
type webhookPayload struct {
	Reference  string `json:"reference"`
	ExternalID string `json:"external_id"`
	State      string `json:"state"`
	Message    string `json:"message,omitempty"`
}

// Initiate submits the movement to QMoney, retrying transport failures with
// exponential backoff up to the configured attempt count. The intent's
// idempotency key rides as external_id, QMoney's own dedup handle, so a
// retried call cannot double charge.
func (a *Adapter) Initiate(ctx context.Context, intent provider.Intent) (provider.Reference, error) {
	direction := "collect"
	if !intent.Type.IsExternalCredit() {
		direction = "disburse"
	}

	body, err := json.Marshal(paymentRequest{
		ExternalID: intent.IdempotencyKey,
		Msisdn:     intent.CounterpartyID,
		Amount:     intent.Amount,
		Currency:   string(intent.Currency),
		Direction:  direction,
	})
	if err != nil {
		return provider.Reference{}, fmt.Errorf("failed to marshal qmoney payment request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		resp, err := a.post(ctx, "/v1/payments", body)
		if err == nil {
			return provider.Reference{Provider: ProviderName, ProviderRef: resp.Reference}, nil
		}
		if errors.Is(err, provider.ErrProviderDeclined) {
			return provider.Reference{}, err
		}
		lastErr = err

		a.logger.Warn("QMoney initiate attempt failed",
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

	return provider.Reference{}, fmt.Errorf("%w: qmoney initiate failed after %d attempts: %v",
		provider.ErrProviderUnavailable, a.maxAttempts, lastErr)
}

func (a *Adapter) post(ctx context.Context, path string, body []byte) (*paymentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build qmoney request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qmoney request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read qmoney response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("qmoney returned %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 {
		// Client errors are declines, not outages. No retry.
		return nil, fmt.Errorf("%w: qmoney declined with %d: %s",
			provider.ErrProviderDeclined, resp.StatusCode, string(raw))
	}

	var parsed paymentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse qmoney response: %w", err)
	}
	if parsed.Reference == "" {
		return nil, fmt.Errorf("qmoney response missing reference")
	}

	return &parsed, nil
}

// ParseWebhook validates and normalizes a QMoney callback into an Event
func (a *Adapter) ParseWebhook(raw []byte) (*provider.Event, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedWebhook, err)
	}
	if payload.Reference == "" || payload.State == "" {
		return nil, fmt.Errorf("%w: missing reference or state", provider.ErrMalformedWebhook)
	}

	return &provider.Event{
		ID:          uuid.New(),
		Provider:    ProviderName,
		ProviderRef: payload.Reference,
		Kind:        provider.EventKindTransaction,
		Outcome:     mapState(payload.State),
		RawPayload:  raw,
		ReceivedAt:  time.Now(),
	}, nil
}

// ReconcileStatus queries QMoney for the current state of a payment
func (a *Adapter) ReconcileStatus(ctx context.Context, ref provider.Reference) (provider.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/payments/"+ref.ProviderRef, nil)
	if err != nil {
		return provider.OutcomeUnknown, fmt.Errorf("failed to build qmoney status request: %w", err)
	}
	req.Header.Set("X-API-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.OutcomeUnknown, fmt.Errorf("%w: qmoney status query failed: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.OutcomeUnknown, fmt.Errorf("%w: qmoney status query returned %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return provider.OutcomeUnknown, fmt.Errorf("failed to parse qmoney status response: %w", err)
	}

	return mapState(parsed.State), nil
}

// mapState normalizes QMoney's state vocabulary onto the core outcomes
func mapState(state string) provider.Outcome {
	switch state {
	case "received", "processing":
		return provider.OutcomeAccepted
	case "successful":
		return provider.OutcomeSettled
	case "failed", "rejected", "expired":
		return provider.OutcomeFailed
	default:
		return provider.OutcomeUnknown
	}
}
