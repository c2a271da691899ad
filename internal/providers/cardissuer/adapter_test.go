package cardissuer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalasi-wallet-core/internal/config"
	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

func newAdapterForServer(url string) *Adapter {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewAdapter(logger, &config.ProviderConfig{
		BaseURL:        url,
		APIKey:         "test-token",
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
	})
}

func TestAdapter_Initiate(t *testing.T) {
	intent := provider.Intent{
		TransactionID:  uuid.New(),
		Type:           shared.TransactionTypeCardPayment,
		Amount:         12500,
		Currency:       shared.CurrencyUSD,
		CounterpartyID: "card-ref-77",
		IdempotencyKey: "idem-card-1",
	}

	t.Run("success with bearer auth and PURCHASE kind", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v2/transactions", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "idem-card-1", req["clientReference"])
			assert.Equal(t, "PURCHASE", req["transactionKind"])

			json.NewEncoder(w).Encode(map[string]string{"processorRef": "CP-500", "status": "PROCESSING"})
		}))
		defer server.Close()

		ref, err := newAdapterForServer(server.URL).Initiate(context.Background(), intent)
		require.NoError(t, err)
		assert.Equal(t, ProviderName, ref.Provider)
		assert.Equal(t, "CP-500", ref.ProviderRef)
	})

	t.Run("card top-up maps to LOAD", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "LOAD", req["transactionKind"])
			json.NewEncoder(w).Encode(map[string]string{"processorRef": "CP-501", "status": "PROCESSING"})
		}))
		defer server.Close()

		loadIntent := intent
		loadIntent.Type = shared.TransactionTypeCardTopUp

		_, err := newAdapterForServer(server.URL).Initiate(context.Background(), loadIntent)
		require.NoError(t, err)
	})

	t.Run("unavailable after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newAdapterForServer(server.URL).Initiate(context.Background(), intent)
		assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("decline stops immediately", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusPaymentRequired)
		}))
		defer server.Close()

		_, err := newAdapterForServer(server.URL).Initiate(context.Background(), intent)
		assert.ErrorIs(t, err, provider.ErrProviderDeclined)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestAdapter_ParseWebhook(t *testing.T) {
	adapter := newAdapterForServer("http://unused")

	t.Run("approved callback settles", func(t *testing.T) {
		raw := []byte(`{"processorRef":"CP-500","clientReference":"idem-card-1","status":"APPROVED"}`)

		event, err := adapter.ParseWebhook(raw)
		require.NoError(t, err)
		assert.Equal(t, ProviderName, event.Provider)
		assert.Equal(t, "CP-500", event.ProviderRef)
		assert.Equal(t, provider.OutcomeSettled, event.Outcome)
	})

	t.Run("declined callback fails", func(t *testing.T) {
		event, err := adapter.ParseWebhook([]byte(`{"processorRef":"CP-1","status":"DECLINED","reasonCode":"51"}`))
		require.NoError(t, err)
		assert.Equal(t, provider.OutcomeFailed, event.Outcome)
	})

	t.Run("issuance callback carries the card identity", func(t *testing.T) {
		cardID := uuid.New()
		raw := []byte(`{"eventType":"card.issued","processorRef":"CP-900","cardReference":"` + cardID.String() + `","status":"APPROVED","maskedPan":"411111******1111"}`)

		event, err := adapter.ParseWebhook(raw)
		require.NoError(t, err)
		assert.Equal(t, provider.EventKindCardIssuance, event.Kind)
		assert.Equal(t, cardID, event.CardID)
		assert.Equal(t, "411111******1111", event.MaskedPAN)
		assert.Equal(t, provider.OutcomeSettled, event.Outcome)
	})

	t.Run("transaction callback keeps the transaction kind", func(t *testing.T) {
		event, err := adapter.ParseWebhook([]byte(`{"processorRef":"CP-901","status":"SETTLED"}`))
		require.NoError(t, err)
		assert.Equal(t, provider.EventKindTransaction, event.Kind)
	})

	t.Run("malformed payloads rejected", func(t *testing.T) {
		_, err := adapter.ParseWebhook([]byte(`{`))
		assert.ErrorIs(t, err, provider.ErrMalformedWebhook)

		_, err = adapter.ParseWebhook([]byte(`{"status":"APPROVED"}`))
		assert.ErrorIs(t, err, provider.ErrMalformedWebhook)

		_, err = adapter.ParseWebhook([]byte(`{"eventType":"card.issued","processorRef":"CP-902","cardReference":"not-a-uuid","status":"APPROVED"}`))
		assert.ErrorIs(t, err, provider.ErrMalformedWebhook)
	})
}

func TestAdapter_RequestIssuance(t *testing.T) {
	c := card.NewRequest(uuid.New(), uuid.New(), ProviderName)

	t.Run("posts the card request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v2/cards", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, c.ID.String(), req["clientReference"])
			assert.Equal(t, c.AccountID.String(), req["accountReference"])

			json.NewEncoder(w).Encode(map[string]string{"processorRef": "CP-910", "status": "PROCESSING"})
		}))
		defer server.Close()

		err := newAdapterForServer(server.URL).RequestIssuance(context.Background(), c)
		assert.NoError(t, err)
	})

	t.Run("processor refusal surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		err := newAdapterForServer(server.URL).RequestIssuance(context.Background(), c)
		assert.ErrorIs(t, err, provider.ErrProviderDeclined)
	})
}

func TestAdapter_ReconcileStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/transactions/CP-500", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"processorRef": "CP-500", "status": "DECLINED"})
	}))
	defer server.Close()

	outcome, err := newAdapterForServer(server.URL).ReconcileStatus(context.Background(),
		provider.Reference{Provider: ProviderName, ProviderRef: "CP-500"})
	require.NoError(t, err)
	assert.Equal(t, provider.OutcomeFailed, outcome)
}
