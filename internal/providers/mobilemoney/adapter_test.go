package mobilemoney

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
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

func newAdapterForServer(url string) *Adapter {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewAdapter(logger, &config.ProviderConfig{
		BaseURL:        url,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
	})
}

func testIntent() provider.Intent {
	return provider.Intent{
		TransactionID:  uuid.New(),
		Type:           shared.TransactionTypeTopUp,
		Amount:         50000,
		Currency:       shared.CurrencyGMD,
		CounterpartyID: "2207001122",
		IdempotencyKey: "idem-abc",
	}
}

func TestAdapter_Initiate(t *testing.T) {
	t.Run("success returns provider reference", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/payments", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "idem-abc", req["external_id"])
			assert.Equal(t, "collect", req["direction"])

			json.NewEncoder(w).Encode(map[string]string{"reference": "QM-1001", "state": "received"})
		}))
		defer server.Close()

		ref, err := newAdapterForServer(server.URL).Initiate(context.Background(), testIntent())
		require.NoError(t, err)
		assert.Equal(t, ProviderName, ref.Provider)
		assert.Equal(t, "QM-1001", ref.ProviderRef)
	})

	t.Run("retries server errors then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"reference": "QM-1002", "state": "received"})
		}))
		defer server.Close()

		ref, err := newAdapterForServer(server.URL).Initiate(context.Background(), testIntent())
		require.NoError(t, err)
		assert.Equal(t, "QM-1002", ref.ProviderRef)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("unavailable after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newAdapterForServer(server.URL).Initiate(context.Background(), testIntent())
		assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client error is a decline, not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		_, err := newAdapterForServer(server.URL).Initiate(context.Background(), testIntent())
		assert.ErrorIs(t, err, provider.ErrProviderDeclined)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestAdapter_ParseWebhook(t *testing.T) {
	adapter := newAdapterForServer("http://unused")

	t.Run("settled callback", func(t *testing.T) {
		raw := []byte(`{"reference":"QM-1001","external_id":"idem-abc","state":"successful"}`)

		event, err := adapter.ParseWebhook(raw)
		require.NoError(t, err)
		assert.Equal(t, ProviderName, event.Provider)
		assert.Equal(t, "QM-1001", event.ProviderRef)
		assert.Equal(t, provider.OutcomeSettled, event.Outcome)
		assert.Equal(t, "qmoney:QM-1001", event.DedupKey())
		assert.JSONEq(t, string(raw), string(event.RawPayload))
	})

	t.Run("failed callback", func(t *testing.T) {
		event, err := adapter.ParseWebhook([]byte(`{"reference":"QM-2","state":"failed"}`))
		require.NoError(t, err)
		assert.Equal(t, provider.OutcomeFailed, event.Outcome)
	})

	t.Run("unrecognized state maps to unknown", func(t *testing.T) {
		event, err := adapter.ParseWebhook([]byte(`{"reference":"QM-3","state":"weird"}`))
		require.NoError(t, err)
		assert.Equal(t, provider.OutcomeUnknown, event.Outcome)
	})

	t.Run("malformed payloads rejected", func(t *testing.T) {
		_, err := adapter.ParseWebhook([]byte(`not-json`))
		assert.ErrorIs(t, err, provider.ErrMalformedWebhook)

		_, err = adapter.ParseWebhook([]byte(`{"state":"successful"}`))
		assert.ErrorIs(t, err, provider.ErrMalformedWebhook)
	})
}

func TestAdapter_ReconcileStatus(t *testing.T) {
	t.Run("maps provider state", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/payments/QM-1001", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{"reference": "QM-1001", "state": "successful"})
		}))
		defer server.Close()

		outcome, err := newAdapterForServer(server.URL).ReconcileStatus(context.Background(),
			provider.Reference{Provider: ProviderName, ProviderRef: "QM-1001"})
		require.NoError(t, err)
		assert.Equal(t, provider.OutcomeSettled, outcome)
	})

	t.Run("outage maps to unknown with unavailable error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		outcome, err := newAdapterForServer(server.URL).ReconcileStatus(context.Background(),
			provider.Reference{Provider: ProviderName, ProviderRef: "QM-1001"})
		assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
		assert.Equal(t, provider.OutcomeUnknown, outcome)
	})
}
