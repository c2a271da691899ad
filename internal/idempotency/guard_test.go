package idempotency

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	return raw, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type countingMetrics struct {
	mu         sync.Mutex
	duplicates map[string]int
}

func (m *countingMetrics) ObserveDuplicate(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duplicates == nil {
		m.duplicates = make(map[string]int)
	}
	m.duplicates[scope]++
}

func newTestGuard(store Store, metrics Metrics) *Guard {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewGuard(logger, store, metrics, 72*time.Hour)
}

func TestGuard_CheckAndRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("first registration claims the key", func(t *testing.T) {
		guard := newTestGuard(newMemoryStore(), nil)

		result, duplicate, err := guard.CheckAndRegister(ctx, ScopeClient, "key-1")
		require.NoError(t, err)
		assert.False(t, duplicate)
		assert.Nil(t, result)
	})

	t.Run("second registration observes in-flight marker", func(t *testing.T) {
		guard := newTestGuard(newMemoryStore(), nil)

		_, duplicate, err := guard.CheckAndRegister(ctx, ScopeClient, "key-1")
		require.NoError(t, err)
		require.False(t, duplicate)

		result, duplicate, err := guard.CheckAndRegister(ctx, ScopeClient, "key-1")
		require.NoError(t, err)
		assert.True(t, duplicate)
		require.NotNil(t, result)
		assert.True(t, result.InFlight())
	})

	t.Run("duplicate replays stored result", func(t *testing.T) {
		guard := newTestGuard(newMemoryStore(), nil)

		_, _, err := guard.CheckAndRegister(ctx, ScopeClient, "key-1")
		require.NoError(t, err)

		stored := &Result{
			Status:     "SETTLED",
			StatusCode: 200,
			Body:       json.RawMessage(`{"transaction_id":"abc"}`),
		}
		require.NoError(t, guard.StoreResult(ctx, ScopeClient, "key-1", stored))

		result, duplicate, err := guard.CheckAndRegister(ctx, ScopeClient, "key-1")
		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, "SETTLED", result.Status)
		assert.Equal(t, 200, result.StatusCode)
		assert.JSONEq(t, `{"transaction_id":"abc"}`, string(result.Body))
	})

	t.Run("scopes partition the key space", func(t *testing.T) {
		guard := newTestGuard(newMemoryStore(), nil)

		_, duplicate, err := guard.CheckAndRegister(ctx, ScopeClient, "key-1")
		require.NoError(t, err)
		assert.False(t, duplicate)

		_, duplicate, err = guard.CheckAndRegister(ctx, ScopeWebhook, "key-1")
		require.NoError(t, err)
		assert.False(t, duplicate)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		guard := newTestGuard(newMemoryStore(), nil)

		_, _, err := guard.CheckAndRegister(ctx, ScopeClient, "")
		assert.Error(t, err)
	})

	t.Run("duplicate hits are counted per scope", func(t *testing.T) {
		metrics := &countingMetrics{}
		guard := newTestGuard(newMemoryStore(), metrics)

		_, _, err := guard.CheckAndRegister(ctx, ScopeWebhook, "qmoney:QM-1")
		require.NoError(t, err)
		_, _, err = guard.CheckAndRegister(ctx, ScopeWebhook, "qmoney:QM-1")
		require.NoError(t, err)
		_, _, err = guard.CheckAndRegister(ctx, ScopeWebhook, "qmoney:QM-1")
		require.NoError(t, err)

		assert.Equal(t, 2, metrics.duplicates["webhook"])
	})
}

func TestGuard_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	guard := newTestGuard(newMemoryStore(), nil)

	const attempts = 20
	var wg sync.WaitGroup
	claims := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, duplicate, err := guard.CheckAndRegister(ctx, ScopeClient, "contended-key")
			if err == nil && !duplicate {
				claims <- true
			}
		}()
	}
	wg.Wait()
	close(claims)

	won := 0
	for range claims {
		won++
	}
	assert.Equal(t, 1, won, "exactly one concurrent caller should claim the key")
}
