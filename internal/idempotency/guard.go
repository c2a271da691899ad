// Package idempotency provides the duplicate-suppression layer for client
// requests and provider webhooks. Keys are scoped, so the same literal key
// from two different surfaces never collides.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope partitions the key space by request surface.
type Scope string

const (
	ScopeClient  Scope = "client"
	ScopeWebhook Scope = "webhook"
)

const statusInFlight = "IN_FLIGHT"

// Result is the stored outcome of a completed operation, replayed verbatim to
// duplicate requests.
type Result struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	StoredAt   time.Time       `json:"stored_at"`
}

// Store is the minimal key-value surface the guard needs. *redis.Client
// satisfies it through redisStore; tests use an in-memory fake.
type Store interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Metrics is the instrumentation hook the guard reports duplicate hits to.
type Metrics interface {
	ObserveDuplicate(scope string)
}

// Guard registers operation keys before execution and replays stored results
// on duplicates. First registration wins; every later call with the same
// scoped key observes either IN_FLIGHT or the stored terminal result.
type Guard struct {
	store   Store
	metrics Metrics
	ttl     time.Duration
	logger  *slog.Logger
}

func NewGuard(logger *slog.Logger, store Store, metrics Metrics, ttl time.Duration) *Guard {
	return &Guard{
		store:   store,
		metrics: metrics,
		ttl:     ttl,
		logger:  logger,
	}
}

// CheckAndRegister atomically claims the key. When the key is new it is marked
// IN_FLIGHT and (nil, false, nil) is returned; the caller proceeds with the
// operation. When the key exists the prior result is returned with
// duplicate=true and the caller must not re-execute.
func (g *Guard) CheckAndRegister(ctx context.Context, scope Scope, key string) (*Result, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("idempotency key cannot be empty")
	}

	redisKey := buildKey(scope, key)
	marker, err := json.Marshal(Result{Status: statusInFlight, StoredAt: time.Now()})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal in-flight marker: %w", err)
	}

	claimed, err := g.store.SetNX(ctx, redisKey, marker, g.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register idempotency key: %w", err)
	}
	if claimed {
		return nil, false, nil
	}

	raw, found, err := g.store.Get(ctx, redisKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if !found {
		// Key expired between SetNX and Get. Treat as new by claiming again.
		claimed, err := g.store.SetNX(ctx, redisKey, marker, g.ttl)
		if err != nil || !claimed {
			return nil, false, fmt.Errorf("failed to re-register idempotency key: %w", err)
		}
		return nil, false, nil
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal stored result: %w", err)
	}

	g.logger.Info("Duplicate request suppressed",
		"scope", string(scope),
		"key", key,
		"stored_status", result.Status,
	)
	if g.metrics != nil {
		g.metrics.ObserveDuplicate(string(scope))
	}

	return &result, true, nil
}

// StoreResult records the operation's outcome under the key so duplicates
// replay it. The TTL restarts from result storage.
func (g *Guard) StoreResult(ctx context.Context, scope Scope, key string, result *Result) error {
	if result.StoredAt.IsZero() {
		result.StoredAt = time.Now()
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := g.store.Set(ctx, buildKey(scope, key), raw, g.ttl); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}

	return nil
}

// InFlight reports whether the stored result marks an operation that has not
// completed yet.
func (r *Result) InFlight() bool {
	return r.Status == statusInFlight
}

func buildKey(scope Scope, key string) string {
	return "idem:" + string(scope) + ":" + key
}

// redisStore adapts *redis.Client to the Store interface
type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a redis client as the guard's backing store
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}
