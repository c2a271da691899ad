package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dalasi-wallet-core/internal/domain/provider"
)

const (
	// ProviderEventCollectionName is the name of the provider event audit collection
	ProviderEventCollectionName = "provider_events"
)

// ProviderEventRepository implements the provider.EventRepository interface for MongoDB
type ProviderEventRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewProviderEventRepository creates a new MongoDB provider event repository
// and ensures the delivery-uniqueness index exists.
func NewProviderEventRepository(logger *slog.Logger, db *mongo.Database) provider.EventRepository {
	r := &ProviderEventRepository{
		db:     db,
		logger: logger,
	}
	if err := r.ensureIndexes(); err != nil {
		logger.Error("Failed to ensure provider event indexes", "error", err)
	}
	return r
}

// ensureIndexes creates the unique (provider, provider_ref) index that makes
// the event store the dedup backstop for replayed deliveries.
func (r *ProviderEventRepository) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := r.db.Collection(ProviderEventCollectionName)
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "provider", Value: 1},
			{Key: "provider_ref", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("provider_ref_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create provider event index: %w", err)
	}
	return nil
}

// Save stores a received provider event with its raw payload for audit and
// replay. Events are retained after processing. A delivery whose
// (provider, provider_ref) pair is already stored returns ErrDuplicateEvent.
func (r *ProviderEventRepository) Save(ctx context.Context, event *provider.Event) error {
	collection := r.db.Collection(ProviderEventCollectionName)

	_, err := collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return provider.ErrDuplicateEvent
		}
		r.logger.Error("Failed to save provider event",
			"provider", event.Provider,
			"provider_ref", event.ProviderRef,
			"error", err)
		return fmt.Errorf("failed to save provider event: %w", err)
	}

	return nil
}

// GetByID retrieves a provider event by its ID
func (r *ProviderEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*provider.Event, error) {
	collection := r.db.Collection(ProviderEventCollectionName)

	filter := bson.M{"_id": id}
	var event provider.Event
	err := collection.FindOne(ctx, filter).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, provider.ErrEventNotFound{EventID: id}
		}
		r.logger.Error("Failed to get provider event",
			"id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get provider event: %w", err)
	}

	return &event, nil
}

// MarkProcessed records that the settlement engine consumed the event.
// Returns ErrEventNotFound if the event doesn't exist.
func (r *ProviderEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	collection := r.db.Collection(ProviderEventCollectionName)

	filter := bson.M{"_id": id}
	update := bson.M{
		"$set": bson.M{
			"processed":    true,
			"processed_at": time.Now(),
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to mark provider event processed",
			"id", id.String(),
			"error", err)
		return fmt.Errorf("failed to mark provider event processed: %w", err)
	}

	if result.MatchedCount == 0 {
		return provider.ErrEventNotFound{EventID: id}
	}

	return nil
}

// ListUnprocessed retrieves events the settlement engine has not consumed yet,
// oldest first.
func (r *ProviderEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]*provider.Event, error) {
	collection := r.db.Collection(ProviderEventCollectionName)

	filter := bson.M{"processed": false}
	opts := options.Find().
		SetSort(bson.M{"received_at": 1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list unprocessed provider events", "error", err)
		return nil, fmt.Errorf("failed to list unprocessed provider events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*provider.Event
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode provider events", "error", err)
		return nil, fmt.Errorf("failed to decode provider events: %w", err)
	}

	return events, nil
}
