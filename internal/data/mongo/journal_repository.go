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

	"github.com/dalasi-wallet-core/internal/domain/journal"
)

const (
	// JournalCollectionName is the name of the transaction log collection in MongoDB
	JournalCollectionName = "journal_entries"
)

// JournalRepository implements the journal.Repository interface for MongoDB
type JournalRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewJournalRepository creates a new MongoDB journal repository
func NewJournalRepository(logger *slog.Logger, db *mongo.Database) journal.Repository {
	return &JournalRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores a new journal entry after checking for a duplicate
// (transaction, status) pair. The journal is append-only; on a replayed status
// change it returns ErrDuplicateEntry and leaves history untouched.
func (r *JournalRepository) Append(ctx context.Context, entry *journal.Entry) error {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{"transaction_id": entry.TransactionID, "status": entry.Status}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to check for existing journal entry",
			"transaction_id", entry.TransactionID.String(),
			"error", err)
		return fmt.Errorf("failed to check for existing journal entry: %w", err)
	}
	if count > 0 {
		return journal.ErrDuplicateEntry{TransactionID: entry.TransactionID, Status: entry.Status}
	}

	_, err = collection.InsertOne(ctx, entry)
	if err != nil {
		r.logger.Error("Failed to append journal entry",
			"transaction_id", entry.TransactionID.String(),
			"status", string(entry.Status),
			"error", err)
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	return nil
}

// GetByTransactionID retrieves the full status history of a transaction,
// oldest first. Returns ErrEntryNotFound when no entries exist.
func (r *JournalRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*journal.Entry, error) {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{"transaction_id": transactionID}
	opts := options.Find().SetSort(bson.M{"created_at": 1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get journal entries",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get journal entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*journal.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode journal entries",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode journal entries: %w", err)
	}

	if len(entries) == 0 {
		return nil, journal.ErrEntryNotFound{TransactionID: transactionID}
	}

	return entries, nil
}

// LatestByTransactionID retrieves the most recent journal entry of a transaction
func (r *JournalRepository) LatestByTransactionID(ctx context.Context, transactionID uuid.UUID) (*journal.Entry, error) {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{"transaction_id": transactionID}
	opts := options.FindOne().SetSort(bson.M{"created_at": -1})

	var entry journal.Entry
	err := collection.FindOne(ctx, filter, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, journal.ErrEntryNotFound{TransactionID: transactionID}
		}
		r.logger.Error("Failed to get latest journal entry",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get latest journal entry: %w", err)
	}

	return &entry, nil
}

// GetByWalletID retrieves paginated journal entries for a wallet.
// Results are sorted by creation time in descending order (newest first).
func (r *JournalRepository) GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*journal.Entry, error) {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{"wallet_id": walletID}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get journal entries by wallet",
			"wallet_id", walletID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get journal entries by wallet: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*journal.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode journal entries",
			"wallet_id", walletID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode journal entries: %w", err)
	}

	return entries, nil
}

// CountByWalletID counts the total number of journal entries for a wallet
func (r *JournalRepository) CountByWalletID(ctx context.Context, walletID uuid.UUID) (int64, error) {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{"wallet_id": walletID}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count journal entries",
			"wallet_id", walletID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}

	return count, nil
}

// GetByTimeRange retrieves paginated journal entries within the specified time
// window, newest first. Used for audit exports.
func (r *JournalRepository) GetByTimeRange(ctx context.Context, startTime, endTime time.Time, limit, offset int) ([]*journal.Entry, error) {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{
		"created_at": bson.M{
			"$gte": startTime,
			"$lte": endTime,
		},
	}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get journal entries by time range",
			"start_time", startTime,
			"end_time", endTime,
			"error", err)
		return nil, fmt.Errorf("failed to get journal entries by time range: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*journal.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode journal entries",
			"start_time", startTime,
			"end_time", endTime,
			"error", err)
		return nil, fmt.Errorf("failed to decode journal entries: %w", err)
	}

	return entries, nil
}
