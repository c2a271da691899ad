package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/platform/persistence"
)

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const transactionColumns = `
	id, type,
	source_kind, source_wallet_id, source_external,
	destination_kind, destination_wallet_id, destination_external,
	amount, fee, currency, exchange_rate,
	status, failure_reason, idempotency_key,
	provider, provider_ref, provider_acked, review_flag,
	metadata, correlation_id,
	created_at, updated_at, settled_at
`

// Create stores a new transaction. A reused idempotency key violates the
// unique index and is returned as ErrDuplicateIdempotencyKey.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := r.querier.Exec(ctx, query,
		t.ID,
		t.Type,
		t.Source.Kind,
		nullableUUID(t.Source.WalletID),
		t.Source.External,
		t.Destination.Kind,
		nullableUUID(t.Destination.WalletID),
		t.Destination.External,
		t.Amount,
		t.Fee,
		t.Currency,
		t.ExchangeRate,
		t.Status,
		t.FailureReason,
		nullableString(t.IdempotencyKey),
		t.Provider,
		t.ProviderRef,
		t.ProviderAcked,
		t.ReviewFlag,
		t.Metadata,
		t.CorrelationID,
		t.CreatedAt,
		t.UpdatedAt,
		t.SettledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return transaction.ErrDuplicateIdempotencyKey{Key: t.IdempotencyKey}
		}
		r.logger.Error("Failed to create transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return t, nil
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key.
// Returns nil, nil when no transaction carries the key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	t, err := r.scanOne(r.querier.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction by idempotency key", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}

	return t, nil
}

// GetByProviderRef retrieves the transaction a provider webhook refers to
func (r *TransactionRepository) GetByProviderRef(ctx context.Context, provider, providerRef string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider = $1 AND provider_ref = $2`

	t, err := r.scanOne(r.querier.QueryRow(ctx, query, provider, providerRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{}
		}
		r.logger.Error("Failed to get transaction by provider reference",
			"provider", provider,
			"provider_ref", providerRef,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get transaction by provider reference: %w", err)
	}

	return t, nil
}

// ListByWallet retrieves transactions where the wallet is either endpoint,
// newest first, with pagination.
func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_wallet_id = $1 OR destination_wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list transactions by wallet", "wallet_id", walletID.String(), "error", err)
		return nil, fmt.Errorf("failed to list transactions by wallet: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// CountByWallet returns the total number of transactions touching the wallet
func (r *TransactionRepository) CountByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE source_wallet_id = $1 OR destination_wallet_id = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, walletID).Scan(&count); err != nil {
		r.logger.Error("Failed to count transactions by wallet", "wallet_id", walletID.String(), "error", err)
		return 0, fmt.Errorf("failed to count transactions by wallet: %w", err)
	}

	return count, nil
}

// UpdateStatus persists a state transition guarded on the expected current
// status. A concurrent transition makes the guard miss, which surfaces as
// ErrInvalidStateTransition so terminal states are never clobbered.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to shared.TransactionStatus, reason shared.FailureReason) error {
	query := `
		UPDATE transactions
		SET status = $1, failure_reason = $2, updated_at = $3,
		    settled_at = CASE WHEN $1 = 'SETTLED' THEN $3 ELSE settled_at END
		WHERE id = $4 AND status = $5
	`

	result, err := r.querier.Exec(ctx, query, to, reason, time.Now(), id, from)
	if err != nil {
		r.logger.Error("Failed to update transaction status",
			"id", id.String(),
			"from", string(from),
			"to", string(to),
			"error", err,
		)
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrInvalidStateTransition{TransactionID: id, From: from, To: to}
	}

	return nil
}

// MarkProviderAcked records provider acknowledgment and reference
func (r *TransactionRepository) MarkProviderAcked(ctx context.Context, id uuid.UUID, provider, providerRef string) error {
	query := `
		UPDATE transactions
		SET provider = $1, provider_ref = $2, provider_acked = TRUE, updated_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, provider, providerRef, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to mark transaction provider acked", "id", id.String(), "error", err)
		return fmt.Errorf("failed to mark transaction provider acked: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{TransactionID: id}
	}

	return nil
}

// SetReviewFlag marks the transaction for manual resolution
func (r *TransactionRepository) SetReviewFlag(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transactions
		SET review_flag = TRUE, updated_at = $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to set transaction review flag", "id", id.String(), "error", err)
		return fmt.Errorf("failed to set transaction review flag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{TransactionID: id}
	}

	return nil
}

// ListPendingOlderThan returns PROVIDER_PENDING transactions last updated
// before the cutoff, oldest first. Used by the reconciliation sweep.
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := r.querier.Query(ctx, query, shared.TransactionStatusProviderPending, cutoff, limit)
	if err != nil {
		r.logger.Error("Failed to list pending transactions", "error", err)
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *TransactionRepository) scanOne(row pgx.Row) (*transaction.Transaction, error) {
	var (
		t              transaction.Transaction
		srcWalletID    *uuid.UUID
		dstWalletID    *uuid.UUID
		idempotencyKey *string
	)

	err := row.Scan(
		&t.ID,
		&t.Type,
		&t.Source.Kind,
		&srcWalletID,
		&t.Source.External,
		&t.Destination.Kind,
		&dstWalletID,
		&t.Destination.External,
		&t.Amount,
		&t.Fee,
		&t.Currency,
		&t.ExchangeRate,
		&t.Status,
		&t.FailureReason,
		&idempotencyKey,
		&t.Provider,
		&t.ProviderRef,
		&t.ProviderAcked,
		&t.ReviewFlag,
		&t.Metadata,
		&t.CorrelationID,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	if srcWalletID != nil {
		t.Source.WalletID = *srcWalletID
	}
	if dstWalletID != nil {
		t.Destination.WalletID = *dstWalletID
	}
	if idempotencyKey != nil {
		t.IdempotencyKey = *idempotencyKey
	}

	return &t, nil
}

func (r *TransactionRepository) collect(rows pgx.Rows) ([]*transaction.Transaction, error) {
	var transactions []*transaction.Transaction
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over transactions", "error", err)
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}

	return transactions, nil
}

// nullableUUID maps the zero UUID to NULL so partial unique indexes and joins
// behave.
func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// nullableString maps the empty string to NULL so the unique index on
// idempotency_key ignores transactions created without one.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
