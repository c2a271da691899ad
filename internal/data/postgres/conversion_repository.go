package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/dalasi-wallet-core/internal/domain/conversion"
	"github.com/dalasi-wallet-core/internal/platform/persistence"
)

// ConversionRepository implements the conversion.Repository interface for PostgreSQL
type ConversionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewConversionRepository creates a new PostgreSQL conversion repository
func NewConversionRepository(logger *slog.Logger, db *persistence.PostgresDB) conversion.Repository {
	return &ConversionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so the record is written
// atomically with the conversion's balance updates.
func (r *ConversionRepository) WithTx(tx pgx.Tx) conversion.Repository {
	return &ConversionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a conversion record. Each transaction has at most one record;
// a second insert returns ErrDuplicateRecord.
func (r *ConversionRepository) Create(ctx context.Context, rec *conversion.Record) error {
	query := `
		INSERT INTO conversion_records (id, transaction_id, from_currency, to_currency, from_amount, to_amount, rate, fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		rec.ID,
		rec.TransactionID,
		rec.FromCurrency,
		rec.ToCurrency,
		rec.FromAmount,
		rec.ToAmount,
		rec.Rate.String(),
		rec.Fee,
		rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return conversion.ErrDuplicateRecord
		}
		r.logger.Error("Failed to create conversion record",
			"transaction_id", rec.TransactionID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create conversion record: %w", err)
	}

	return nil
}

// GetByTransactionID retrieves the conversion record for a transaction
func (r *ConversionRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*conversion.Record, error) {
	query := `
		SELECT id, transaction_id, from_currency, to_currency, from_amount, to_amount, rate, fee, created_at
		FROM conversion_records
		WHERE transaction_id = $1
	`

	var (
		rec     conversion.Record
		rateStr string
	)
	err := r.querier.QueryRow(ctx, query, transactionID).Scan(
		&rec.ID,
		&rec.TransactionID,
		&rec.FromCurrency,
		&rec.ToCurrency,
		&rec.FromAmount,
		&rec.ToAmount,
		&rateStr,
		&rec.Fee,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conversion.ErrRecordNotFound
		}
		r.logger.Error("Failed to get conversion record",
			"transaction_id", transactionID.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get conversion record: %w", err)
	}

	rate, err := parseRate(rateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored rate %q: %w", rateStr, err)
	}
	rec.Rate = rate

	return &rec, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
