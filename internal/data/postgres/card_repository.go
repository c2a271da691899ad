package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/platform/persistence"
)

// CardRepository implements the card.Repository interface for PostgreSQL
type CardRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCardRepository creates a new PostgreSQL card repository
func NewCardRepository(logger *slog.Logger, db *persistence.PostgresDB) card.Repository {
	return &CardRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *CardRepository) WithTx(tx pgx.Tx) card.Repository {
	return &CardRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a newly requested card
func (r *CardRepository) Create(ctx context.Context, c *card.Card) error {
	query := `
		INSERT INTO cards (id, account_id, wallet_id, masked_pan, provider, provider_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.AccountID,
		c.WalletID,
		c.MaskedPAN,
		c.Provider,
		c.ProviderRef,
		c.Status,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create card", "id", c.ID.String(), "error", err)
		return fmt.Errorf("failed to create card: %w", err)
	}

	return nil
}

// GetByID retrieves a card by its ID
func (r *CardRepository) GetByID(ctx context.Context, id uuid.UUID) (*card.Card, error) {
	query := `
		SELECT id, account_id, wallet_id, masked_pan, provider, provider_ref, status, created_at, updated_at
		FROM cards
		WHERE id = $1
	`

	var c card.Card
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.AccountID,
		&c.WalletID,
		&c.MaskedPAN,
		&c.Provider,
		&c.ProviderRef,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, card.ErrCardNotFound{CardID: id}
		}
		r.logger.Error("Failed to get card", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get card: %w", err)
	}

	return &c, nil
}

// ListByAccount retrieves every card belonging to an account, newest first
func (r *CardRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*card.Card, error) {
	query := `
		SELECT id, account_id, wallet_id, masked_pan, provider, provider_ref, status, created_at, updated_at
		FROM cards
		WHERE account_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, accountID)
	if err != nil {
		r.logger.Error("Failed to list cards by account", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list cards by account: %w", err)
	}
	defer rows.Close()

	var cards []*card.Card
	for rows.Next() {
		var c card.Card
		err := rows.Scan(
			&c.ID,
			&c.AccountID,
			&c.WalletID,
			&c.MaskedPAN,
			&c.Provider,
			&c.ProviderRef,
			&c.Status,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan card", "error", err)
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, &c)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over cards", "error", err)
		return nil, fmt.Errorf("error iterating over cards: %w", err)
	}

	return cards, nil
}

// Update persists card lifecycle changes
func (r *CardRepository) Update(ctx context.Context, c *card.Card) error {
	query := `
		UPDATE cards
		SET masked_pan = $1, provider_ref = $2, status = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.querier.Exec(ctx, query,
		c.MaskedPAN,
		c.ProviderRef,
		c.Status,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update card", "id", c.ID.String(), "error", err)
		return fmt.Errorf("failed to update card: %w", err)
	}

	if result.RowsAffected() == 0 {
		return card.ErrCardNotFound{CardID: c.ID}
	}

	return nil
}
