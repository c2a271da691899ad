package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dalasi-wallet-core/internal/domain/outbox"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

// OutboxManagerImpl implements the OutboxManager interface
type OutboxManagerImpl struct {
	outboxRepo outbox.Repository
	walletRepo wallet.Repository
	logger     *slog.Logger
}

// NewOutboxManager creates a new OutboxManagerImpl
func NewOutboxManager(outboxRepo outbox.Repository, walletRepo wallet.Repository, logger *slog.Logger) service.OutboxManager {
	return &OutboxManagerImpl{
		outboxRepo: outboxRepo,
		walletRepo: walletRepo,
		logger:     logger,
	}
}

// CreateOutboxEntry writes the terminal-state notification event in the same
// database transaction as the status change.
func (m *OutboxManagerImpl) CreateOutboxEntry(ctx context.Context, tx pgx.Tx, txn *transaction.Transaction) error {
	accountID, err := m.resolveAccountID(ctx, tx, txn)
	if err != nil {
		m.logger.Error("Failed to resolve account for outbox event", "transaction_id", txn.ID.String(), "error", err)
		return err
	}

	event := &outbox.DomainEvent{
		TransactionID: txn.ID,
		AccountID:     accountID,
		Type:          txn.Type,
		Status:        txn.Status,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		FailureReason: string(txn.FailureReason),
		CorrelationID: txn.CorrelationID,
		OccurredAt:    time.Now(),
	}

	message, err := outbox.NewMessage(event)
	if err != nil {
		m.logger.Error("Failed to build outbox message", "transaction_id", txn.ID.String(), "error", err)
		return fmt.Errorf("failed to build outbox message: %w", err)
	}

	if err := m.outboxRepo.WithTx(tx).Create(ctx, message); err != nil {
		m.logger.Error("Failed to create outbox message", "transaction_id", txn.ID.String(), "error", err)
		return err
	}

	m.logger.Info("Outbox message created",
		"transaction_id", txn.ID.String(),
		"outbox_id", message.ID,
		"status", string(txn.Status),
	)
	return nil
}

// resolveAccountID returns the owner of the transaction's primary wallet: the
// destination for external credits, the source otherwise.
func (m *OutboxManagerImpl) resolveAccountID(ctx context.Context, tx pgx.Tx, txn *transaction.Transaction) (uuid.UUID, error) {
	walletID := txn.Source.WalletID
	if txn.Type.IsExternalCredit() {
		walletID = txn.Destination.WalletID
	}
	if walletID == uuid.Nil {
		return uuid.Nil, wallet.ErrWalletNotFound{WalletID: walletID}
	}

	w, err := m.walletRepo.WithTx(tx).GetByID(ctx, walletID)
	if err != nil {
		return uuid.Nil, err
	}
	return w.AccountID, nil
}
