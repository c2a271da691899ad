package components

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/domain/journal"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

// JournalWriterImpl implements the JournalWriter interface
type JournalWriterImpl struct {
	journalRepo journal.Repository
	logger      *slog.Logger
}

// NewJournalWriter creates a new JournalWriterImpl
func NewJournalWriter(journalRepo journal.Repository, logger *slog.Logger) service.JournalWriter {
	return &JournalWriterImpl{
		journalRepo: journalRepo,
		logger:      logger,
	}
}

// Record appends a journal entry for the transaction's current status. The
// journal enforces one entry per (transaction, status) pair, so redelivered
// tasks replaying a status are absorbed as no-ops.
func (w *JournalWriterImpl) Record(ctx context.Context, txn *transaction.Transaction) error {
	walletID := txn.Source.WalletID
	if walletID == uuid.Nil {
		walletID = txn.Destination.WalletID
	}

	entry := journal.NewEntry(txn.ID, walletID, txn.Type, txn.Amount, txn.Fee, txn.Currency, txn.Status)
	entry.FailureReason = string(txn.FailureReason)
	entry.IdempotencyKey = txn.IdempotencyKey
	entry.CorrelationID = txn.CorrelationID

	if err := w.journalRepo.Append(ctx, entry); err != nil {
		if errors.Is(err, journal.ErrDuplicateEntry{}) {
			w.logger.Info("Journal entry already recorded",
				"transaction_id", txn.ID.String(),
				"status", string(txn.Status),
			)
			return nil
		}
		return err
	}

	w.logger.Info("Journal entry appended",
		"transaction_id", txn.ID.String(),
		"status", string(txn.Status),
		"entry_id", entry.ID.String(),
	)
	return nil
}
