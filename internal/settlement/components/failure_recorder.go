package components

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

type FailureRecorderImpl struct {
	db              service.TxRunner
	transactionRepo transaction.Repository
	walletManager   service.WalletManager
	outboxManager   service.OutboxManager
	logger          *slog.Logger
}

func NewFailureRecorder(
	db service.TxRunner,
	transactionRepo transaction.Repository,
	walletManager service.WalletManager,
	outboxManager service.OutboxManager,
	logger *slog.Logger,
) service.FailureRecorder {
	return &FailureRecorderImpl{
		db:              db,
		transactionRepo: transactionRepo,
		walletManager:   walletManager,
		outboxManager:   outboxManager,
		logger:          logger,
	}
}

// RecordFailure moves a transaction to FAILED and, when a reservation is
// outstanding, releases it back to available. Both writes commit together so
// a failed transaction can never leave funds stranded in pending.
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, txn *transaction.Transaction, reason shared.FailureReason) error {
	logger := r.logger
	if txn.CorrelationID != "" {
		logger = r.logger.With("correlation_id", txn.CorrelationID)
	}

	logger.Info("Recording failed transaction",
		"transaction_id", txn.ID.String(),
		"status", string(txn.Status),
		"reason", string(reason),
	)

	err := r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		held := txn.Status == shared.TransactionStatusReserved ||
			(txn.Status == shared.TransactionStatusProviderPending && !txn.Type.IsExternalCredit())
		if held {
			if _, err := r.walletManager.ReleaseReservation(ctx, tx, txn.Source.WalletID, txn.Amount); err != nil {
				return err
			}
		}

		txnRepoTx := r.transactionRepo.WithTx(tx)
		if err := txnRepoTx.UpdateStatus(ctx, txn.ID, txn.Status, shared.TransactionStatusFailed, reason); err != nil {
			return err
		}
		txn.Status = shared.TransactionStatusFailed
		txn.FailureReason = reason

		return r.outboxManager.CreateOutboxEntry(ctx, tx, txn)
	})
	if err != nil {
		if errors.Is(err, transaction.ErrInvalidStateTransition{}) {
			logger.Warn("Failure race lost, transaction already terminal", "transaction_id", txn.ID.String())
			return nil
		}
		logger.Error("Failed to record transaction failure", "transaction_id", txn.ID.String(), "error", err)
		return err
	}

	logger.Info("Transaction failed and reservation released", "transaction_id", txn.ID.String(), "reason", string(reason))
	return nil
}
