package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
)

// ProcessingService defines the interface for processing settlement tasks.
type ProcessingService interface {
	ProcessTask(ctx context.Context, task *shared.SettlementTask) error
}

// TxRunner runs a function inside one database transaction, rolling back on
// error or panic. Satisfied by persistence.PostgresDB.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// IntentValidator validates a transaction's intent before any balance moves
type IntentValidator interface {
	Validate(ctx context.Context, txn *transaction.Transaction) error
}

// WalletManager performs balance mutations inside a database transaction. All
// methods lock the wallet row first, so mutations on the same wallet serialize.
type WalletManager interface {
	Reserve(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error)
	CommitReservation(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error)
	ReleaseReservation(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error)
	Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error)
}

// JournalWriter appends the transaction's current state to the append-only log
type JournalWriter interface {
	Record(ctx context.Context, txn *transaction.Transaction) error
}

// OutboxManager writes the terminal-state domain event in the same database
// transaction as the status change it announces
type OutboxManager interface {
	CreateOutboxEntry(ctx context.Context, tx pgx.Tx, txn *transaction.Transaction) error
}

// FailureRecorder moves a transaction to FAILED, releasing any reservation it
// still holds
type FailureRecorder interface {
	RecordFailure(ctx context.Context, txn *transaction.Transaction, reason shared.FailureReason) error
}

// ProviderResolver resolves a provider adapter by name
type ProviderResolver interface {
	Get(name string) (provider.Adapter, error)
}
