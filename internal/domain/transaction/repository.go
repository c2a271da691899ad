package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// Repository defines transaction persistence operations
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)
	GetByProviderRef(ctx context.Context, provider, providerRef string) (*Transaction, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*Transaction, error)
	CountByWallet(ctx context.Context, walletID uuid.UUID) (int64, error)

	// UpdateStatus persists a transition with a status guard: the UPDATE only
	// matches rows still in the expected status, so a lost race surfaces as
	// ErrInvalidStateTransition instead of clobbering a terminal state.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to shared.TransactionStatus, reason shared.FailureReason) error
	MarkProviderAcked(ctx context.Context, id uuid.UUID, provider, providerRef string) error
	SetReviewFlag(ctx context.Context, id uuid.UUID) error

	// ListPendingOlderThan returns PROVIDER_PENDING transactions whose last
	// update precedes the cutoff, for the reconciliation sweep.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates missing transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.TransactionID.String()
}

// Is matches any ErrTransactionNotFound when the target carries a nil ID.
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}

// ErrInvalidStateTransition indicates a transition the state machine forbids.
// This is a programming or race defect: it is logged and never retried.
type ErrInvalidStateTransition struct {
	TransactionID uuid.UUID
	From          shared.TransactionStatus
	To            shared.TransactionStatus
}

func (e ErrInvalidStateTransition) Error() string {
	return "invalid state transition for transaction " + e.TransactionID.String() +
		": " + string(e.From) + " -> " + string(e.To)
}

// Is matches any ErrInvalidStateTransition when the target carries a nil ID.
func (e ErrInvalidStateTransition) Is(target error) bool {
	t, ok := target.(ErrInvalidStateTransition)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID && e.From == t.From && e.To == t.To
}

// ErrDuplicateIdempotencyKey indicates idempotency key uniqueness violation
type ErrDuplicateIdempotencyKey struct {
	Key string
}

func (e ErrDuplicateIdempotencyKey) Error() string {
	return "transaction with idempotency key already exists: " + e.Key
}
