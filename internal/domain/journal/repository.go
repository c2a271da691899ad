package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// Repository manages append-only transaction log persistence. Appends are safe
// for concurrent use keyed by transaction id; entries are never updated or
// deleted.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error)
	LatestByTransactionID(ctx context.Context, transactionID uuid.UUID) (*Entry, error)
	GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByWalletID(ctx context.Context, walletID uuid.UUID) (int64, error)
	GetByTimeRange(ctx context.Context, startTime, endTime time.Time, limit, offset int) ([]*Entry, error)
}

// ErrDuplicateEntry indicates an entry for the same (transaction, status) pair
// was already appended.
type ErrDuplicateEntry struct {
	TransactionID uuid.UUID
	Status        shared.TransactionStatus
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate journal entry: " + e.TransactionID.String() + " " + string(e.Status)
}

// Is matches any ErrDuplicateEntry when the target carries a nil ID.
func (e ErrDuplicateEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID && e.Status == t.Status
}

// ErrEntryNotFound indicates no journal entries exist for the transaction.
type ErrEntryNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "journal entry not found: " + e.TransactionID.String()
}

// Is matches any ErrEntryNotFound when the target carries a nil ID.
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}
