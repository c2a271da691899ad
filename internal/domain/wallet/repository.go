package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// Repository defines wallet persistence operations
type Repository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByAccountAndCurrency(ctx context.Context, accountID uuid.UUID, currency shared.Currency) (*Wallet, error)
	Update(ctx context.Context, w *Wallet) error

	// LockForUpdate acquires a pessimistic lock on the wallet row so that all
	// balance mutations on the same wallet serialize.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrWalletNotFound indicates missing wallet
type ErrWalletNotFound struct {
	WalletID uuid.UUID
}

func (e ErrWalletNotFound) Error() string {
	return "wallet not found: " + e.WalletID.String()
}

// Is matches any ErrWalletNotFound when the target carries a nil ID.
func (e ErrWalletNotFound) Is(target error) bool {
	t, ok := target.(ErrWalletNotFound)
	if !ok {
		return false
	}
	if t.WalletID == uuid.Nil {
		return true
	}
	return e.WalletID == t.WalletID
}

// ErrDuplicateWallet indicates a second wallet for the same (account, currency) pair
type ErrDuplicateWallet struct {
	AccountID uuid.UUID
	Currency  shared.Currency
}

func (e ErrDuplicateWallet) Error() string {
	return "wallet already exists for account " + e.AccountID.String() + " in " + string(e.Currency)
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	WalletID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for wallet: " + e.WalletID.String()
}
