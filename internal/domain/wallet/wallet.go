package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// Common errors
var (
	ErrInsufficientFunds = errors.New("insufficient available funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrWalletDeactivated = errors.New("wallet is deactivated")
	ErrPendingUnderflow  = errors.New("pending balance smaller than reservation amount")
)

// Status defines the wallet lifecycle states. Wallets are never deleted while
// transactions reference them; they are deactivated instead.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusDeactivated Status = "DEACTIVATED"
)

// Wallet is a per-account, per-currency balance record. Balances are stored in
// minor units. The ledger invariant is total = available + pending, with
// available never negative; every mutation below preserves it.
type Wallet struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        uuid.UUID       `json:"account_id"`
	Currency         shared.Currency `json:"currency"`
	AvailableBalance int64           `json:"available_balance"` // Minor units
	PendingBalance   int64           `json:"pending_balance"`   // Minor units
	Status           Status          `json:"status"`
	Version          int             `json:"version"` // For optimistic locking
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// New creates a wallet with zero balances, as minted at account onboarding.
func New(accountID uuid.UUID, currency shared.Currency) (*Wallet, error) {
	if !shared.IsSupportedCurrency(currency) {
		return nil, shared.ErrInvalidCurrency
	}

	now := time.Now()
	return &Wallet{
		ID:        uuid.New(),
		AccountID: accountID,
		Currency:  currency,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TotalBalance returns available + pending.
func (w *Wallet) TotalBalance() int64 {
	return w.AvailableBalance + w.PendingBalance
}

// Reserve moves amount from available to pending. Fails with
// ErrInsufficientFunds rather than letting available go negative.
func (w *Wallet) Reserve(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.Status != StatusActive {
		return ErrWalletDeactivated
	}
	if w.AvailableBalance < amount {
		return ErrInsufficientFunds
	}

	w.AvailableBalance -= amount
	w.PendingBalance += amount
	w.touch()
	return nil
}

// CommitReservation removes a reserved amount from pending entirely; the funds
// leave the wallet.
func (w *Wallet) CommitReservation(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.PendingBalance < amount {
		return ErrPendingUnderflow
	}

	w.PendingBalance -= amount
	w.touch()
	return nil
}

// ReleaseReservation returns a reserved amount to available, restoring the
// pre-reservation balances exactly.
func (w *Wallet) ReleaseReservation(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.PendingBalance < amount {
		return ErrPendingUnderflow
	}

	w.PendingBalance -= amount
	w.AvailableBalance += amount
	w.touch()
	return nil
}

// Credit adds amount directly to available.
func (w *Wallet) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.Status != StatusActive {
		return ErrWalletDeactivated
	}

	w.AvailableBalance += amount
	w.touch()
	return nil
}

// Deactivate soft-removes the wallet. Balances are retained for audit.
func (w *Wallet) Deactivate() {
	w.Status = StatusDeactivated
	w.touch()
}

func (w *Wallet) touch() {
	w.UpdatedAt = time.Now()
	w.Version++
}
