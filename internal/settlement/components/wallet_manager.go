package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

// WalletManagerImpl implements the WalletManager interface. Every mutation
// locks the wallet row first, so balance changes on the same wallet serialize
// even across processor instances.
type WalletManagerImpl struct {
	walletRepo wallet.Repository
	logger     *slog.Logger
}

// NewWalletManager creates a new WalletManagerImpl
func NewWalletManager(walletRepo wallet.Repository, logger *slog.Logger) service.WalletManager {
	return &WalletManagerImpl{
		walletRepo: walletRepo,
		logger:     logger,
	}
}

// Reserve moves amount from available into pending on the locked wallet.
func (m *WalletManagerImpl) Reserve(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error) {
	return m.mutate(ctx, tx, walletID, "reserve", func(w *wallet.Wallet) error {
		return w.Reserve(amount)
	})
}

// CommitReservation removes a reserved amount from pending, completing the
// debit side of a settlement.
func (m *WalletManagerImpl) CommitReservation(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error) {
	return m.mutate(ctx, tx, walletID, "commit_reservation", func(w *wallet.Wallet) error {
		return w.CommitReservation(amount)
	})
}

// ReleaseReservation returns a reserved amount to available after a failed or
// cancelled settlement.
func (m *WalletManagerImpl) ReleaseReservation(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error) {
	return m.mutate(ctx, tx, walletID, "release_reservation", func(w *wallet.Wallet) error {
		return w.ReleaseReservation(amount)
	})
}

// Credit adds amount to the wallet's available balance.
func (m *WalletManagerImpl) Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (*wallet.Wallet, error) {
	return m.mutate(ctx, tx, walletID, "credit", func(w *wallet.Wallet) error {
		return w.Credit(amount)
	})
}

func (m *WalletManagerImpl) mutate(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, op string, apply func(*wallet.Wallet) error) (*wallet.Wallet, error) {
	walletRepoTx := m.walletRepo.WithTx(tx)

	locked, err := walletRepoTx.LockForUpdate(ctx, walletID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound{}) {
			m.logger.Warn("Wallet not found for lock", "op", op, "wallet_id", walletID.String())
			return nil, err
		}
		m.logger.Error("Failed to lock wallet", "op", op, "wallet_id", walletID.String(), "error", err)
		return nil, fmt.Errorf("failed to lock wallet %s: %w", walletID.String(), err)
	}

	if err := apply(locked); err != nil {
		m.logger.Warn("Wallet mutation rejected",
			"op", op,
			"wallet_id", walletID.String(),
			"available", locked.AvailableBalance,
			"pending", locked.PendingBalance,
			"error", err,
		)
		return nil, err
	}

	if err := walletRepoTx.Update(ctx, locked); err != nil {
		m.logger.Error("Failed to update wallet", "op", op, "wallet_id", walletID.String(), "error", err)
		return nil, err
	}

	m.logger.Info("Wallet balance updated",
		"op", op,
		"wallet_id", locked.ID.String(),
		"available", locked.AvailableBalance,
		"pending", locked.PendingBalance,
		"version", locked.Version,
	)
	return locked, nil
}
