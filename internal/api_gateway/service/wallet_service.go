package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
)

// WalletServiceImpl implements the WalletService interface
type WalletServiceImpl struct {
	walletRepo      wallet.Repository
	transactionRepo transaction.Repository
	logger          *slog.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(logger *slog.Logger, walletRepo wallet.Repository, transactionRepo transaction.Repository) WalletService {
	return &WalletServiceImpl{
		walletRepo:      walletRepo,
		transactionRepo: transactionRepo,
		logger:          logger,
	}
}

// CreateWallet mints an empty wallet for the (account, currency) pair. The
// pair is unique; a second request returns the existing wallet.
func (s *WalletServiceImpl) CreateWallet(ctx context.Context, accountID uuid.UUID, currency shared.Currency) (*wallet.Wallet, error) {
	w, err := wallet.New(accountID, currency)
	if err != nil {
		return nil, err
	}

	if err := s.walletRepo.Create(ctx, w); err != nil {
		if errors.As(err, &wallet.ErrDuplicateWallet{}) {
			s.logger.Info("Wallet already exists for account and currency",
				"account_id", accountID.String(),
				"currency", string(currency),
			)
			return s.walletRepo.GetByAccountAndCurrency(ctx, accountID, currency)
		}
		s.logger.Error("Failed to create wallet",
			"account_id", accountID.String(),
			"currency", string(currency),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Wallet created",
		"wallet_id", w.ID.String(),
		"account_id", accountID.String(),
		"currency", string(currency),
	)
	return w, nil
}

// GetWallet retrieves a wallet by its ID. Returns nil if not found
func (s *WalletServiceImpl) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	w, err := s.walletRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound{}) {
			s.logger.Info("Wallet not found", "wallet_id", id.String())
			return nil, nil
		}
		s.logger.Error("Failed to get wallet by ID", "wallet_id", id.String(), "error", err)
		return nil, err
	}
	return w, nil
}

// GetWalletTransactions retrieves a paginated list of transactions touching
// the wallet on either side. Returns entries, total count, and any error
func (s *WalletServiceImpl) GetWalletTransactions(ctx context.Context, walletID uuid.UUID, page, perPage int) ([]*transaction.Transaction, int64, error) {
	offset := (page - 1) * perPage

	transactions, err := s.transactionRepo.ListByWallet(ctx, walletID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.transactionRepo.CountByWallet(ctx, walletID)
	if err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}
