package components

import (
	"context"
	"log/slog"

	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/settlement/service"
)

// IntentValidatorImpl implements the IntentValidator interface. It checks the
// transaction against the current wallet state before any funds move; balance
// sufficiency is not checked here because only the locked reservation inside
// the settlement transaction can decide it.
type IntentValidatorImpl struct {
	walletRepo wallet.Repository
	logger     *slog.Logger
}

// NewIntentValidator creates a new IntentValidatorImpl
func NewIntentValidator(walletRepo wallet.Repository, logger *slog.Logger) service.IntentValidator {
	return &IntentValidatorImpl{
		walletRepo: walletRepo,
		logger:     logger,
	}
}

func (v *IntentValidatorImpl) Validate(ctx context.Context, txn *transaction.Transaction) error {
	if txn.Amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if txn.Fee < 0 || txn.Fee >= txn.Amount {
		return shared.ErrInvalidAmount
	}
	if !shared.IsSupportedCurrency(txn.Currency) {
		return shared.ErrInvalidCurrency
	}

	if txn.Source.Kind == shared.EndpointKindWallet {
		if err := v.checkWallet(ctx, txn, txn.Source, false); err != nil {
			return err
		}
	}
	if txn.Destination.Kind == shared.EndpointKindWallet {
		if err := v.checkWallet(ctx, txn, txn.Destination, true); err != nil {
			return err
		}
	}
	return nil
}

func (v *IntentValidatorImpl) checkWallet(ctx context.Context, txn *transaction.Transaction, ref transaction.EndpointRef, isDestination bool) error {
	w, err := v.walletRepo.GetByID(ctx, ref.WalletID)
	if err != nil {
		v.logger.Warn("Wallet lookup failed during validation",
			"transaction_id", txn.ID.String(),
			"wallet_id", ref.WalletID.String(),
			"error", err,
		)
		return err
	}
	if w.Status != wallet.StatusActive {
		return wallet.ErrWalletDeactivated
	}
	// Conversions span two currencies; the destination wallet's currency is
	// checked against the conversion record instead.
	if txn.Type == shared.TransactionTypeConversion && isDestination {
		return nil
	}
	if w.Currency != txn.Currency {
		v.logger.Warn("Currency mismatch during validation",
			"transaction_id", txn.ID.String(),
			"wallet_id", w.ID.String(),
			"wallet_currency", string(w.Currency),
			"transaction_currency", string(txn.Currency),
		)
		return shared.ErrInvalidCurrency
	}
	return nil
}
