package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/providers/cardissuer"
)

// CardIssuer requests provider-side card issuance. Satisfied by the card
// processor adapter.
type CardIssuer interface {
	RequestIssuance(ctx context.Context, c *card.Card) error
}

// CardServiceImpl implements the CardService interface
type CardServiceImpl struct {
	cardRepo   card.Repository
	walletRepo wallet.Repository
	issuer     CardIssuer
	logger     *slog.Logger
}

// NewCardService creates a new card service
func NewCardService(logger *slog.Logger, cardRepo card.Repository, walletRepo wallet.Repository, issuer CardIssuer) CardService {
	return &CardServiceImpl{
		cardRepo:   cardRepo,
		walletRepo: walletRepo,
		issuer:     issuer,
		logger:     logger,
	}
}

// IssueCard requests a new card against a wallet. The card stays REQUESTED
// until the issuer confirms through its webhook.
func (s *CardServiceImpl) IssueCard(ctx context.Context, accountID, walletID uuid.UUID) (*card.Card, error) {
	w, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		s.logger.Error("Failed to load wallet for card issuance", "wallet_id", walletID.String(), "error", err)
		return nil, err
	}
	if w.AccountID != accountID {
		return nil, wallet.ErrWalletNotFound{WalletID: walletID}
	}
	if w.Status != wallet.StatusActive {
		return nil, wallet.ErrWalletDeactivated
	}

	c := card.NewRequest(accountID, walletID, cardissuer.ProviderName)
	if err := s.cardRepo.Create(ctx, c); err != nil {
		s.logger.Error("Failed to create card", "wallet_id", walletID.String(), "error", err)
		return nil, err
	}

	if err := s.issuer.RequestIssuance(ctx, c); err != nil {
		s.logger.Error("Failed to request card issuance with processor", "card_id", c.ID.String(), "error", err)
		return nil, err
	}

	s.logger.Info("Card issuance requested",
		"card_id", c.ID.String(),
		"account_id", accountID.String(),
		"wallet_id", walletID.String(),
	)
	return c, nil
}

// GetCard retrieves a card by its ID. Returns nil if not found
func (s *CardServiceImpl) GetCard(ctx context.Context, id uuid.UUID) (*card.Card, error) {
	c, err := s.cardRepo.GetByID(ctx, id)
	if err != nil {
		if errors.As(err, &card.ErrCardNotFound{}) {
			return nil, nil
		}
		s.logger.Error("Failed to get card by ID", "card_id", id.String(), "error", err)
		return nil, err
	}
	return c, nil
}

// ListCards retrieves all cards for an account
func (s *CardServiceImpl) ListCards(ctx context.Context, accountID uuid.UUID) ([]*card.Card, error) {
	cards, err := s.cardRepo.ListByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error("Failed to list cards", "account_id", accountID.String(), "error", err)
		return nil, err
	}
	return cards, nil
}

// LockCard blocks a card for new payments
func (s *CardServiceImpl) LockCard(ctx context.Context, id uuid.UUID) (*card.Card, error) {
	return s.mutate(ctx, id, "lock", (*card.Card).Lock)
}

// UnlockCard re-enables a locked card
func (s *CardServiceImpl) UnlockCard(ctx context.Context, id uuid.UUID) (*card.Card, error) {
	return s.mutate(ctx, id, "unlock", (*card.Card).Unlock)
}

func (s *CardServiceImpl) mutate(ctx context.Context, id uuid.UUID, op string, apply func(*card.Card) error) (*card.Card, error) {
	c, err := s.cardRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get card for mutation", "card_id", id.String(), "op", op, "error", err)
		return nil, err
	}
	if err := apply(c); err != nil {
		s.logger.Warn("Card state change rejected",
			"card_id", id.String(),
			"op", op,
			"status", string(c.Status),
		)
		return nil, err
	}
	if err := s.cardRepo.Update(ctx, c); err != nil {
		s.logger.Error("Failed to update card", "card_id", id.String(), "op", op, "error", err)
		return nil, err
	}
	s.logger.Info("Card state changed", "card_id", id.String(), "op", op, "status", string(c.Status))
	return c, nil
}
