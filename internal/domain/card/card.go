package card

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Status defines card lifecycle states
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusActive    Status = "ACTIVE"
	StatusLocked    Status = "LOCKED"
)

// Card is a payment card linked to a wallet. Card-payment transactions
// reference cards as their source endpoint; the card itself never holds funds.
type Card struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	WalletID    uuid.UUID `json:"wallet_id"`
	MaskedPAN   string    `json:"masked_pan"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRequest creates a card in the REQUESTED state; the issuer webhook
// activates it once issuance completes provider-side.
func NewRequest(accountID, walletID uuid.UUID, provider string) *Card {
	now := time.Now()
	return &Card{
		ID:        uuid.New(),
		AccountID: accountID,
		WalletID:  walletID,
		Provider:  provider,
		Status:    StatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Activate records provider-confirmed issuance.
func (c *Card) Activate(providerRef, maskedPAN string) {
	c.ProviderRef = providerRef
	c.MaskedPAN = maskedPAN
	c.Status = StatusActive
	c.UpdatedAt = time.Now()
}

// Lock blocks the card for new payments.
func (c *Card) Lock() error {
	if c.Status != StatusActive {
		return ErrCardNotActive{CardID: c.ID, Status: c.Status}
	}
	c.Status = StatusLocked
	c.UpdatedAt = time.Now()
	return nil
}

// Unlock re-enables a locked card.
func (c *Card) Unlock() error {
	if c.Status != StatusLocked {
		return ErrCardNotLocked{CardID: c.ID, Status: c.Status}
	}
	c.Status = StatusActive
	c.UpdatedAt = time.Now()
	return nil
}

// Repository defines card persistence operations
type Repository interface {
	Create(ctx context.Context, c *Card) error
	GetByID(ctx context.Context, id uuid.UUID) (*Card, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Card, error)
	Update(ctx context.Context, c *Card) error
	WithTx(tx pgx.Tx) Repository
}

// ErrCardNotFound indicates missing card
type ErrCardNotFound struct {
	CardID uuid.UUID
}

func (e ErrCardNotFound) Error() string {
	return "card not found: " + e.CardID.String()
}

// ErrCardNotActive indicates a lock attempt on a card that is not active
type ErrCardNotActive struct {
	CardID uuid.UUID
	Status Status
}

func (e ErrCardNotActive) Error() string {
	return "card " + e.CardID.String() + " is not active: " + string(e.Status)
}

// ErrCardNotLocked indicates an unlock attempt on a card that is not locked
type ErrCardNotLocked struct {
	CardID uuid.UUID
	Status Status
}

func (e ErrCardNotLocked) Error() string {
	return "card " + e.CardID.String() + " is not locked: " + string(e.Status)
}
