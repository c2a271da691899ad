package conversion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

var (
	ErrInvalidRate       = errors.New("exchange rate must be positive")
	ErrAmountMismatch    = errors.New("to_amount does not equal from_amount * rate - fee")
	ErrSameCurrency      = errors.New("conversion requires two distinct currencies")
	ErrRecordNotFound    = errors.New("conversion record not found")
	ErrDuplicateRecord   = errors.New("conversion record already exists for transaction")
	ErrInvalidConversion = errors.New("invalid conversion amounts")
)

// Record is the one-to-one companion of a conversion-type transaction,
// capturing both legs and the rate applied.
type Record struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	FromCurrency  shared.Currency `json:"from_currency"`
	ToCurrency    shared.Currency `json:"to_currency"`
	FromAmount    int64           `json:"from_amount"` // Minor units
	ToAmount      int64           `json:"to_amount"`   // Minor units
	Rate          decimal.Decimal `json:"rate"`
	Fee           int64           `json:"fee"` // Minor units of the target currency
	CreatedAt     time.Time       `json:"created_at"`
}

// NewRecord builds a conversion record and verifies the arithmetic invariant
// to_amount = from_amount * rate - fee, rounded to minor units.
func NewRecord(transactionID uuid.UUID, from, to shared.Currency, fromAmount, toAmount, fee int64, rate decimal.Decimal) (*Record, error) {
	if from == to {
		return nil, ErrSameCurrency
	}
	if rate.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	if fromAmount <= 0 || toAmount <= 0 {
		return nil, ErrInvalidConversion
	}

	expected := decimal.NewFromInt(fromAmount).Mul(rate).Round(0).IntPart() - fee
	if expected != toAmount {
		return nil, ErrAmountMismatch
	}

	return &Record{
		ID:            uuid.New(),
		TransactionID: transactionID,
		FromCurrency:  from,
		ToCurrency:    to,
		FromAmount:    fromAmount,
		ToAmount:      toAmount,
		Rate:          rate,
		Fee:           fee,
		CreatedAt:     time.Now(),
	}, nil
}

// Repository defines conversion record persistence operations
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*Record, error)
	WithTx(tx pgx.Tx) Repository
}
