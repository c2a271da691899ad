package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// Entry is one append-only record in the transaction log. An entry is written
// for every status change of a transaction; the journal is never rewritten,
// which keeps the financial history replayable for audit.
type Entry struct {
	ID             uuid.UUID                `json:"id" bson:"_id"`
	TransactionID  uuid.UUID                `json:"transaction_id" bson:"transaction_id"`
	WalletID       uuid.UUID                `json:"wallet_id,omitempty" bson:"wallet_id,omitempty"`
	Type           shared.TransactionType   `json:"type" bson:"type"`
	Amount         int64                    `json:"amount" bson:"amount"` // Minor units
	Fee            int64                    `json:"fee" bson:"fee"`
	Currency       shared.Currency          `json:"currency" bson:"currency"`
	Status         shared.TransactionStatus `json:"status" bson:"status"`
	FailureReason  string                   `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	IdempotencyKey string                   `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`
	CorrelationID  string                   `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	CreatedAt      time.Time                `json:"created_at" bson:"created_at"`
}

// NewEntry builds a journal entry for a transaction status change.
func NewEntry(transactionID, walletID uuid.UUID, txType shared.TransactionType, amount, fee int64, currency shared.Currency, status shared.TransactionStatus) *Entry {
	return &Entry{
		ID:            uuid.New(),
		TransactionID: transactionID,
		WalletID:      walletID,
		Type:          txType,
		Amount:        amount,
		Fee:           fee,
		Currency:      currency,
		Status:        status,
		CreatedAt:     time.Now(),
	}
}
