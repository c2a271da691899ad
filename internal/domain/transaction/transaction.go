package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// EndpointRef identifies one side of a funds movement over the closed set of
// endpoint kinds. WalletID is set for wallet endpoints; External carries the
// provider-side identifier for everything else.
type EndpointRef struct {
	Kind     shared.EndpointKind `json:"kind"`
	WalletID uuid.UUID           `json:"wallet_id,omitempty"`
	External string              `json:"external,omitempty"`
}

// WalletRef builds a wallet endpoint reference.
func WalletRef(walletID uuid.UUID) EndpointRef {
	return EndpointRef{Kind: shared.EndpointKindWallet, WalletID: walletID}
}

// ExternalRef builds a non-wallet endpoint reference.
func ExternalRef(kind shared.EndpointKind, id string) EndpointRef {
	return EndpointRef{Kind: kind, External: id}
}

// Transaction represents one funds movement through the settlement lifecycle.
// Financial history is append-only: transactions are never deleted, and once a
// terminal status is reached the record is immutable.
type Transaction struct {
	ID             uuid.UUID                `json:"id"`
	Type           shared.TransactionType   `json:"type"`
	Source         EndpointRef              `json:"source"`
	Destination    EndpointRef              `json:"destination"`
	Amount         int64                    `json:"amount"` // Minor units
	Fee            int64                    `json:"fee"`
	Currency       shared.Currency          `json:"currency"`
	ExchangeRate   string                   `json:"exchange_rate,omitempty"` // Decimal string, conversions only
	Status         shared.TransactionStatus `json:"status"`
	FailureReason  shared.FailureReason     `json:"failure_reason,omitempty"`
	IdempotencyKey string                   `json:"idempotency_key,omitempty"`
	Provider       string                   `json:"provider,omitempty"`
	ProviderRef    string                   `json:"provider_ref,omitempty"`
	// ProviderAcked records that the provider accepted the outbound call;
	// client-initiated cancellation is refused after this point.
	ProviderAcked bool              `json:"provider_acked"`
	ReviewFlag    bool              `json:"review_flag"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SettledAt     *time.Time        `json:"settled_at,omitempty"`
}

// New creates a transaction at the start of its lifecycle. External credits
// have no reservation step and begin in PROVIDER_PENDING.
func New(txType shared.TransactionType, source, destination EndpointRef, amount, fee int64, currency shared.Currency) (*Transaction, error) {
	if !shared.IsValidTransactionType(txType) {
		return nil, shared.ErrInvalidTransactionType
	}
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if !shared.IsSupportedCurrency(currency) {
		return nil, shared.ErrInvalidCurrency
	}

	status := shared.TransactionStatusCreated
	if txType.IsExternalCredit() {
		status = shared.TransactionStatusProviderPending
	}

	now := time.Now()
	return &Transaction{
		ID:          uuid.New(),
		Type:        txType,
		Source:      source,
		Destination: destination,
		Amount:      amount,
		Fee:         fee,
		Currency:    currency,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// validTransitions encodes the settlement state machine. A transition absent
// from this map is invalid; terminal states have no outgoing edges.
var validTransitions = map[shared.TransactionStatus][]shared.TransactionStatus{
	shared.TransactionStatusCreated: {
		shared.TransactionStatusReserved,
		shared.TransactionStatusProviderPending, // external credits skip reservation
		shared.TransactionStatusFailed,
		shared.TransactionStatusCancelled,
	},
	shared.TransactionStatusReserved: {
		shared.TransactionStatusProviderPending,
		shared.TransactionStatusSettled, // internal flows settle without a provider
		shared.TransactionStatusFailed,
		shared.TransactionStatusCancelled,
	},
	shared.TransactionStatusProviderPending: {
		shared.TransactionStatusSettled,
		shared.TransactionStatusFailed,
		shared.TransactionStatusCancelled,
	},
}

// CanTransition reports whether moving from the current status to the target
// is permitted by the state machine.
func (t *Transaction) CanTransition(to shared.TransactionStatus) bool {
	for _, allowed := range validTransitions[t.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition applies a status change, enforcing monotonicity. Attempts to move
// a terminal transaction return ErrInvalidStateTransition and leave the record
// untouched.
func (t *Transaction) Transition(to shared.TransactionStatus) error {
	if !t.CanTransition(to) {
		return ErrInvalidStateTransition{TransactionID: t.ID, From: t.Status, To: to}
	}

	if to == shared.TransactionStatusCancelled && t.ProviderAcked {
		return ErrInvalidStateTransition{TransactionID: t.ID, From: t.Status, To: to}
	}

	t.Status = to
	t.UpdatedAt = time.Now()
	if to == shared.TransactionStatusSettled {
		now := time.Now()
		t.SettledAt = &now
	}
	return nil
}

// Fail is a convenience transition to FAILED with a recorded reason.
func (t *Transaction) Fail(reason shared.FailureReason) error {
	if err := t.Transition(shared.TransactionStatusFailed); err != nil {
		return err
	}
	t.FailureReason = reason
	return nil
}

// MarkProviderAcked records provider acknowledgment of the outbound call and
// stores the provider-side reference.
func (t *Transaction) MarkProviderAcked(provider, providerRef string) {
	t.Provider = provider
	t.ProviderRef = providerRef
	t.ProviderAcked = true
	t.UpdatedAt = time.Now()
}

// FlagForReview marks the transaction for manual resolution without changing
// its status.
func (t *Transaction) FlagForReview() {
	t.ReviewFlag = true
	t.UpdatedAt = time.Now()
}

// IsTerminal reports whether the transaction reached a final status.
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}
