package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// DomainEvent is the payload emitted on every terminal transaction state for
// the external notification dispatcher. The core records the event; it never
// formats or sends notifications itself.
type DomainEvent struct {
	TransactionID uuid.UUID                `json:"transaction_id"`
	AccountID     uuid.UUID                `json:"account_id"`
	Type          shared.TransactionType   `json:"type"`
	Status        shared.TransactionStatus `json:"status"`
	Amount        int64                    `json:"amount"`
	Currency      shared.Currency          `json:"currency"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	CorrelationID string                   `json:"correlation_id,omitempty"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// Message wraps a domain event for reliable publication. It is written in the
// same database transaction as the terminal status change, then picked up by
// the poller.
type Message struct {
	ID            int64               `json:"id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		TransactionID: event.TransactionID,
		Payload:       payload,
		Status:        shared.OutboxStatusPending,
		Attempts:      0,
		CreatedAt:     time.Now(),
	}, nil
}

// GetDomainEvent extracts the domain event from the payload
func (m *Message) GetDomainEvent() (*DomainEvent, error) {
	var event DomainEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
