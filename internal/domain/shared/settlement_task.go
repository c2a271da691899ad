package shared

import (
	"time"

	"github.com/google/uuid"
)

// SettlementTaskKind distinguishes the two sources of settlement work: client
// intents entering the pipeline and provider events resolving pending ones.
type SettlementTaskKind string

const (
	TaskKindIntent        SettlementTaskKind = "INTENT"
	TaskKindProviderEvent SettlementTaskKind = "PROVIDER_EVENT"
)

// SettlementTask defines a Kafka message consumed by the settlement processor.
// Intent tasks carry a freshly created transaction through reservation and the
// outbound provider call; provider-event tasks apply a webhook-confirmed outcome
// to a pending transaction.
type SettlementTask struct {
	Kind          SettlementTaskKind `json:"kind"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	EventID       string             `json:"event_id,omitempty"` // set for PROVIDER_EVENT tasks
	Provider      string             `json:"provider,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}
