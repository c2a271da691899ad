package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

var (
	// ErrProviderUnavailable indicates a network or provider outage. Callers
	// retry with backoff up to a bounded attempt count before recording a
	// terminal failure.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderDeclined indicates the provider rejected the movement
	// itself. Declines are terminal and never retried.
	ErrProviderDeclined = errors.New("provider declined")

	// ErrMalformedWebhook indicates a payload the adapter cannot parse.
	ErrMalformedWebhook = errors.New("malformed webhook payload")

	// ErrDuplicateEvent indicates a delivery whose (provider, provider_ref)
	// pair is already stored. The event store's unique index raises it, so
	// replays are absorbed even when the fast dedup cache is unavailable.
	ErrDuplicateEvent = errors.New("duplicate provider event")
)

// Outcome is the engine's normalized view of a provider-reported status.
// Every adapter maps its vendor status vocabulary onto these four values.
type Outcome string

const (
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeSettled  Outcome = "SETTLED"
	OutcomeFailed   Outcome = "FAILED"
	OutcomeUnknown  Outcome = "UNKNOWN"
)

// Intent describes an outbound funds movement handed to an adapter. The
// idempotency key travels with it so a retried initiate cannot double charge.
type Intent struct {
	TransactionID  uuid.UUID
	Type           shared.TransactionType
	Amount         int64
	Currency       shared.Currency
	CounterpartyID string // provider-side account: msisdn, card ref, IBAN
	IdempotencyKey string
}

// Reference is the provider-side identifier of an initiated movement.
type Reference struct {
	Provider    string
	ProviderRef string
}

// EventKind distinguishes transaction outcomes from card issuance
// confirmations arriving on the same callback channel.
type EventKind string

const (
	EventKindTransaction  EventKind = "TRANSACTION"
	EventKindCardIssuance EventKind = "CARD_ISSUANCE"
)

// Event is a received webhook or callback, normalized by the owning adapter.
// The adapter owns it until the settlement engine consumes it, after which it
// is marked processed and retained for audit and replay.
type Event struct {
	ID            uuid.UUID `json:"id" bson:"_id"`
	Provider      string    `json:"provider" bson:"provider"`
	ProviderRef   string    `json:"provider_ref" bson:"provider_ref"`
	Kind          EventKind `json:"kind,omitempty" bson:"kind,omitempty"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	CardID        uuid.UUID `json:"card_id,omitempty" bson:"card_id,omitempty"`
	MaskedPAN     string    `json:"masked_pan,omitempty" bson:"masked_pan,omitempty"`
	Outcome       Outcome   `json:"outcome" bson:"outcome"`
	RawPayload    []byte    `json:"raw_payload" bson:"raw_payload"`
	ReceivedAt    time.Time `json:"received_at" bson:"received_at"`
	Processed     bool      `json:"processed" bson:"processed"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
}

// DedupKey is the provider-scoped idempotency key for this delivery.
func (e *Event) DedupKey() string {
	return e.Provider + ":" + e.ProviderRef
}

// Adapter translates one external provider's request, response and webhook
// shapes into the core's intents and status events. Initiate must be safe to
// retry: the provider's own idempotency mechanism, keyed by the intent's
// idempotency key, prevents double charging.
type Adapter interface {
	Name() string
	Initiate(ctx context.Context, intent Intent) (Reference, error)
	ParseWebhook(raw []byte) (*Event, error)
	ReconcileStatus(ctx context.Context, ref Reference) (Outcome, error)
}

// EventRepository manages provider event audit persistence
type EventRepository interface {
	Save(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	ListUnprocessed(ctx context.Context, limit int) ([]*Event, error)
}

// ErrEventNotFound indicates missing provider event
type ErrEventNotFound struct {
	EventID uuid.UUID
}

func (e ErrEventNotFound) Error() string {
	return "provider event not found: " + e.EventID.String()
}

// Is matches any ErrEventNotFound when the target carries a nil ID.
func (e ErrEventNotFound) Is(target error) bool {
	t, ok := target.(ErrEventNotFound)
	if !ok {
		return false
	}
	if t.EventID == uuid.Nil {
		return true
	}
	return e.EventID == t.EventID
}

// ErrUnknownProvider indicates no adapter is registered under the given name
type ErrUnknownProvider struct {
	Name string
}

func (e ErrUnknownProvider) Error() string {
	return "unknown provider: " + e.Name
}
