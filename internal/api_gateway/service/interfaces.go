package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/domain/conversion"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/fx"
)

// ErrOperationInFlight indicates a concurrent request holds the same
// idempotency key and has not finished yet.
var ErrOperationInFlight = errors.New("operation with this idempotency key is in flight")

// WalletService manages wallet lifecycle and reads
type WalletService interface {
	CreateWallet(ctx context.Context, accountID uuid.UUID, currency shared.Currency) (*wallet.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error)
	GetWalletTransactions(ctx context.Context, walletID uuid.UUID, page, perPage int) ([]*transaction.Transaction, int64, error)
}

// TopUpParams describes an inbound external credit
type TopUpParams struct {
	WalletID       uuid.UUID
	Amount         int64
	Fee            int64
	Currency       shared.Currency
	SourceKind     shared.EndpointKind
	SourceRef      string
	Provider       string
	IdempotencyKey string
	CorrelationID  string
}

// TransferParams describes a wallet-to-wallet movement
type TransferParams struct {
	SourceWalletID      uuid.UUID
	DestinationWalletID uuid.UUID
	Amount              int64
	Fee                 int64
	Currency            shared.Currency
	IdempotencyKey      string
	CorrelationID       string
}

// PaymentParams describes an outbound debit to an external endpoint
type PaymentParams struct {
	WalletID        uuid.UUID
	Amount          int64
	Currency        shared.Currency
	Type            shared.TransactionType
	DestinationKind shared.EndpointKind
	DestinationRef  string
	Provider        string
	IdempotencyKey  string
	CorrelationID   string
}

// ConversionParams describes a cross-currency movement between two wallets of
// the same account
type ConversionParams struct {
	SourceWalletID      uuid.UUID
	DestinationWalletID uuid.UUID
	Amount              int64
	FromCurrency        shared.Currency
	ToCurrency          shared.Currency
	IdempotencyKey      string
	CorrelationID       string
}

// TransactionService accepts transaction intents, applies idempotency, and
// hands accepted intents to the settlement processor
type TransactionService interface {
	InitiateTopUp(ctx context.Context, params *TopUpParams) (*transaction.Transaction, bool, error)
	InitiateTransfer(ctx context.Context, params *TransferParams) (*transaction.Transaction, bool, error)
	InitiatePayment(ctx context.Context, params *PaymentParams) (*transaction.Transaction, bool, error)
	InitiateConversion(ctx context.Context, params *ConversionParams) (*transaction.Transaction, *conversion.Record, bool, error)
	QuoteConversion(ctx context.Context, from, to shared.Currency, amount int64) (*fx.Quote, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	CancelTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
}

// CardService manages card issuance and lifecycle
type CardService interface {
	IssueCard(ctx context.Context, accountID, walletID uuid.UUID) (*card.Card, error)
	GetCard(ctx context.Context, id uuid.UUID) (*card.Card, error)
	ListCards(ctx context.Context, accountID uuid.UUID) ([]*card.Card, error)
	LockCard(ctx context.Context, id uuid.UUID) (*card.Card, error)
	UnlockCard(ctx context.Context, id uuid.UUID) (*card.Card, error)
}

// WebhookService ingests provider callbacks: parse, deduplicate, persist, and
// queue for settlement
type WebhookService interface {
	HandleWebhook(ctx context.Context, providerName string, payload []byte) (*provider.Event, bool, error)
}
