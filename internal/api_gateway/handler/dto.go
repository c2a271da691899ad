package handler

// CreateWalletRequest represents a request to create a new wallet
type CreateWalletRequest struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
	Currency  string `json:"currency" binding:"required,oneof=GMD USD"`
}

// WalletResponse represents a wallet in API responses
type WalletResponse struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	Currency         string `json:"currency"`
	AvailableBalance int64  `json:"available_balance"`
	PendingBalance   int64  `json:"pending_balance"`
	TotalBalance     int64  `json:"total_balance"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// TopUpRequest represents a request to fund a wallet from an external source
type TopUpRequest struct {
	WalletID       string `json:"wallet_id" binding:"required,uuid"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Fee            int64  `json:"fee" binding:"min=0"`
	Currency       string `json:"currency" binding:"required,oneof=GMD USD"`
	SourceKind     string `json:"source_kind" binding:"required,oneof=MOBILE_MONEY CARD BANK EXTERNAL"`
	SourceRef      string `json:"source_ref" binding:"required"`
	Provider       string `json:"provider,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TransferRequest represents a request to move funds between two wallets
type TransferRequest struct {
	SourceWalletID      string `json:"source_wallet_id" binding:"required,uuid"`
	DestinationWalletID string `json:"destination_wallet_id" binding:"required,uuid"`
	Amount              int64  `json:"amount" binding:"required,gt=0"`
	Fee                 int64  `json:"fee" binding:"min=0"`
	Currency            string `json:"currency" binding:"required,oneof=GMD USD"`
	IdempotencyKey      string `json:"idempotency_key,omitempty"`
}

// PaymentRequest represents a request to pay out of a wallet to an external
// endpoint
type PaymentRequest struct {
	WalletID        string `json:"wallet_id" binding:"required,uuid"`
	Amount          int64  `json:"amount" binding:"required,gt=0"`
	Currency        string `json:"currency" binding:"required,oneof=GMD USD"`
	Type            string `json:"type" binding:"required,oneof=CARD_PAYMENT BANK_TRANSFER"`
	DestinationKind string `json:"destination_kind" binding:"required,oneof=CARD BANK MOBILE_MONEY EXTERNAL"`
	DestinationRef  string `json:"destination_ref" binding:"required"`
	Provider        string `json:"provider,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// ConversionRequest represents a request to convert between wallet currencies
type ConversionRequest struct {
	SourceWalletID      string `json:"source_wallet_id" binding:"required,uuid"`
	DestinationWalletID string `json:"destination_wallet_id" binding:"required,uuid"`
	Amount              int64  `json:"amount" binding:"required,gt=0"`
	FromCurrency        string `json:"from_currency" binding:"required,oneof=GMD USD"`
	ToCurrency          string `json:"to_currency" binding:"required,oneof=GMD USD"`
	IdempotencyKey      string `json:"idempotency_key,omitempty"`
}

// QuoteParams represents query parameters for a conversion quote
type QuoteParams struct {
	From   string `form:"from" binding:"required,oneof=GMD USD"`
	To     string `form:"to" binding:"required,oneof=GMD USD"`
	Amount int64  `form:"amount" binding:"required,gt=0"`
}

// QuoteResponse represents a conversion quote in API responses
type QuoteResponse struct {
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	FromAmount   int64  `json:"from_amount"`
	ToAmount     int64  `json:"to_amount"`
	Rate         string `json:"rate"`
	Fee          int64  `json:"fee"`
	QuotedAt     string `json:"quoted_at"`
}

// EndpointResponse represents one side of a funds movement
type EndpointResponse struct {
	Kind     string `json:"kind"`
	WalletID string `json:"wallet_id,omitempty"`
	External string `json:"external,omitempty"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Source        EndpointResponse `json:"source"`
	Destination   EndpointResponse `json:"destination"`
	Amount        int64            `json:"amount"`
	Fee           int64            `json:"fee"`
	Currency      string           `json:"currency"`
	ExchangeRate  string           `json:"exchange_rate,omitempty"`
	Status        string           `json:"status"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Provider      string           `json:"provider,omitempty"`
	CreatedAt     string           `json:"created_at"`
	SettledAt     string           `json:"settled_at,omitempty"`
}

// ConversionResponse represents an accepted conversion in API responses
type ConversionResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Quote       QuoteResponse       `json:"quote"`
}

// IssueCardRequest represents a request to issue a card against a wallet
type IssueCardRequest struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
	WalletID  string `json:"wallet_id" binding:"required,uuid"`
}

// CardResponse represents a card in API responses
type CardResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	WalletID  string `json:"wallet_id"`
	MaskedPAN string `json:"masked_pan,omitempty"`
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CardListParams represents query parameters for listing cards
type CardListParams struct {
	AccountID string `form:"account_id" binding:"required,uuid"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
