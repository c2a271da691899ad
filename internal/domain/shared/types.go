package shared

import "errors"

var (
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidCurrency        = errors.New("unsupported currency")
	ErrInvalidAmount          = errors.New("amount must be positive")
)

// Currency is one of the fixed set of currencies the platform settles in.
type Currency string

const (
	CurrencyGMD Currency = "GMD"
	CurrencyUSD Currency = "USD"
)

// SupportedCurrencies lists every currency a wallet may be denominated in.
var SupportedCurrencies = []Currency{CurrencyGMD, CurrencyUSD}

// IsSupportedCurrency reports whether the given code is one the platform accepts.
func IsSupportedCurrency(c Currency) bool {
	for _, s := range SupportedCurrencies {
		if c == s {
			return true
		}
	}
	return false
}

// TransactionType defines the kinds of funds movement the engine settles
type TransactionType string

const (
	TransactionTypeTopUp            TransactionType = "TOP_UP"
	TransactionTypeInternalTransfer TransactionType = "INTERNAL_TRANSFER"
	TransactionTypeCardPayment      TransactionType = "CARD_PAYMENT"
	TransactionTypeCardTopUp        TransactionType = "CARD_TOP_UP"
	TransactionTypeBankTransfer     TransactionType = "BANK_TRANSFER"
	TransactionTypeFee              TransactionType = "FEE"
	TransactionTypeRefund           TransactionType = "REFUND"
	TransactionTypeConversion       TransactionType = "CONVERSION"
)

// IsValidTransactionType reports whether t is a known transaction type.
func IsValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionTypeTopUp, TransactionTypeInternalTransfer, TransactionTypeCardPayment,
		TransactionTypeCardTopUp, TransactionTypeBankTransfer, TransactionTypeFee,
		TransactionTypeRefund, TransactionTypeConversion:
		return true
	}
	return false
}

// IsExternalCredit reports whether the type credits funds from outside the
// platform. External credits carry no source reservation and enter the
// provider-pending state directly.
func (t TransactionType) IsExternalCredit() bool {
	return t == TransactionTypeTopUp || t == TransactionTypeCardTopUp
}

// TransactionStatus defines the settlement lifecycle states
type TransactionStatus string

const (
	TransactionStatusCreated         TransactionStatus = "CREATED"
	TransactionStatusReserved        TransactionStatus = "RESERVED"
	TransactionStatusProviderPending TransactionStatus = "PROVIDER_PENDING"
	TransactionStatusSettled         TransactionStatus = "SETTLED"
	TransactionStatusFailed          TransactionStatus = "FAILED"
	TransactionStatusCancelled       TransactionStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSettled || s == TransactionStatusFailed || s == TransactionStatusCancelled
}

// FailureReason defines settlement failure categories
type FailureReason string

const (
	FailureReasonInsufficientFunds   FailureReason = "INSUFFICIENT_FUNDS"
	FailureReasonInvalidAmount       FailureReason = "INVALID_AMOUNT"
	FailureReasonWalletNotFound      FailureReason = "WALLET_NOT_FOUND"
	FailureReasonCurrencyMismatch    FailureReason = "CURRENCY_MISMATCH"
	FailureReasonProviderUnavailable FailureReason = "PROVIDER_UNAVAILABLE"
	FailureReasonProviderDeclined    FailureReason = "PROVIDER_DECLINED"
	FailureReasonPendingTimeout      FailureReason = "PENDING_TIMEOUT"
	FailureReasonUnknownError        FailureReason = "UNKNOWN_ERROR"
)

// EndpointKind identifies one side of a funds movement.
type EndpointKind string

const (
	EndpointKindWallet      EndpointKind = "WALLET"
	EndpointKindCard        EndpointKind = "CARD"
	EndpointKindBank        EndpointKind = "BANK"
	EndpointKindMobileMoney EndpointKind = "MOBILE_MONEY"
	EndpointKindExternal    EndpointKind = "EXTERNAL"
)

// OutboxStatus defines domain event publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
