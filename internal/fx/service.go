package fx

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// Quote is a priced conversion offer. ToAmount already has the fee deducted:
// to_amount = from_amount * rate - fee.
type Quote struct {
	FromCurrency shared.Currency
	ToCurrency   shared.Currency
	FromAmount   int64
	ToAmount     int64
	Rate         decimal.Decimal
	Fee          int64
	QuotedAt     time.Time
}

// Service prices currency conversions. The markup is applied to the raw market
// rate before the fee is computed, so the client-visible rate is the marked-up
// one.
type Service struct {
	source    RateSource
	feePolicy FeePolicy
	markupBps int64
	logger    *slog.Logger
}

func NewService(logger *slog.Logger, source RateSource, feePolicy FeePolicy, markupBps int64) *Service {
	return &Service{
		source:    source,
		feePolicy: feePolicy,
		markupBps: markupBps,
		logger:    logger,
	}
}

// Quote prices a conversion of the given amount at the current effective rate.
func (s *Service) Quote(from, to shared.Currency, amount int64) (*Quote, error) {
	return s.QuoteAt(from, to, amount, time.Now())
}

// QuoteAt prices a conversion at the rate effective at the given time.
func (s *Service) QuoteAt(from, to shared.Currency, amount int64, at time.Time) (*Quote, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if !shared.IsSupportedCurrency(from) || !shared.IsSupportedCurrency(to) {
		return nil, shared.ErrInvalidCurrency
	}
	if from == to {
		return nil, ErrUnsupportedPair
	}

	raw, err := s.source.Rate(Pair{From: from, To: to}, at)
	if err != nil {
		return nil, err
	}

	rate := s.applyMarkup(raw, from)
	if rate.Sign() <= 0 {
		return nil, ErrNonPositiveRate
	}

	converted := decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
	fee := s.feePolicy.Fee(converted)
	if fee >= converted {
		return nil, ErrFeeExceedsAmount
	}

	s.logger.Debug("Priced conversion quote",
		"from", string(from),
		"to", string(to),
		"from_amount", amount,
		"rate", rate.String(),
		"fee", fee,
	)

	return &Quote{
		FromCurrency: from,
		ToCurrency:   to,
		FromAmount:   amount,
		ToAmount:     converted - fee,
		Rate:         rate,
		Fee:          fee,
		QuotedAt:     at,
	}, nil
}

// applyMarkup reduces the raw market rate by markupBps basis points. Both
// directions of a pair are shaded the same way, so a round trip always loses
// the client at least the markup.
func (s *Service) applyMarkup(raw decimal.Decimal, _ shared.Currency) decimal.Decimal {
	if s.markupBps == 0 {
		return raw
	}
	markup := decimal.NewFromInt(10000 - s.markupBps).Div(decimal.NewFromInt(10000))
	return raw.Mul(markup)
}
