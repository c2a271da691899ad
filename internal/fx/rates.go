// Package fx computes currency conversion quotes. Rate retrieval is abstracted
// behind RateSource; amounts stay in int64 minor units at the edges while rate
// arithmetic runs on decimals.
package fx

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dalasi-wallet-core/internal/domain/shared"
)

var (
	ErrNoRate           = errors.New("no rate available for currency pair")
	ErrUnsupportedPair  = errors.New("unsupported currency pair")
	ErrNonPositiveRate  = errors.New("rate source returned a non-positive rate")
	ErrFeeExceedsAmount = errors.New("conversion fee exceeds converted amount")
)

// Pair is an ordered currency pair.
type Pair struct {
	From shared.Currency
	To   shared.Currency
}

// RateSource provides exchange rates versioned by effective timestamp. At is
// the moment the rate must be valid for; implementations return the newest
// rate effective at or before it.
type RateSource interface {
	Rate(pair Pair, at time.Time) (decimal.Decimal, error)
}

// ratePoint is one versioned rate entry.
type ratePoint struct {
	effective time.Time
	rate      decimal.Decimal
}

// StaticRateSource serves rates from an in-memory table. Each pair holds a
// history of rate points; lookups pick the newest point effective at the
// requested time.
type StaticRateSource struct {
	rates map[Pair][]ratePoint
}

// NewStaticRateSource builds an empty static source.
func NewStaticRateSource() *StaticRateSource {
	return &StaticRateSource{rates: make(map[Pair][]ratePoint)}
}

// SetRate records a rate for the pair effective from the given time. Points
// must be added in effective-time order.
func (s *StaticRateSource) SetRate(pair Pair, rate decimal.Decimal, effective time.Time) {
	s.rates[pair] = append(s.rates[pair], ratePoint{effective: effective, rate: rate})
}

// Rate returns the newest rate effective at or before the requested time.
func (s *StaticRateSource) Rate(pair Pair, at time.Time) (decimal.Decimal, error) {
	points, ok := s.rates[pair]
	if !ok {
		return decimal.Zero, ErrUnsupportedPair
	}

	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].effective.After(at) {
			if points[i].rate.Sign() <= 0 {
				return decimal.Zero, ErrNonPositiveRate
			}
			return points[i].rate, nil
		}
	}

	return decimal.Zero, ErrNoRate
}

// DefaultRates returns a static source seeded with the GMD/USD pair in both
// directions, effective from the epoch.
func DefaultRates(gmdPerUSD decimal.Decimal) *StaticRateSource {
	src := NewStaticRateSource()
	epoch := time.Unix(0, 0)
	src.SetRate(Pair{From: shared.CurrencyUSD, To: shared.CurrencyGMD}, gmdPerUSD, epoch)
	src.SetRate(Pair{From: shared.CurrencyGMD, To: shared.CurrencyUSD}, decimal.NewFromInt(1).Div(gmdPerUSD), epoch)
	return src
}
