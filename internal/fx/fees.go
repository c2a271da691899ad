package fx

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// FeePolicy computes the conversion fee, in target-currency minor units, for a
// converted amount.
type FeePolicy interface {
	Fee(convertedAmount int64) int64
}

// FlatFee charges a fixed amount per conversion.
type FlatFee struct {
	Amount int64
}

func (f FlatFee) Fee(int64) int64 {
	return f.Amount
}

// PercentageFee charges basis points of the converted amount.
type PercentageFee struct {
	Bps int64
}

func (f PercentageFee) Fee(convertedAmount int64) int64 {
	return decimal.NewFromInt(convertedAmount).
		Mul(decimal.NewFromInt(f.Bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}

// FeeTier is one band of a tiered policy: amounts at or above Threshold are
// charged Bps.
type FeeTier struct {
	Threshold int64
	Bps       int64
}

// TieredFee charges basis points that decrease as the converted amount grows.
type TieredFee struct {
	tiers []FeeTier
}

// NewTieredFee builds a tiered policy; tiers are sorted by threshold.
func NewTieredFee(tiers []FeeTier) TieredFee {
	sorted := make([]FeeTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	return TieredFee{tiers: sorted}
}

func (f TieredFee) Fee(convertedAmount int64) int64 {
	var bps int64
	for _, tier := range f.tiers {
		if convertedAmount >= tier.Threshold {
			bps = tier.Bps
		}
	}
	return PercentageFee{Bps: bps}.Fee(convertedAmount)
}

// NewFeePolicy builds a policy from configuration. Tiered policies fall back
// to a single percentage band when no tiers are configured elsewhere.
func NewFeePolicy(name string, flat, bps int64) (FeePolicy, error) {
	switch name {
	case "flat":
		return FlatFee{Amount: flat}, nil
	case "percentage":
		return PercentageFee{Bps: bps}, nil
	case "tiered":
		return NewTieredFee([]FeeTier{
			{Threshold: 0, Bps: bps},
			{Threshold: 100_000, Bps: bps / 2},
			{Threshold: 1_000_000, Bps: bps / 4},
		}), nil
	default:
		return nil, fmt.Errorf("unknown fee policy: %s", name)
	}
}
