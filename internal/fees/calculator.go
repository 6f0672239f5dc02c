// Package fees provides deterministic fee and breakeven arithmetic for
// futures round trips. All math is decimal with banker's rounding at scale 8;
// the same inputs always produce the same outputs regardless of mode.
package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const scale = 8

// Fixed-cap rates. The 2 bps cap is the default; 5 bps is the alternative
// configured via FIXED_FEE_RATE.
var (
	FixedRate02 = decimal.RequireFromString("0.0002")
	FixedRate05 = decimal.RequireFromString("0.0005")

	bnbDiscount = decimal.RequireFromString("0.9")
)

var ErrNonPositive = errors.New("fees: inputs must be positive")

// Calculator computes trading fees and breakeven prices for one configured
// mode. Construct once at startup; all methods are pure.
type Calculator struct {
	rate decimal.Decimal
}

// NewFixed returns a calculator with a single flat rate applied to both legs.
func NewFixed(rate float64) *Calculator {
	if rate <= 0 {
		return &Calculator{rate: FixedRate02}
	}
	return &Calculator{rate: decimal.NewFromFloat(rate)}
}

// NewTiered returns a calculator using a maker/taker rate with the BNB-paid
// discount multiplier applied. The effective rate is fixed at construction so
// runs stay deterministic.
func NewTiered(takerRate float64, bnbPaid bool) *Calculator {
	r := decimal.NewFromFloat(takerRate)
	if bnbPaid {
		r = r.Mul(bnbDiscount)
	}
	return &Calculator{rate: r}
}

// Rate returns the effective per-leg fee rate.
func (c *Calculator) Rate() decimal.Decimal { return c.rate }

// TradingFee computes the fee for one leg: notional × rate.
func (c *Calculator) TradingFee(notional decimal.Decimal) (decimal.Decimal, error) {
	if notional.Sign() <= 0 {
		return decimal.Zero, ErrNonPositive
	}
	return notional.Mul(c.rate).RoundBank(scale), nil
}

// TotalFee computes entry plus exit fees for a symmetric round trip.
func (c *Calculator) TotalFee(notional decimal.Decimal) (decimal.Decimal, error) {
	single, err := c.TradingFee(notional)
	if err != nil {
		return decimal.Zero, err
	}
	return single.Mul(decimal.NewFromInt(2)).RoundBank(scale), nil
}

// Breakeven returns the exit price at which a round trip nets zero after
// fees: entry × (1 + 2r) for longs, entry × (1 - 2r) for shorts.
func (c *Calculator) Breakeven(entry decimal.Decimal, isLong bool) (decimal.Decimal, error) {
	if entry.Sign() <= 0 {
		return decimal.Zero, ErrNonPositive
	}
	twoR := c.rate.Mul(decimal.NewFromInt(2))
	mult := decimal.NewFromInt(1)
	if isLong {
		mult = mult.Add(twoR)
	} else {
		mult = mult.Sub(twoR)
	}
	return entry.Mul(mult).RoundBank(scale), nil
}

// WeightedEntry computes the effective entry over multiple fills:
// Σ(pᵢ·qᵢ)/Σqᵢ.
func WeightedEntry(prices, qtys []decimal.Decimal) (decimal.Decimal, error) {
	if len(prices) == 0 || len(prices) != len(qtys) {
		return decimal.Zero, fmt.Errorf("fees: mismatched fills (%d prices, %d qtys)", len(prices), len(qtys))
	}
	num := decimal.Zero
	den := decimal.Zero
	for i := range prices {
		if prices[i].Sign() <= 0 || qtys[i].Sign() <= 0 {
			return decimal.Zero, ErrNonPositive
		}
		num = num.Add(prices[i].Mul(qtys[i]))
		den = den.Add(qtys[i])
	}
	return num.DivRound(den, scale), nil
}

// Preview bundles the fee figures attached to an order result.
type Preview struct {
	Notional  decimal.Decimal `json:"notional"`
	Rate      decimal.Decimal `json:"rate"`
	EntryFee  decimal.Decimal `json:"entry_fee"`
	TotalFee  decimal.Decimal `json:"total_fee"`
	Breakeven decimal.Decimal `json:"breakeven"`
}

// Preview computes the full fee preview for an order about to be placed.
func (c *Calculator) Preview(notional, entry decimal.Decimal, isLong bool) (*Preview, error) {
	entryFee, err := c.TradingFee(notional)
	if err != nil {
		return nil, err
	}
	total, err := c.TotalFee(notional)
	if err != nil {
		return nil, err
	}
	be, err := c.Breakeven(entry, isLong)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Notional:  notional,
		Rate:      c.rate,
		EntryFee:  entryFee,
		TotalFee:  total,
		Breakeven: be,
	}, nil
}
