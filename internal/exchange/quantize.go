package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FloorToStep truncates value down to a multiple of step. Truncation (never
// rounding up) matches the venue's LOT_SIZE / PRICE_FILTER semantics: a
// rounded-up quantity can exceed available margin or the filter itself.
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	q := v.Div(s).Floor().Mul(s)
	f, _ := q.Float64()
	return f
}

// QuantizeOrder clamps quantity to stepSize and price to tickSize, then
// checks the quantized values against the filter bounds. A zero price skips
// price quantization (market orders).
func QuantizeOrder(f *SymbolFilters, qty, price float64) (float64, float64, error) {
	q := FloorToStep(qty, f.StepSize)
	p := price
	if price > 0 {
		p = FloorToStep(price, f.TickSize)
	}

	if q < f.MinQty {
		return 0, 0, &VenueError{Code: -1013, Message: fmt.Sprintf("quantity %v below minQty %v for %s", q, f.MinQty, f.Symbol)}
	}
	if f.MaxQty > 0 && q > f.MaxQty {
		return 0, 0, &VenueError{Code: -4005, Message: fmt.Sprintf("quantity %v above maxQty %v for %s", q, f.MaxQty, f.Symbol)}
	}

	// Notional check uses the limit price when present; market orders are
	// checked by the caller against the reference price.
	if p > 0 && f.MinNotional > 0 {
		notional := decimal.NewFromFloat(q).Mul(decimal.NewFromFloat(p))
		if notional.LessThan(decimal.NewFromFloat(f.MinNotional)) {
			return 0, 0, &VenueError{Code: -4164, Message: fmt.Sprintf("notional %s below minNotional %v for %s", notional, f.MinNotional, f.Symbol)}
		}
	}
	return q, p, nil
}

// FormatQty renders a quantity with the exact precision implied by stepSize,
// avoiding float formatting artifacts in request parameters.
func FormatQty(qty, step float64) string {
	return decimal.NewFromFloat(FloorToStep(qty, step)).String()
}

// FormatPrice renders a price clamped to tickSize.
func FormatPrice(price, tick float64) string {
	return decimal.NewFromFloat(FloorToStep(price, tick)).String()
}
