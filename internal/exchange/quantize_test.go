package exchange

import (
	"errors"
	"testing"
)

func TestFloorToStep(t *testing.T) {
	tests := []struct {
		value, step, want float64
	}{
		{0.127, 0.01, 0.12},
		{0.1299999, 0.001, 0.129},
		{5, 1, 5},
		{0.9, 1, 0},
		{42.5, 0, 42.5}, // zero step passes through
		{100.123456, 0.1, 100.1},
	}
	for _, tt := range tests {
		if got := FloorToStep(tt.value, tt.step); got != tt.want {
			t.Errorf("FloorToStep(%v, %v) = %v, want %v", tt.value, tt.step, got, tt.want)
		}
	}
}

func TestQuantizeOrder(t *testing.T) {
	f := &SymbolFilters{
		Symbol:      "ETHUSDT",
		StepSize:    0.001,
		TickSize:    0.01,
		MinQty:      0.001,
		MaxQty:      1000,
		MinNotional: 20,
	}

	qty, price, err := QuantizeOrder(f, 0.12345, 2500.456)
	if err != nil {
		t.Fatalf("QuantizeOrder: %v", err)
	}
	if qty != 0.123 {
		t.Errorf("qty = %v, want 0.123", qty)
	}
	if price != 2500.45 {
		t.Errorf("price = %v, want 2500.45", price)
	}
}

func TestQuantizeOrderMarketSkipsPrice(t *testing.T) {
	f := &SymbolFilters{Symbol: "BTCUSDT", StepSize: 0.001, TickSize: 0.1, MinQty: 0.001}
	_, price, err := QuantizeOrder(f, 0.01, 0)
	if err != nil {
		t.Fatalf("QuantizeOrder: %v", err)
	}
	if price != 0 {
		t.Errorf("price = %v, want 0 for market order", price)
	}
}

func TestQuantizeOrderBelowMinQty(t *testing.T) {
	f := &SymbolFilters{Symbol: "BTCUSDT", StepSize: 0.001, MinQty: 0.01}
	_, _, err := QuantizeOrder(f, 0.005, 0)
	var ve *VenueError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want VenueError", err)
	}
	if ve.Kind() != FailureQtyOutOfBounds {
		t.Errorf("kind = %s, want QTY_OUT_OF_BOUNDS", ve.Kind())
	}
}

func TestQuantizeOrderBelowMinNotional(t *testing.T) {
	f := &SymbolFilters{Symbol: "ETHUSDT", StepSize: 0.001, TickSize: 0.01, MinQty: 0.001, MinNotional: 100}
	_, _, err := QuantizeOrder(f, 0.01, 2500)
	var ve *VenueError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want VenueError", err)
	}
	if ve.Kind() != FailureNotionalTooSmall {
		t.Errorf("kind = %s, want NOTIONAL_TOO_SMALL", ve.Kind())
	}
}

func TestFormatQty(t *testing.T) {
	if got := FormatQty(0.12345, 0.001); got != "0.123" {
		t.Errorf("FormatQty = %q, want 0.123", got)
	}
	if got := FormatQty(5, 1); got != "5" {
		t.Errorf("FormatQty = %q, want 5", got)
	}
}
