package signals

import (
	"testing"
	"time"
)

func TestParseStructuredLimit(t *testing.T) {
	sig, err := ParseStructured("LIMIT|HYPE|Entry:|32.2-31.5|SL:|30.7", "HYPE limit short")
	if err != nil {
		t.Fatalf("ParseStructured: %v", err)
	}
	if sig.CoinSymbol != "HYPE" {
		t.Errorf("coin = %q, want HYPE", sig.CoinSymbol)
	}
	if sig.OrderType != "LIMIT" {
		t.Errorf("order type = %q, want LIMIT", sig.OrderType)
	}
	if sig.PositionType != Short {
		t.Errorf("position = %q, want SHORT (from content)", sig.PositionType)
	}
	if len(sig.EntryPrices) != 2 || sig.EntryPrices[0] != 32.2 || sig.EntryPrices[1] != 31.5 {
		t.Errorf("entries = %v, want [32.2 31.5]", sig.EntryPrices)
	}
	if sig.StopLoss != 30.7 {
		t.Errorf("stop loss = %v, want 30.7", sig.StopLoss)
	}
}

func TestParseStructuredMarketWithTPs(t *testing.T) {
	sig, err := ParseStructured("BTC|LONG|MARKET|Entry:|65000|TP:|66000,67000,68000|SL:|63500", "")
	if err != nil {
		t.Fatalf("ParseStructured: %v", err)
	}
	if sig.PositionType != Long {
		t.Errorf("position = %q, want LONG", sig.PositionType)
	}
	if len(sig.TakeProfits) != 3 {
		t.Errorf("take profits = %v, want 3 levels", sig.TakeProfits)
	}
	if sig.EntryPrice() != 65000 {
		t.Errorf("entry = %v, want 65000", sig.EntryPrice())
	}
}

func TestParseStructuredMultiplier(t *testing.T) {
	sig, err := ParseStructured("ETH|LONG|Entry:|2500|MULT:|2", "")
	if err != nil {
		t.Fatalf("ParseStructured: %v", err)
	}
	if sig.QtyMultiplier != 2 {
		t.Errorf("multiplier = %d, want 2", sig.QtyMultiplier)
	}
}

func TestParseStructuredDefaultsToMarketLong(t *testing.T) {
	sig, err := ParseStructured("SOL|Entry:|150", "sol looking strong")
	if err != nil {
		t.Fatalf("ParseStructured: %v", err)
	}
	if sig.OrderType != "MARKET" {
		t.Errorf("order type = %q, want MARKET", sig.OrderType)
	}
	if sig.PositionType != Long {
		t.Errorf("position = %q, want LONG", sig.PositionType)
	}
}

func TestParseStructuredErrors(t *testing.T) {
	cases := []struct {
		name       string
		structured string
	}{
		{"empty", ""},
		{"no coin", "LONG|Entry:|100"},
		{"no entries", "BTC|LONG"},
		{"bad entry price", "BTC|LONG|Entry:|abc"},
		{"bad multiplier", "BTC|LONG|Entry:|100|MULT:|zero"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStructured(tt.structured, ""); err == nil {
				t.Errorf("ParseStructured(%q): want error", tt.structured)
			}
		})
	}
}

// The working entry from a range is the bound nearest the market: upper for
// longs, lower for shorts.
func TestEntryPriceRangeSelection(t *testing.T) {
	long := &Signal{PositionType: Long, EntryPrices: []float64{32.2, 31.5}}
	if got := long.EntryPrice(); got != 32.2 {
		t.Errorf("long entry = %v, want 32.2", got)
	}
	short := &Signal{PositionType: Short, EntryPrices: []float64{32.2, 31.5}}
	if got := short.EntryPrice(); got != 31.5 {
		t.Errorf("short entry = %v, want 31.5", got)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	in := time.Date(2025, 6, 12, 9, 30, 15, 123456789, time.FixedZone("EET", 2*3600))
	got := NormalizeTimestamp(in)
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	if got.Nanosecond() != 123000000 {
		t.Errorf("nanos = %d, want millisecond precision", got.Nanosecond())
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2025-06-12T09:30:15.123Z",
		"2025-06-12T09:30:15Z",
		"2025-06-12T09:30:15.123456",
		"2025-06-12 09:30:15",
	} {
		if _, err := ParseTimestamp(s); err != nil {
			t.Errorf("ParseTimestamp(%q): %v", s, err)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("ParseTimestamp(invalid): want error")
	}
}
