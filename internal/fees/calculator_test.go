package fees

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTradingFee(t *testing.T) {
	c := NewFixed(0.0005)

	fee, err := c.TradingFee(d("1000"))
	if err != nil {
		t.Fatalf("TradingFee: %v", err)
	}
	if !fee.Equal(d("0.5")) {
		t.Errorf("fee = %s, want 0.5", fee)
	}

	if _, err := c.TradingFee(decimal.Zero); err != ErrNonPositive {
		t.Errorf("zero notional: err = %v, want ErrNonPositive", err)
	}
	if _, err := c.TradingFee(d("-10")); err != ErrNonPositive {
		t.Errorf("negative notional: err = %v, want ErrNonPositive", err)
	}
}

func TestTotalFeeIsTwoLegs(t *testing.T) {
	c := NewFixed(0.0002)
	total, err := c.TotalFee(d("5000"))
	if err != nil {
		t.Fatalf("TotalFee: %v", err)
	}
	if !total.Equal(d("2")) {
		t.Errorf("total = %s, want 2", total)
	}
}

func TestBreakeven(t *testing.T) {
	c := NewFixed(0.0005)

	long, err := c.Breakeven(d("100"), true)
	if err != nil {
		t.Fatalf("Breakeven long: %v", err)
	}
	if !long.Equal(d("100.1")) {
		t.Errorf("long breakeven = %s, want 100.1", long)
	}

	short, err := c.Breakeven(d("100"), false)
	if err != nil {
		t.Fatalf("Breakeven short: %v", err)
	}
	if !short.Equal(d("99.9")) {
		t.Errorf("short breakeven = %s, want 99.9", short)
	}

	if _, err := c.Breakeven(decimal.Zero, true); err != ErrNonPositive {
		t.Errorf("zero entry: err = %v, want ErrNonPositive", err)
	}
}

// A position exited exactly at breakeven nets zero after both fee legs.
func TestBreakevenRoundTrip(t *testing.T) {
	c := NewFixed(0.0005)
	entry := d("2500")
	qty := d("0.4")

	be, err := c.Breakeven(entry, true)
	if err != nil {
		t.Fatalf("Breakeven: %v", err)
	}

	gross := be.Sub(entry).Mul(qty)
	entryFee, _ := c.TradingFee(entry.Mul(qty))
	exitFee, _ := c.TradingFee(entry.Mul(qty))
	net := gross.Sub(entryFee).Sub(exitFee)

	if net.Abs().GreaterThan(d("0.000001")) {
		t.Errorf("net at breakeven = %s, want ~0", net)
	}
}

func TestBreakevenDeterministic(t *testing.T) {
	c := NewTiered(0.0005, true)
	a, _ := c.Breakeven(d("31.21"), false)
	b, _ := c.Breakeven(d("31.21"), false)
	if !a.Equal(b) {
		t.Errorf("breakeven not deterministic: %s != %s", a, b)
	}
}

func TestTieredBNBDiscount(t *testing.T) {
	c := NewTiered(0.0005, true)
	if !c.Rate().Equal(d("0.00045")) {
		t.Errorf("discounted rate = %s, want 0.00045", c.Rate())
	}
	plain := NewTiered(0.0005, false)
	if !plain.Rate().Equal(d("0.0005")) {
		t.Errorf("undiscounted rate = %s, want 0.0005", plain.Rate())
	}
}

func TestWeightedEntry(t *testing.T) {
	got, err := WeightedEntry(
		[]decimal.Decimal{d("100"), d("110")},
		[]decimal.Decimal{d("1"), d("3")},
	)
	if err != nil {
		t.Fatalf("WeightedEntry: %v", err)
	}
	if !got.Equal(d("107.5")) {
		t.Errorf("weighted entry = %s, want 107.5", got)
	}

	if _, err := WeightedEntry(nil, nil); err == nil {
		t.Error("empty fills: want error")
	}
	if _, err := WeightedEntry([]decimal.Decimal{d("1")}, []decimal.Decimal{d("1"), d("2")}); err == nil {
		t.Error("mismatched lengths: want error")
	}
	if _, err := WeightedEntry([]decimal.Decimal{d("100")}, []decimal.Decimal{d("0")}); err != ErrNonPositive {
		t.Errorf("zero qty: err = %v, want ErrNonPositive", err)
	}
}

func TestPreview(t *testing.T) {
	c := NewFixed(0.0002)
	p, err := c.Preview(d("1000"), d("50"), true)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !p.EntryFee.Equal(d("0.2")) {
		t.Errorf("entry fee = %s, want 0.2", p.EntryFee)
	}
	if !p.TotalFee.Equal(d("0.4")) {
		t.Errorf("total fee = %s, want 0.4", p.TotalFee)
	}
	if !p.Breakeven.Equal(d("50.02")) {
		t.Errorf("breakeven = %s, want 50.02", p.Breakeven)
	}
}
