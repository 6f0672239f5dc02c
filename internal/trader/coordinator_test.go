package trader

import (
	"testing"

	"github.com/BrianElionDev/BuyBot/internal/database"
	"github.com/BrianElionDev/BuyBot/internal/exchange"
	"github.com/BrianElionDev/BuyBot/internal/signals"
)

func TestEstimatePnl(t *testing.T) {
	c := &Coordinator{}

	long := &database.Trade{SignalType: signals.Long, BinanceEntryPrice: 100}
	if got := c.estimatePnl(long, 110, 2); got != 20 {
		t.Errorf("long pnl = %v, want 20", got)
	}

	short := &database.Trade{SignalType: signals.Short, BinanceEntryPrice: 100}
	if got := c.estimatePnl(short, 110, 2); got != -20 {
		t.Errorf("short pnl = %v, want -20", got)
	}

	// Venue fill price wins over the signal's entry.
	both := &database.Trade{SignalType: signals.Long, EntryPrice: 90, BinanceEntryPrice: 100}
	if got := c.estimatePnl(both, 105, 1); got != 5 {
		t.Errorf("pnl = %v, want 5 (from venue entry)", got)
	}

	noEntry := &database.Trade{SignalType: signals.Long}
	if got := c.estimatePnl(noEntry, 110, 2); got != 0 {
		t.Errorf("pnl without entry = %v, want 0", got)
	}
}

func TestThresholdFor(t *testing.T) {
	c := &Coordinator{cfg: Config{
		PriceThreshold:    0.02,
		MemecoinThreshold: 0.05,
		MemecoinSymbols:   []string{"DOGE", "PEPE"},
	}}

	if got := c.thresholdFor("BTC"); got != 0.02 {
		t.Errorf("BTC threshold = %v, want 0.02", got)
	}
	if got := c.thresholdFor("doge"); got != 0.05 {
		t.Errorf("doge threshold = %v, want 0.05 (case-insensitive)", got)
	}
}

func TestIsProtective(t *testing.T) {
	cases := []struct {
		name string
		o    exchange.OrderStatus
		want bool
	}{
		{"reduce-only", exchange.OrderStatus{ReduceOnly: true}, true},
		{"stop market", exchange.OrderStatus{Type: exchange.OrderTypeStopMarket}, true},
		{"take profit market", exchange.OrderStatus{Type: exchange.OrderTypeTakeProfitMarket}, true},
		{"plain limit", exchange.OrderStatus{Type: exchange.OrderTypeLimit}, false},
	}
	for _, tt := range cases {
		if got := isProtective(tt.o); got != tt.want {
			t.Errorf("%s: isProtective = %v, want %v", tt.name, got, tt.want)
		}
	}
}
