package scheduler

import (
	"testing"

	"github.com/BrianElionDev/BuyBot/internal/database"
)

func TestBaseCoin(t *testing.T) {
	tests := []struct{ symbol, want string }{
		{"ETHUSDT", "ETH"},
		{"ETHUSDTM", "ETH"},
		{"XBTUSDTM", "BTC"},
		{"DOGEUSDT", "DOGE"},
	}
	for _, tt := range tests {
		if got := baseCoin(tt.symbol); got != tt.want {
			t.Errorf("baseCoin(%s) = %s, want %s", tt.symbol, got, tt.want)
		}
	}
}

func TestSideMatches(t *testing.T) {
	if !sideMatches(database.PositionLong, 0.5) {
		t.Error("long should match positive position amount")
	}
	if sideMatches(database.PositionLong, -0.5) {
		t.Error("long must not match negative position amount")
	}
	if !sideMatches(database.PositionShort, -0.5) {
		t.Error("short should match negative position amount")
	}
	if sideMatches(database.PositionShort, 0.5) {
		t.Error("short must not match positive position amount")
	}
}
