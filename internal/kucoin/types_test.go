package kucoin

import (
	"testing"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

func TestTranslateOrderStatus(t *testing.T) {
	tests := []struct {
		name string
		o    orderDetail
		want string
	}{
		{"active no fills", orderDetail{IsActive: true}, exchange.StatusNew},
		{"active partial", orderDetail{IsActive: true, FilledSize: 2, Size: 10}, exchange.StatusPartiallyFilled},
		{"done canceled", orderDetail{CancelExist: true}, exchange.StatusCanceled},
		{"done filled", orderDetail{Size: 10, FilledSize: 10}, exchange.StatusFilled},
		{"done unfilled", orderDetail{Size: 10}, exchange.StatusExpired},
	}
	for _, tt := range tests {
		if got := translateOrderStatus(&tt.o); got != tt.want {
			t.Errorf("%s: status = %s, want %s", tt.name, got, tt.want)
		}
	}
}

// Contract sizes convert to base-asset quantities via the lot multiplier.
func TestOrderDetailToStatus(t *testing.T) {
	o := &orderDetail{
		ID:          "5e8c8c2f1a2b3c",
		Symbol:      "ETHUSDTM",
		Side:        "buy",
		Type:        "market",
		Size:        10,
		FilledSize:  10,
		FilledValue: 2501.0,
	}
	got := o.toStatus(0.1) // 0.1 ETH per contract

	if got.ExecutedQty != 1.0 {
		t.Errorf("executed qty = %v, want 1.0", got.ExecutedQty)
	}
	if got.AvgPrice != 2501.0 {
		t.Errorf("avg price = %v, want 2501.0", got.AvgPrice)
	}
	if got.Side != "BUY" || got.Type != "MARKET" {
		t.Errorf("side/type = %s/%s, want BUY/MARKET", got.Side, got.Type)
	}
	if got.Status != exchange.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
}

func TestMapVenueError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		msg      string
		wantKind exchange.FailureKind
	}{
		{"insufficient balance", 200, "300018", "Balance insufficient", exchange.FailureMarginInsufficient},
		{"unknown symbol", 200, "100001", "symbol not exists", exchange.FailureSymbolUnsupported},
		{"bad size", 200, "100001", "size invalid", exchange.FailureQtyOutOfBounds},
		{"bad price", 200, "100001", "price out of range", exchange.FailurePriceOutOfRange},
		{"auth", 401, "400003", "KC-API-SIGN invalid", exchange.FailurePermissionDenied},
		{"rate limited", 429, "429000", "too many requests", exchange.FailureTransient},
	}
	for _, tt := range tests {
		ve := mapVenueError(tt.status, tt.code, tt.msg, nil)
		if got := ve.Kind(); got != tt.wantKind {
			t.Errorf("%s: kind = %s, want %s", tt.name, got, tt.wantKind)
		}
		if ve.Venue != "kucoin" {
			t.Errorf("%s: venue = %q, want kucoin", tt.name, ve.Venue)
		}
	}
}

func TestStopDirection(t *testing.T) {
	tests := []struct {
		orderType, side, want string
	}{
		{exchange.OrderTypeStopMarket, exchange.SideSell, "down"},
		{exchange.OrderTypeTakeProfitMarket, exchange.SideSell, "up"},
		{exchange.OrderTypeStopMarket, exchange.SideBuy, "up"},
		{exchange.OrderTypeTakeProfitMarket, exchange.SideBuy, "down"},
	}
	for _, tt := range tests {
		if got := stopDirection(tt.orderType, tt.side); got != tt.want {
			t.Errorf("stopDirection(%s, %s) = %s, want %s", tt.orderType, tt.side, got, tt.want)
		}
	}
}
