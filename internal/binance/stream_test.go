package binance

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const orderTradeUpdateMsg = `{
	"e": "ORDER_TRADE_UPDATE",
	"E": 1718188215123,
	"o": {
		"s": "ETHUSDT",
		"c": "x-client-1",
		"S": "SELL",
		"o": "MARKET",
		"q": "0.5",
		"sp": "0",
		"x": "TRADE",
		"X": "FILLED",
		"i": 8886774,
		"z": "0.5",
		"L": "2510.40",
		"ap": "2510.35",
		"rp": "12.34",
		"R": true
	}
}`

func TestDispatchOrderTradeUpdate(t *testing.T) {
	var got *OrderUpdate
	s := &UserDataStream{
		handler: func(u OrderUpdate) { got = &u },
		logger:  zerolog.Nop(),
	}

	s.dispatch([]byte(orderTradeUpdateMsg))

	if got == nil {
		t.Fatal("handler not called")
	}
	if got.OrderID != "8886774" {
		t.Errorf("order id = %q, want 8886774", got.OrderID)
	}
	if got.Symbol != "ETHUSDT" || got.Side != "SELL" {
		t.Errorf("symbol/side = %s/%s, want ETHUSDT/SELL", got.Symbol, got.Side)
	}
	if got.OrderStatus != "FILLED" {
		t.Errorf("status = %q, want FILLED", got.OrderStatus)
	}
	if got.FilledQty != 0.5 || got.AvgPrice != 2510.35 {
		t.Errorf("fill = %v @ %v, want 0.5 @ 2510.35", got.FilledQty, got.AvgPrice)
	}
	if got.RealizedPnl != 12.34 {
		t.Errorf("realized pnl = %v, want 12.34", got.RealizedPnl)
	}
	if !got.ReduceOnly {
		t.Error("reduce-only flag lost")
	}
	if got.EventTime.UnixMilli() != 1718188215123 {
		t.Errorf("event time = %v, want 1718188215123", got.EventTime.UnixMilli())
	}
	if len(got.Raw) == 0 {
		t.Error("raw payload not preserved")
	}
}

func TestDispatchIgnoresOtherEvents(t *testing.T) {
	called := false
	s := &UserDataStream{
		handler: func(u OrderUpdate) { called = true },
		logger:  zerolog.Nop(),
	}

	s.dispatch([]byte(`{"e": "ACCOUNT_UPDATE", "E": 1718188215123}`))
	s.dispatch([]byte(`{"e": "listenKeyExpired", "E": 1718188215123}`))
	s.dispatch([]byte(`not json`))

	if called {
		t.Error("handler called for non-order events")
	}
}

func TestNewUserDataStreamAppliesOptions(t *testing.T) {
	s := NewUserDataStream(nil, false, StreamOptions{
		PingInterval:  45 * time.Second,
		PongTimeout:   2 * time.Minute,
		MaxReconnects: 3,
	}, nil, zerolog.Nop())

	if s.pingInterval != 45*time.Second {
		t.Errorf("ping interval = %v, want 45s", s.pingInterval)
	}
	if s.pongTimeout != 2*time.Minute {
		t.Errorf("pong timeout = %v, want 2m", s.pongTimeout)
	}
	if s.maxReconnects != 3 {
		t.Errorf("max reconnects = %d, want 3", s.maxReconnects)
	}
}

func TestNewUserDataStreamDefaults(t *testing.T) {
	s := NewUserDataStream(nil, true, StreamOptions{}, nil, zerolog.Nop())

	if s.wsURL != StreamTestnetURL {
		t.Errorf("url = %q, want testnet endpoint", s.wsURL)
	}
	if s.pingInterval != defaultPingInterval || s.pongTimeout != defaultPongTimeout {
		t.Errorf("timers = %v/%v, want defaults", s.pingInterval, s.pongTimeout)
	}
	if s.maxReconnects != defaultMaxReconnects {
		t.Errorf("max reconnects = %d, want default", s.maxReconnects)
	}
}

func TestDispatchTracksLastEvent(t *testing.T) {
	s := &UserDataStream{logger: zerolog.Nop()}
	before := time.Now()
	s.dispatch([]byte(`{"e": "ACCOUNT_UPDATE", "E": 1}`))

	_, lastEvent, _ := s.Status()
	if lastEvent.Before(before) {
		t.Error("lastEvent not updated on dispatch")
	}
}
