package ingestor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/binance"
	"github.com/BrianElionDev/BuyBot/internal/database"
	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// fakeTradeStore holds a single trade and records every write the ingestor
// makes against it.
type fakeTradeStore struct {
	trade *database.Trade

	statusUpdates []string
	fillStatus    string
	fillEntry     float64
	fillSize      float64
	exitPrice     float64
	exitPnl       float64
	payloadSet    bool

	createdAt    time.Time
	closedAt     time.Time
	createdCalls int
	closedCalls  int
}

func (f *fakeTradeStore) GetTradeByExchangeOrderID(ctx context.Context, orderID string) (*database.Trade, error) {
	if f.trade == nil || f.trade.ExchangeOrderID != orderID {
		return nil, database.ErrTradeNotFound
	}
	return f.trade, nil
}

func (f *fakeTradeStore) SetLatestVenuePayload(ctx context.Context, id int64, payload json.RawMessage) error {
	f.payloadSet = true
	return nil
}

func (f *fakeTradeStore) UpdateTradeStatus(ctx context.Context, id int64, status string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeTradeStore) UpdateTradeFill(ctx context.Context, id int64, status string, entryPrice, positionSize float64) error {
	f.fillStatus = status
	f.fillEntry = entryPrice
	f.fillSize = positionSize
	return nil
}

func (f *fakeTradeStore) UpdateTradeExit(ctx context.Context, id int64, exitPrice, pnlUSD float64) error {
	f.exitPrice = exitPrice
	f.exitPnl = pnlUSD
	return nil
}

func (f *fakeTradeStore) SetCreatedAt(ctx context.Context, id int64, at time.Time) (bool, error) {
	f.createdCalls++
	if !f.createdAt.IsZero() {
		return false, nil
	}
	f.createdAt = at
	return true, nil
}

func (f *fakeTradeStore) SetClosedAt(ctx context.Context, id int64, at time.Time) (bool, error) {
	f.closedCalls++
	if !f.closedAt.IsZero() {
		return false, nil
	}
	f.closedAt = at
	return true, nil
}

func pendingTrade() *database.Trade {
	return &database.Trade{
		ID:              42,
		CoinSymbol:      "ETH",
		SignalType:      database.PositionLong,
		Status:          database.StatusPending,
		ExchangeOrderID: "8886774",
	}
}

func update(status, side string, filled, avg float64) binance.OrderUpdate {
	return binance.OrderUpdate{
		Symbol:      "ETHUSDT",
		OrderID:     "8886774",
		Side:        side,
		OrderStatus: status,
		FilledQty:   filled,
		AvgPrice:    avg,
		EventTime:   time.Date(2026, 6, 12, 10, 30, 15, 0, time.UTC),
	}
}

func newTestIngestor(store *fakeTradeStore) *Ingestor {
	return New(store, 8, zerolog.Nop())
}

func TestApplyEntryFillOpensTrade(t *testing.T) {
	store := &fakeTradeStore{trade: pendingTrade()}
	ing := newTestIngestor(store)

	u := update(exchange.StatusFilled, exchange.SideBuy, 0.5, 2500)
	ing.apply(context.Background(), u)

	if store.fillStatus != database.StatusOpen {
		t.Errorf("fill status = %q, want OPEN", store.fillStatus)
	}
	if store.fillEntry != 2500 || store.fillSize != 0.5 {
		t.Errorf("fill = %v @ %v, want 0.5 @ 2500", store.fillSize, store.fillEntry)
	}
	if store.createdAt != u.EventTime {
		t.Errorf("created_at = %v, want event time %v", store.createdAt, u.EventTime)
	}
	if !store.payloadSet {
		t.Error("venue payload not stored")
	}
}

// created_at is write-once: a redelivered fill event must not move it.
func TestApplyEntryFillRedeliveryKeepsCreatedAt(t *testing.T) {
	store := &fakeTradeStore{trade: pendingTrade()}
	ing := newTestIngestor(store)

	first := update(exchange.StatusFilled, exchange.SideBuy, 0.5, 2500)
	ing.apply(context.Background(), first)

	later := first
	later.EventTime = first.EventTime.Add(time.Minute)
	ing.apply(context.Background(), later)

	if store.createdCalls != 2 {
		t.Fatalf("SetCreatedAt calls = %d, want 2", store.createdCalls)
	}
	if store.createdAt != first.EventTime {
		t.Errorf("created_at = %v, want first event time %v", store.createdAt, first.EventTime)
	}
}

func TestApplyFullExitClosesTrade(t *testing.T) {
	trade := pendingTrade()
	trade.Status = database.StatusOpen
	trade.PositionSize = 0.5
	store := &fakeTradeStore{trade: trade}
	ing := newTestIngestor(store)

	u := update(exchange.StatusFilled, exchange.SideSell, 0.5, 2600)
	u.RealizedPnl = 50
	ing.apply(context.Background(), u)

	if store.exitPrice != 2600 || store.exitPnl != 50 {
		t.Errorf("exit = %v pnl %v, want 2600 pnl 50", store.exitPrice, store.exitPnl)
	}
	if store.closedAt != u.EventTime {
		t.Errorf("closed_at = %v, want event time", store.closedAt)
	}
}

func TestApplyPartialExitKeepsTradeLive(t *testing.T) {
	trade := pendingTrade()
	trade.Status = database.StatusOpen
	trade.PositionSize = 1.0
	trade.BinanceEntryPrice = 2500
	store := &fakeTradeStore{trade: trade}
	ing := newTestIngestor(store)

	ing.apply(context.Background(), update(exchange.StatusFilled, exchange.SideSell, 0.4, 2600))

	if store.fillStatus != database.StatusPartiallyClosed {
		t.Errorf("status = %q, want PARTIALLY_CLOSED", store.fillStatus)
	}
	if store.fillSize != 0.6 {
		t.Errorf("remaining size = %v, want 0.6", store.fillSize)
	}
	if store.closedCalls != 0 {
		t.Error("closed_at must stay null on a partial exit")
	}
}

func TestApplyCancelWithoutFillCancelsTrade(t *testing.T) {
	store := &fakeTradeStore{trade: pendingTrade()}
	ing := newTestIngestor(store)

	ing.apply(context.Background(), update(exchange.StatusCanceled, exchange.SideBuy, 0, 0))

	if len(store.statusUpdates) != 1 || store.statusUpdates[0] != database.StatusCanceled {
		t.Errorf("status updates = %v, want [CANCELED]", store.statusUpdates)
	}
}

func TestApplyExpireWithoutFillExpiresTrade(t *testing.T) {
	store := &fakeTradeStore{trade: pendingTrade()}
	ing := newTestIngestor(store)

	ing.apply(context.Background(), update(exchange.StatusExpired, exchange.SideBuy, 0, 0))

	if len(store.statusUpdates) != 1 || store.statusUpdates[0] != database.StatusExpired {
		t.Errorf("status updates = %v, want [EXPIRED]", store.statusUpdates)
	}
}

// A cancel after partial fills leaves a live position; the row must not flip
// to CANCELED.
func TestApplyCancelAfterPartialFillLeavesStatus(t *testing.T) {
	trade := pendingTrade()
	trade.Status = database.StatusOpen
	trade.PositionSize = 1.0
	store := &fakeTradeStore{trade: trade}
	ing := newTestIngestor(store)

	ing.apply(context.Background(), update(exchange.StatusCanceled, exchange.SideBuy, 0.3, 2500))

	if len(store.statusUpdates) != 0 {
		t.Errorf("status updates = %v, want none", store.statusUpdates)
	}
	if store.closedCalls != 0 {
		t.Error("closed_at must stay null")
	}
}

func TestApplyUnmatchedEventCountsDropped(t *testing.T) {
	store := &fakeTradeStore{}
	ing := newTestIngestor(store)

	ing.apply(context.Background(), update(exchange.StatusFilled, exchange.SideBuy, 0.5, 2500))

	_, unmatched, _ := ing.Stats()
	if unmatched != 1 {
		t.Errorf("unmatched = %d, want 1", unmatched)
	}
}

func TestIsExitSide(t *testing.T) {
	tests := []struct {
		position, side string
		want           bool
	}{
		{database.PositionLong, exchange.SideSell, true},
		{database.PositionLong, exchange.SideBuy, false},
		{database.PositionShort, exchange.SideBuy, true},
		{database.PositionShort, exchange.SideSell, false},
	}
	for _, tt := range tests {
		if got := isExitSide(tt.position, tt.side); got != tt.want {
			t.Errorf("isExitSide(%s, %s) = %v, want %v", tt.position, tt.side, got, tt.want)
		}
	}
}
