package exchange

import (
	"encoding/json"
	"time"
)

// Order sides and types shared across venues.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket           = "MARKET"
	OrderTypeLimit            = "LIMIT"
	OrderTypeStopMarket       = "STOP_MARKET"
	OrderTypeTakeProfitMarket = "TAKE_PROFIT_MARKET"
)

// Venue order statuses as reported by order queries and stream events.
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusExpired         = "EXPIRED"
	StatusRejected        = "REJECTED"
)

// SymbolFilters holds the venue trading constraints for one pair.
type SymbolFilters struct {
	Symbol      string
	Status      string // TRADING, BREAK, ...
	StepSize    float64
	MinQty      float64
	MaxQty      float64
	TickSize    float64
	MinPrice    float64
	MaxPrice    float64
	MinNotional float64
	FetchedAt   time.Time
}

// BookTop is the best bid/ask of the order book.
type BookTop struct {
	Symbol   string
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
}

// OrderRequest describes a new order to place.
type OrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      float64
	Price         float64 // limit price, 0 for market
	StopPrice     float64 // trigger price for stop / take-profit orders
	ReduceOnly    bool
	ClosePosition bool
	TimeInForce   string
	ClientOrderID string
}

// OrderResult is the outcome of CreateOrder. Raw preserves the venue payload
// verbatim for audit; it is never rewritten by later status probes.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Status        string
	ExecutedQty   float64
	AvgPrice      float64
	Raw           json.RawMessage
}

// Placed reports whether the venue assigned an order id. This is the sole
// success criterion for placement; follow-up probe failures never undo it.
func (r *OrderResult) Placed() bool {
	return r != nil && r.OrderID != ""
}

// OrderStatus is the outcome of a status probe.
type OrderStatus struct {
	OrderID     string
	Symbol      string
	Side        string
	Type        string
	Status      string
	Price       float64
	AvgPrice    float64
	OrigQty     float64
	ExecutedQty float64
	ReduceOnly  bool
	StopPrice   float64
	UpdateTime  time.Time
	Raw         json.RawMessage
}

// Position is one live venue position.
type Position struct {
	Symbol           string
	PositionAmt      float64 // signed: >0 long, <0 short
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	Leverage         int
	PositionSide     string
}

// Income is one venue income event (REALIZED_PNL, COMMISSION, FUNDING_FEE, ...).
type Income struct {
	Time    time.Time
	Type    string
	Amount  float64
	Asset   string
	Symbol  string
	TradeID string
}

// AccountTrade is one account fill.
type AccountTrade struct {
	Symbol      string
	OrderID     string
	Side        string
	Price       float64
	Qty         float64
	RealizedPnl float64
	Commission  float64
	Time        time.Time
}

// AssetBalance is one per-asset futures balance.
type AssetBalance struct {
	Asset            string
	Free             float64
	Locked           float64
	Total            float64
	UnrealizedProfit float64
}
