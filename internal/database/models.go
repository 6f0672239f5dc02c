package database

import (
	"encoding/json"
	"time"
)

// Trade lifecycle statuses. PENDING is the initial state; CLOSED, FAILED,
// CANCELED and EXPIRED are terminal.
const (
	StatusPending         = "PENDING"
	StatusOpen            = "OPEN"
	StatusPartiallyClosed = "PARTIALLY_CLOSED"
	StatusClosed          = "CLOSED"
	StatusFailed          = "FAILED"
	StatusUnfilled        = "UNFILLED"
	StatusCanceled        = "CANCELED"
	StatusExpired         = "EXPIRED"
)

// IsTerminalStatus reports whether a trade in this status accepts no further
// lifecycle transitions.
func IsTerminalStatus(s string) bool {
	switch s {
	case StatusClosed, StatusFailed, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// IsLiveStatus reports whether the trade has a live venue position.
func IsLiveStatus(s string) bool {
	return s == StatusOpen || s == StatusPartiallyClosed
}

// Position types.
const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"
)

// TPSLOrder records one protective order installed for a trade.
type TPSLOrder struct {
	OrderID      string  `json:"order_id"`
	Kind         string  `json:"kind"` // TP or SL
	TriggerPrice float64 `json:"trigger_price"`
	Level        int     `json:"level,omitempty"` // TP level (1, 2, ...)
}

// Trade is the persistent row tracking one position lifecycle. One row per
// inbound initial signal.
type Trade struct {
	ID                    int64           `json:"id"`
	DiscordID             string          `json:"discord_id"`
	Timestamp             time.Time       `json:"timestamp"`
	CoinSymbol            string          `json:"coin_symbol"`
	ParsedSignal          json.RawMessage `json:"parsed_signal,omitempty"`
	SignalType            string          `json:"signal_type"` // LONG or SHORT
	Status                string          `json:"status"`
	EntryPrice            float64         `json:"entry_price"`
	BinanceEntryPrice     float64         `json:"binance_entry_price"`
	ExitPrice             *float64        `json:"exit_price,omitempty"`
	PositionSize          float64         `json:"position_size"`
	ExchangeOrderID       string          `json:"exchange_order_id"`
	OriginalOrderResponse json.RawMessage `json:"original_order_response,omitempty"`
	BinanceResponse       json.RawMessage `json:"binance_response,omitempty"`
	OrderStatusResponse   json.RawMessage `json:"order_status_response,omitempty"`
	TPSLOrders            []TPSLOrder     `json:"tp_sl_orders,omitempty"`
	PnlUSD                *float64        `json:"pnl_usd,omitempty"`
	SyncErrorCount        int             `json:"sync_error_count"`
	SyncIssues            []string        `json:"sync_issues,omitempty"`
	ManualVerification    bool            `json:"manual_verification_needed"`
	CreatedAt             *time.Time      `json:"created_at,omitempty"`
	ClosedAt              *time.Time      `json:"closed_at,omitempty"`
	UpdatedAt             time.Time       `json:"updated_at"`
	MergedIntoTradeID     *int64          `json:"merged_into_trade_id,omitempty"`
	MergeReason           string          `json:"merge_reason,omitempty"`
	MergedAt              *time.Time      `json:"merged_at,omitempty"`
}

// Alert is the persistent row tracking one follow-up action bound to a Trade
// via the parent's discord id.
type Alert struct {
	ID              int64           `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	DiscordID       string          `json:"discord_id"`
	Trade           string          `json:"trade"` // parent trade discord_id
	Content         string          `json:"content"`
	Trader          string          `json:"trader,omitempty"`
	ParsedAlert     json.RawMessage `json:"parsed_alert,omitempty"`
	BinanceResponse json.RawMessage `json:"binance_response,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Balance is one venue × account-type × asset balance row.
type Balance struct {
	Platform      string    `json:"platform"`
	AccountType   string    `json:"account_type"`
	Asset         string    `json:"asset"`
	Free          float64   `json:"free"`
	Locked        float64   `json:"locked"`
	Total         float64   `json:"total"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Transaction is one venue income event, deduplicated on the full tuple.
type Transaction struct {
	Time   time.Time `json:"time"`
	Type   string    `json:"type"`
	Amount float64   `json:"amount"`
	Asset  string    `json:"asset"`
	Symbol string    `json:"symbol"`
}
