// Package exchange defines the venue-neutral client contract the trade
// coordinator and reconciliation loops are written against. Binance and
// KuCoin each provide an implementation.
package exchange

import (
	"context"
	"time"
)

// Client is the surface every futures venue adapter must implement.
// All methods that reach the network take a context and honor its deadline.
type Client interface {
	// Name returns the venue identifier ("binance", "kucoin").
	Name() string

	// ResolveSymbol maps a coin symbol (e.g. "HYPE") to the venue's trading
	// pair (e.g. "HYPEUSDT") and verifies the pair is listed with
	// status TRADING. Returns ErrSymbolUnsupported otherwise.
	ResolveSymbol(ctx context.Context, coin string) (string, error)

	// GetSymbolFilters returns the cached LOT_SIZE / PRICE_FILTER /
	// MIN_NOTIONAL constraints for a trading pair.
	GetSymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error)

	// GetMarkPrice returns the venue mark price for a trading pair.
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)

	// GetOrderBookTop returns the best bid and ask.
	GetOrderBookTop(ctx context.Context, symbol string) (*BookTop, error)

	// CreateOrder validates the request against the cached filters,
	// quantizes quantity and price, and submits the order. The returned
	// OrderResult carries the verbatim venue payload; presence of a
	// venue-assigned order id is the sole success criterion.
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// CancelOrder cancels a single order by venue order id.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// CancelAllOrders cancels every open order for a trading pair.
	CancelAllOrders(ctx context.Context, symbol string) error

	// GetOrder queries the status of a single order.
	GetOrder(ctx context.Context, symbol, orderID string) (*OrderStatus, error)

	// GetOpenOrders lists open orders, optionally filtered by pair.
	GetOpenOrders(ctx context.Context, symbol string) ([]OrderStatus, error)

	// GetPositionRisk returns live positions; empty symbol returns all.
	GetPositionRisk(ctx context.Context, symbol string) ([]Position, error)

	// SetLeverage binds leverage to a pair prior to placement.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetPositionTPSLMode enables the venue's position-mode TP/SL API.
	// Venues without the feature return ErrTPSLModeUnsupported and callers
	// fall back to separate reduce-only stop orders.
	SetPositionTPSLMode(ctx context.Context, symbol string, enabled bool) error

	// GetIncome returns income events (realized PnL, commissions, funding)
	// within [start, end]. Empty incomeType returns all types.
	GetIncome(ctx context.Context, incomeType string, start, end time.Time, limit int) ([]Income, error)

	// GetAccountTrades returns account fills for a pair within [start, end].
	GetAccountTrades(ctx context.Context, symbol string, start, end time.Time, limit int) ([]AccountTrade, error)

	// GetBalances returns per-asset futures balances.
	GetBalances(ctx context.Context) ([]AssetBalance, error)
}

// StreamClient is implemented by venues that expose a user-data stream.
type StreamClient interface {
	// GetListenKey creates a user-data stream listen key.
	GetListenKey(ctx context.Context) (string, error)

	// KeepAliveListenKey extends a listen key's validity.
	KeepAliveListenKey(ctx context.Context, listenKey string) error

	// CloseListenKey invalidates a listen key.
	CloseListenKey(ctx context.Context, listenKey string) error
}
