package kucoin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// contractInfo is the subset of the contract detail payload the adapter
// needs: lot geometry and listing status.
type contractInfo struct {
	Symbol      string  `json:"symbol"`
	Status      string  `json:"status"`
	Multiplier  float64 `json:"multiplier"`
	LotSize     int64   `json:"lotSize"`
	MaxOrderQty int64   `json:"maxOrderQty"`
	TickSize    float64 `json:"tickSize"`
	MaxPrice    float64 `json:"maxPrice"`

	fetchedAt time.Time
}

// contract returns cached contract details, refreshing the whole active list
// once an hour.
func (c *Client) contract(ctx context.Context, symbol string) (*contractInfo, error) {
	c.mu.RLock()
	info, ok := c.contracts[symbol]
	fresh := time.Since(c.contractsAt) < contractTTL
	c.mu.RUnlock()
	if ok && fresh {
		return info, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.contracts[symbol]; ok && time.Since(c.contractsAt) < contractTTL {
		return info, nil
	}

	var list []contractInfo
	if err := c.get(ctx, "/api/v1/contracts/active", nil, false, &list); err != nil {
		if info, ok := c.contracts[symbol]; ok {
			return info, nil
		}
		return nil, fmt.Errorf("fetching contracts: %w", err)
	}

	now := time.Now()
	table := make(map[string]*contractInfo, len(list))
	for i := range list {
		list[i].fetchedAt = now
		table[list[i].Symbol] = &list[i]
	}
	c.contracts = table
	c.contractsAt = now

	info, ok = table[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, exchange.ErrSymbolUnsupported)
	}
	return info, nil
}

// orderDetail is the order payload shape shared by single-order and list
// endpoints. Sizes are in contracts.
type orderDetail struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Type        string  `json:"type"`
	Price       float64 `json:"price,string"`
	Size        int64   `json:"size"`
	FilledSize  int64   `json:"filledSize"`
	FilledValue float64 `json:"filledValue,string"`
	StopPrice   float64 `json:"stopPrice,string"`
	ReduceOnly  bool    `json:"reduceOnly"`
	IsActive    bool    `json:"isActive"`
	CancelExist bool    `json:"cancelExist"`
	Status      string  `json:"status"`
	UpdatedAt   int64   `json:"updatedAt"`
}

func (o *orderDetail) toStatus(multiplier float64) *exchange.OrderStatus {
	filledQty := float64(o.FilledSize) * multiplier
	avg := 0.0
	if filledQty > 0 {
		avg = o.FilledValue / filledQty
	}
	return &exchange.OrderStatus{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        strings.ToUpper(o.Side),
		Type:        strings.ToUpper(o.Type),
		Status:      translateOrderStatus(o),
		Price:       o.Price,
		AvgPrice:    avg,
		OrigQty:     float64(o.Size) * multiplier,
		ExecutedQty: filledQty,
		ReduceOnly:  o.ReduceOnly,
		StopPrice:   o.StopPrice,
		UpdateTime:  time.UnixMilli(o.UpdatedAt),
	}
}

// translateOrderStatus maps KuCoin's open/done + cancelExist + fill state to
// Binance-style statuses the reconciler understands.
func translateOrderStatus(o *orderDetail) string {
	switch {
	case o.IsActive && o.FilledSize > 0:
		return exchange.StatusPartiallyFilled
	case o.IsActive:
		return exchange.StatusNew
	case o.CancelExist:
		return exchange.StatusCanceled
	case o.FilledSize >= o.Size && o.Size > 0:
		return exchange.StatusFilled
	default:
		return exchange.StatusExpired
	}
}

type positionDetail struct {
	Symbol        string  `json:"symbol"`
	CurrentQty    int64   `json:"currentQty"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
	MarkPrice     float64 `json:"markPrice"`
	UnrealisedPnl float64 `json:"unrealisedPnl"`
	RealLeverage  float64 `json:"realLeverage"`
}

// mapVenueError converts a KuCoin error envelope into the shared taxonomy by
// reusing the Binance code space the classifier understands.
func mapVenueError(httpStatus int, code, msg string, body []byte) *exchange.VenueError {
	ve := &exchange.VenueError{
		Venue:      "kucoin",
		HTTPStatus: httpStatus,
		Message:    msg,
		Body:       body,
	}

	lower := strings.ToLower(msg)
	switch {
	case code == "300018" || strings.Contains(lower, "balance insufficient") ||
		strings.Contains(lower, "insufficient"):
		ve.Code = -2019
	case code == "100001" && strings.Contains(lower, "symbol"):
		ve.Code = -1121
	case strings.Contains(lower, "size"):
		ve.Code = -1013
	case strings.Contains(lower, "price"):
		ve.Code = -4016
	case httpStatus == 401 || httpStatus == 403 || code == "400003" || code == "400004" ||
		code == "400005" || code == "400006":
		ve.Code = -2015
	case httpStatus == 429 || code == "429000" || code == "1015":
		ve.Code = -1003
	default:
		if n, err := strconv.Atoi(code); err == nil && n != 0 {
			ve.Code = -n
		}
	}
	return ve
}
