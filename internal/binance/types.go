package binance

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// Wire types for the futures REST API. Numeric fields arrive as strings.

type markPriceResponse struct {
	Symbol          string  `json:"symbol"`
	MarkPrice       float64 `json:"markPrice,string"`
	IndexPrice      float64 `json:"indexPrice,string"`
	LastFundingRate float64 `json:"lastFundingRate,string"`
	NextFundingTime int64   `json:"nextFundingTime"`
	Time            int64   `json:"time"`
}

type bookTickerResponse struct {
	Symbol   string  `json:"symbol"`
	BidPrice float64 `json:"bidPrice,string"`
	BidQty   float64 `json:"bidQty,string"`
	AskPrice float64 `json:"askPrice,string"`
	AskQty   float64 `json:"askQty,string"`
}

type orderResponse struct {
	OrderID       int64   `json:"orderId"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	ClientOrderID string  `json:"clientOrderId"`
	Price         float64 `json:"price,string"`
	AvgPrice      float64 `json:"avgPrice,string"`
	OrigQty       float64 `json:"origQty,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	ReduceOnly    bool    `json:"reduceOnly"`
	StopPrice     float64 `json:"stopPrice,string"`
	UpdateTime    int64   `json:"updateTime"`
}

func (o *orderResponse) toStatus(raw []byte) *exchange.OrderStatus {
	return &exchange.OrderStatus{
		OrderID:     formatOrderID(o.OrderID),
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        o.Type,
		Status:      o.Status,
		Price:       o.Price,
		AvgPrice:    o.AvgPrice,
		OrigQty:     o.OrigQty,
		ExecutedQty: o.ExecutedQty,
		ReduceOnly:  o.ReduceOnly,
		StopPrice:   o.StopPrice,
		UpdateTime:  time.UnixMilli(o.UpdateTime),
		Raw:         json.RawMessage(raw),
	}
}

type positionRiskResponse struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"positionAmt,string"`
	EntryPrice       float64 `json:"entryPrice,string"`
	MarkPrice        float64 `json:"markPrice,string"`
	UnRealizedProfit float64 `json:"unRealizedProfit,string"`
	Leverage         int     `json:"leverage,string"`
	PositionSide     string  `json:"positionSide"`
}

type incomeResponse struct {
	Symbol     string  `json:"symbol"`
	IncomeType string  `json:"incomeType"`
	Income     float64 `json:"income,string"`
	Asset      string  `json:"asset"`
	Time       int64   `json:"time"`
	TradeID    string  `json:"tradeId"`
}

type accountTradeResponse struct {
	Symbol      string  `json:"symbol"`
	OrderID     int64   `json:"orderId"`
	Side        string  `json:"side"`
	Price       float64 `json:"price,string"`
	Qty         float64 `json:"qty,string"`
	RealizedPnl float64 `json:"realizedPnl,string"`
	Commission  float64 `json:"commission,string"`
	Time        int64   `json:"time"`
}

type balanceResponse struct {
	Asset            string  `json:"asset"`
	Balance          float64 `json:"balance,string"`
	AvailableBalance float64 `json:"availableBalance,string"`
	CrossUnPnl       float64 `json:"crossUnPnl,string"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol       string         `json:"symbol"`
	Status       string         `json:"status"`
	QuoteAsset   string         `json:"quoteAsset"`
	ContractType string         `json:"contractType"`
	Filters      []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string  `json:"filterType"`
	StepSize    float64 `json:"stepSize,string"`
	MinQty      float64 `json:"minQty,string"`
	MaxQty      float64 `json:"maxQty,string"`
	TickSize    float64 `json:"tickSize,string"`
	MinPrice    float64 `json:"minPrice,string"`
	MaxPrice    float64 `json:"maxPrice,string"`
	MinNotional float64 `json:"notional,string"`
}

func formatOrderID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
