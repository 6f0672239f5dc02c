// Package kucoin implements the exchange.Client contract against the KuCoin
// futures REST API. KuCoin sizes orders in integer contracts; the adapter
// converts base-asset quantities using each contract's multiplier so callers
// keep working in coin terms.
package kucoin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// BaseURL is the production KuCoin futures API URL.
const BaseURL = "https://api-futures.kucoin.com"

const contractTTL = time.Hour

// Client is the KuCoin futures adapter.
type Client struct {
	apiKey     string
	apiSecret  string
	passphrase string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu          sync.RWMutex
	contracts   map[string]*contractInfo
	contractsAt time.Time

	levMu    sync.Mutex
	leverage map[string]int
}

// NewClient creates a KuCoin futures client.
func NewClient(apiKey, apiSecret, passphrase string, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		apiSecret:  strings.TrimSpace(apiSecret),
		passphrase: strings.TrimSpace(passphrase),
		baseURL:    BaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With().Str("component", "kucoin").Logger(),
		contracts:  make(map[string]*contractInfo),
		leverage:   make(map[string]int),
	}
}

// Name identifies the venue.
func (c *Client) Name() string { return "kucoin" }

// ResolveSymbol maps a coin symbol to KuCoin's USDT-margined contract name.
// KuCoin lists Bitcoin as XBT.
func (c *Client) ResolveSymbol(ctx context.Context, coin string) (string, error) {
	base := strings.ToUpper(strings.TrimSpace(coin))
	if base == "BTC" {
		base = "XBT"
	}
	symbol := base + "USDTM"

	info, err := c.contract(ctx, symbol)
	if err != nil {
		return "", err
	}
	if info.Status != "Open" {
		return "", fmt.Errorf("%s status %s: %w", symbol, info.Status, exchange.ErrSymbolUnsupported)
	}
	return symbol, nil
}

// GetSymbolFilters translates contract constraints into the shared filter
// shape. Quantities are expressed in base asset via the lot multiplier.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (*exchange.SymbolFilters, error) {
	info, err := c.contract(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &exchange.SymbolFilters{
		Symbol:      symbol,
		Status:      translateStatus(info.Status),
		StepSize:    info.Multiplier,
		MinQty:      info.Multiplier * float64(info.LotSize),
		MaxQty:      info.Multiplier * float64(info.MaxOrderQty),
		TickSize:    info.TickSize,
		MaxPrice:    info.MaxPrice,
		MinNotional: 0,
		FetchedAt:   info.fetchedAt,
	}, nil
}

// GetMarkPrice returns the contract mark price.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var data struct {
		Value float64 `json:"value"`
	}
	if err := c.get(ctx, "/api/v1/mark-price/"+symbol+"/current", nil, false, &data); err != nil {
		return 0, fmt.Errorf("fetching mark price: %w", err)
	}
	return data.Value, nil
}

// GetOrderBookTop returns the best bid and ask.
func (c *Client) GetOrderBookTop(ctx context.Context, symbol string) (*exchange.BookTop, error) {
	var data struct {
		BestBidPrice float64 `json:"bestBidPrice,string"`
		BestBidSize  float64 `json:"bestBidSize"`
		BestAskPrice float64 `json:"bestAskPrice,string"`
		BestAskSize  float64 `json:"bestAskSize"`
	}
	if err := c.get(ctx, "/api/v1/ticker", url.Values{"symbol": {symbol}}, false, &data); err != nil {
		return nil, fmt.Errorf("fetching ticker: %w", err)
	}
	return &exchange.BookTop{
		Symbol:   symbol,
		BidPrice: data.BestBidPrice,
		BidQty:   data.BestBidSize,
		AskPrice: data.BestAskPrice,
		AskQty:   data.BestAskSize,
	}, nil
}

// CreateOrder converts the base-asset quantity to contracts and submits the
// order. Stop orders are expressed with the stop/stopPrice fields; KuCoin has
// no closePosition flag, so protective orders are reduce-only sized to the
// full position by the caller.
func (c *Client) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	info, err := c.contract(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	size := int64(math.Floor(req.Quantity / info.Multiplier))
	if size < info.LotSize {
		return nil, &exchange.VenueError{
			Venue:   "kucoin",
			Code:    -1013,
			Message: fmt.Sprintf("quantity %v below lot size for %s", req.Quantity, req.Symbol),
		}
	}

	leverage := c.leverageFor(req.Symbol)
	body := map[string]any{
		"clientOid": clientOid(req.ClientOrderID),
		"symbol":    req.Symbol,
		"side":      strings.ToLower(req.Side),
		"size":      size,
		"leverage":  strconv.Itoa(leverage),
	}
	switch req.Type {
	case exchange.OrderTypeLimit:
		body["type"] = "limit"
		body["price"] = exchange.FormatPrice(req.Price, info.TickSize)
	case exchange.OrderTypeMarket:
		body["type"] = "market"
	case exchange.OrderTypeStopMarket, exchange.OrderTypeTakeProfitMarket:
		body["type"] = "market"
		body["stopPriceType"] = "MP"
		body["stopPrice"] = exchange.FormatPrice(req.StopPrice, info.TickSize)
		body["stop"] = stopDirection(req.Type, req.Side)
	default:
		return nil, fmt.Errorf("unsupported order type %q", req.Type)
	}
	if req.ReduceOnly || req.ClosePosition {
		body["reduceOnly"] = true
	}
	if req.TimeInForce != "" && req.Type == exchange.OrderTypeLimit {
		body["timeInForce"] = req.TimeInForce
	}

	raw, data, err := c.post(ctx, "/api/v1/orders", body)
	if err != nil {
		return nil, err
	}
	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing order response: %w", err)
	}
	return &exchange.OrderResult{
		OrderID:       resp.OrderID,
		ClientOrderID: body["clientOid"].(string),
		Symbol:        req.Symbol,
		Status:        exchange.StatusNew,
		Raw:           raw,
	}, nil
}

// CancelOrder cancels one order by id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	err := c.delete(ctx, "/api/v1/orders/"+orderID, nil)
	if err != nil {
		var ve *exchange.VenueError
		if errors.As(err, &ve) && ve.HTTPStatus == http.StatusNotFound {
			return exchange.ErrOrderNotFound
		}
		return fmt.Errorf("canceling order: %w", err)
	}
	return nil
}

// CancelAllOrders cancels every open order for a contract, including
// untriggered stops.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	q := url.Values{"symbol": {symbol}}
	if err := c.delete(ctx, "/api/v1/orders", q); err != nil {
		return fmt.Errorf("canceling open orders: %w", err)
	}
	if err := c.delete(ctx, "/api/v1/stopOrders", q); err != nil {
		return fmt.Errorf("canceling stop orders: %w", err)
	}
	return nil
}

// GetOrder probes a single order's status.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*exchange.OrderStatus, error) {
	var o orderDetail
	if err := c.get(ctx, "/api/v1/orders/"+orderID, nil, true, &o); err != nil {
		var ve *exchange.VenueError
		if errors.As(err, &ve) && ve.HTTPStatus == http.StatusNotFound {
			return nil, exchange.ErrOrderNotFound
		}
		return nil, fmt.Errorf("fetching order: %w", err)
	}
	info, err := c.contract(ctx, o.Symbol)
	if err != nil {
		return nil, err
	}
	return o.toStatus(info.Multiplier), nil
}

// GetOpenOrders lists active orders, optionally filtered by contract.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderStatus, error) {
	q := url.Values{"status": {"active"}}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var data struct {
		Items []orderDetail `json:"items"`
	}
	if err := c.get(ctx, "/api/v1/orders", q, true, &data); err != nil {
		return nil, fmt.Errorf("fetching open orders: %w", err)
	}
	out := make([]exchange.OrderStatus, 0, len(data.Items))
	for _, o := range data.Items {
		info, err := c.contract(ctx, o.Symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, *o.toStatus(info.Multiplier))
	}
	return out, nil
}

// GetPositionRisk lists live positions.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) ([]exchange.Position, error) {
	var raw []positionDetail
	if symbol != "" {
		var p positionDetail
		if err := c.get(ctx, "/api/v1/position", url.Values{"symbol": {symbol}}, true, &p); err != nil {
			return nil, fmt.Errorf("fetching position: %w", err)
		}
		raw = []positionDetail{p}
	} else {
		if err := c.get(ctx, "/api/v1/positions", nil, true, &raw); err != nil {
			return nil, fmt.Errorf("fetching positions: %w", err)
		}
	}

	var positions []exchange.Position
	for _, p := range raw {
		if p.CurrentQty == 0 {
			continue
		}
		info, err := c.contract(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		side := "LONG"
		if p.CurrentQty < 0 {
			side = "SHORT"
		}
		positions = append(positions, exchange.Position{
			Symbol:           p.Symbol,
			PositionAmt:      float64(p.CurrentQty) * info.Multiplier,
			EntryPrice:       p.AvgEntryPrice,
			MarkPrice:        p.MarkPrice,
			UnrealizedProfit: p.UnrealisedPnl,
			Leverage:         int(p.RealLeverage),
			PositionSide:     side,
		})
	}
	return positions, nil
}

// SetLeverage records the leverage locally; KuCoin binds leverage per order
// rather than per contract, so the value is attached at placement.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("invalid leverage %d", leverage)
	}
	c.levMu.Lock()
	c.leverage[symbol] = leverage
	c.levMu.Unlock()
	return nil
}

// SetPositionTPSLMode is unsupported: callers fall back to separate
// reduce-only stop orders.
func (c *Client) SetPositionTPSLMode(ctx context.Context, symbol string, enabled bool) error {
	return exchange.ErrTPSLModeUnsupported
}

// GetIncome maps funding and realized-PnL history to the shared income shape.
func (c *Client) GetIncome(ctx context.Context, incomeType string, start, end time.Time, limit int) ([]exchange.Income, error) {
	q := url.Values{}
	if !start.IsZero() {
		q.Set("startAt", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		q.Set("endAt", strconv.FormatInt(end.UnixMilli(), 10))
	}
	if limit > 0 {
		q.Set("maxCount", strconv.Itoa(limit))
	}
	var data struct {
		DataList []struct {
			Symbol      string  `json:"symbol"`
			FundingRate float64 `json:"fundingRate"`
			Funding     float64 `json:"funding"`
			TimePoint   int64   `json:"timePoint"`
		} `json:"dataList"`
	}
	if err := c.get(ctx, "/api/v1/funding-history", q, true, &data); err != nil {
		return nil, fmt.Errorf("fetching funding history: %w", err)
	}
	out := make([]exchange.Income, 0, len(data.DataList))
	for _, d := range data.DataList {
		if incomeType != "" && incomeType != "FUNDING_FEE" {
			continue
		}
		out = append(out, exchange.Income{
			Time:   time.UnixMilli(d.TimePoint),
			Type:   "FUNDING_FEE",
			Amount: d.Funding,
			Asset:  "USDT",
			Symbol: d.Symbol,
		})
	}
	return out, nil
}

// GetAccountTrades lists recent fills for a contract.
func (c *Client) GetAccountTrades(ctx context.Context, symbol string, start, end time.Time, limit int) ([]exchange.AccountTrade, error) {
	q := url.Values{"symbol": {symbol}}
	if !start.IsZero() {
		q.Set("startAt", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		q.Set("endAt", strconv.FormatInt(end.UnixMilli(), 10))
	}
	var data struct {
		Items []struct {
			Symbol    string  `json:"symbol"`
			OrderID   string  `json:"orderId"`
			Side      string  `json:"side"`
			Price     float64 `json:"price,string"`
			Size      int64   `json:"size"`
			Fee       float64 `json:"fee,string"`
			TradeTime int64   `json:"tradeTime"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/api/v1/fills", q, true, &data); err != nil {
		return nil, fmt.Errorf("fetching fills: %w", err)
	}
	info, err := c.contract(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.AccountTrade, 0, len(data.Items))
	for _, f := range data.Items {
		out = append(out, exchange.AccountTrade{
			Symbol:     f.Symbol,
			OrderID:    f.OrderID,
			Side:       strings.ToUpper(f.Side),
			Price:      f.Price,
			Qty:        float64(f.Size) * info.Multiplier,
			Commission: f.Fee,
			Time:       time.Unix(0, f.TradeTime),
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetBalances returns the USDT futures account overview as a single balance.
func (c *Client) GetBalances(ctx context.Context) ([]exchange.AssetBalance, error) {
	var data struct {
		AccountEquity    float64 `json:"accountEquity"`
		AvailableBalance float64 `json:"availableBalance"`
		PositionMargin   float64 `json:"positionMargin"`
		OrderMargin      float64 `json:"orderMargin"`
		UnrealisedPNL    float64 `json:"unrealisedPNL"`
	}
	if err := c.get(ctx, "/api/v1/account-overview", url.Values{"currency": {"USDT"}}, true, &data); err != nil {
		return nil, fmt.Errorf("fetching account overview: %w", err)
	}
	return []exchange.AssetBalance{{
		Asset:            "USDT",
		Free:             data.AvailableBalance,
		Locked:           data.PositionMargin + data.OrderMargin,
		Total:            data.AccountEquity,
		UnrealizedProfit: data.UnrealisedPNL,
	}}, nil
}

func (c *Client) leverageFor(symbol string) int {
	c.levMu.Lock()
	defer c.levMu.Unlock()
	if l, ok := c.leverage[symbol]; ok {
		return l
	}
	return 1
}

func clientOid(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// stopDirection maps stop/take-profit semantics to KuCoin's up/down trigger.
// A sell stop fires below market (down), a sell take-profit above (up).
func stopDirection(orderType, side string) string {
	isStop := orderType == exchange.OrderTypeStopMarket
	if side == exchange.SideSell {
		if isStop {
			return "down"
		}
		return "up"
	}
	if isStop {
		return "up"
	}
	return "down"
}

func translateStatus(s string) string {
	if s == "Open" {
		return "TRADING"
	}
	return strings.ToUpper(s)
}

var _ exchange.Client = (*Client)(nil)

// ==================== HTTP HELPERS ====================

// signRequest attaches the KC-API v2 authentication headers: the signature
// covers timestamp+method+path+body, and the passphrase itself is signed.
func (c *Client) signRequest(req *http.Request, path, body string) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	payload := ts + req.Method + path + body

	req.Header.Set("KC-API-KEY", c.apiKey)
	req.Header.Set("KC-API-SIGN", c.hmacB64(payload))
	req.Header.Set("KC-API-TIMESTAMP", ts)
	req.Header.Set("KC-API-PASSPHRASE", c.hmacB64(c.passphrase))
	req.Header.Set("KC-API-KEY-VERSION", "2")
}

func (c *Client) hmacB64(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, signed bool, out any) error {
	path := endpoint
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if signed {
		c.signRequest(req, path, "")
	}
	data, err := c.do(req)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, body map[string]any) (json.RawMessage, json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signRequest(req, endpoint, string(encoded))

	raw, data, err := c.doRaw(req)
	if err != nil {
		return nil, nil, err
	}
	return raw, data, nil
}

func (c *Client) delete(ctx context.Context, endpoint string, q url.Values) error {
	path := endpoint
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.signRequest(req, path, "")
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	_, data, err := c.doRaw(req)
	return data, err
}

// doRaw executes the request and unwraps KuCoin's {code, msg, data}
// envelope. It returns both the verbatim body and the data payload.
func (c *Client) doRaw(req *http.Request) (json.RawMessage, json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, nil, err
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, nil, &exchange.VenueError{
				Venue:      "kucoin",
				HTTPStatus: resp.StatusCode,
				Message:    string(body),
				Body:       body,
			}
		}
		return nil, nil, fmt.Errorf("decoding envelope: %w", err)
	}

	if resp.StatusCode != http.StatusOK || envelope.Code != "200000" {
		return nil, nil, mapVenueError(resp.StatusCode, envelope.Code, envelope.Msg, body)
	}
	return json.RawMessage(body), envelope.Data, nil
}
