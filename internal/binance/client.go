// Package binance implements the exchange.Client contract against the
// Binance USDⓈ-M futures REST API and user-data stream.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// Retry configuration for API calls.
const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

const (
	// BaseURL is the production Binance Futures API URL.
	BaseURL = "https://fapi.binance.com"
	// TestnetURL is the testnet Binance Futures API URL.
	TestnetURL = "https://testnet.binancefuture.com"
)

// Client is the Binance USDⓈ-M futures adapter.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	filters    *filterCache
	logger     zerolog.Logger
}

// NewClient creates a Binance futures client. Keys are trimmed because
// trailing whitespace breaks signature generation.
func NewClient(apiKey, secretKey string, testnet bool, logger zerolog.Logger) *Client {
	baseURL := BaseURL
	if testnet {
		baseURL = TestnetURL
	}
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    NewRateLimiter(10),
		logger:     logger.With().Str("component", "binance").Logger(),
	}
	c.filters = newFilterCache(c)
	return c
}

// Name identifies the venue.
func (c *Client) Name() string { return "binance" }

// ResolveSymbol maps a coin symbol to its USDT perpetual pair and verifies
// the pair is listed and trading.
func (c *Client) ResolveSymbol(ctx context.Context, coin string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(coin)) + "USDT"
	f, err := c.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return "", err
	}
	if f.Status != "TRADING" {
		return "", fmt.Errorf("%s status %s: %w", symbol, f.Status, exchange.ErrSymbolUnsupported)
	}
	return symbol, nil
}

// GetSymbolFilters returns the cached trading constraints for a pair.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (*exchange.SymbolFilters, error) {
	return c.filters.get(ctx, symbol)
}

// GetMarkPrice returns the mark price for a pair.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/premiumIndex", map[string]string{"symbol": symbol})
	if err != nil {
		return 0, fmt.Errorf("fetching mark price: %w", err)
	}
	var mp markPriceResponse
	if err := json.Unmarshal(resp, &mp); err != nil {
		return 0, fmt.Errorf("parsing mark price: %w", err)
	}
	return mp.MarkPrice, nil
}

// GetOrderBookTop returns the best bid and ask.
func (c *Client) GetOrderBookTop(ctx context.Context, symbol string) (*exchange.BookTop, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/ticker/bookTicker", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("fetching book ticker: %w", err)
	}
	var bt bookTickerResponse
	if err := json.Unmarshal(resp, &bt); err != nil {
		return nil, fmt.Errorf("parsing book ticker: %w", err)
	}
	return &exchange.BookTop{
		Symbol:   bt.Symbol,
		BidPrice: bt.BidPrice,
		BidQty:   bt.BidQty,
		AskPrice: bt.AskPrice,
		AskQty:   bt.AskQty,
	}, nil
}

// CreateOrder quantizes the request against the cached filters and submits
// it. The verbatim response body is preserved in OrderResult.Raw.
func (c *Client) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	f, err := c.GetSymbolFilters(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	qty, price := req.Quantity, req.Price
	if !req.ClosePosition {
		qty, price, err = exchange.QuantizeOrder(f, req.Quantity, req.Price)
		if err != nil {
			return nil, err
		}
	}

	params := map[string]string{
		"symbol": req.Symbol,
		"side":   req.Side,
		"type":   req.Type,
	}
	if !req.ClosePosition {
		params["quantity"] = exchange.FormatQty(qty, f.StepSize)
	}
	if price > 0 {
		params["price"] = exchange.FormatPrice(price, f.TickSize)
	}
	if req.StopPrice > 0 {
		params["stopPrice"] = exchange.FormatPrice(exchange.FloorToStep(req.StopPrice, f.TickSize), f.TickSize)
	}
	if req.TimeInForce != "" {
		params["timeInForce"] = req.TimeInForce
	} else if req.Type == exchange.OrderTypeLimit {
		params["timeInForce"] = "GTC"
	}
	if req.ReduceOnly && !req.ClosePosition {
		params["reduceOnly"] = "true"
	}
	if req.ClosePosition {
		params["closePosition"] = "true"
	}
	if req.ClientOrderID != "" {
		params["newClientOrderId"] = req.ClientOrderID
	}

	resp, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}

	var or orderResponse
	if err := json.Unmarshal(resp, &or); err != nil {
		return nil, fmt.Errorf("parsing order response: %w", err)
	}
	result := &exchange.OrderResult{
		OrderID:       strconv.FormatInt(or.OrderID, 10),
		ClientOrderID: or.ClientOrderID,
		Symbol:        or.Symbol,
		Status:        or.Status,
		ExecutedQty:   or.ExecutedQty,
		AvgPrice:      or.AvgPrice,
		Raw:           json.RawMessage(resp),
	}
	if or.OrderID == 0 {
		result.OrderID = ""
	}
	return result, nil
}

// CancelOrder cancels one order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/order", map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	})
	if err != nil {
		var ve *exchange.VenueError
		if asVenueError(err, &ve) && ve.IsNotFound() {
			return exchange.ErrOrderNotFound
		}
		return fmt.Errorf("canceling order: %w", err)
	}
	return nil
}

// CancelAllOrders cancels every open order for a pair.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	_, err := c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", map[string]string{
		"symbol": symbol,
	})
	if err != nil {
		return fmt.Errorf("canceling all orders: %w", err)
	}
	return nil
}

// GetOrder probes the status of a single order. The venue's "unknown order"
// error maps to exchange.ErrOrderNotFound.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*exchange.OrderStatus, error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/order", map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	})
	if err != nil {
		var ve *exchange.VenueError
		if asVenueError(err, &ve) && ve.IsNotFound() {
			return nil, exchange.ErrOrderNotFound
		}
		return nil, fmt.Errorf("fetching order: %w", err)
	}
	var o orderResponse
	if err := json.Unmarshal(resp, &o); err != nil {
		return nil, fmt.Errorf("parsing order: %w", err)
	}
	return o.toStatus(resp), nil
}

// GetOpenOrders lists open orders, optionally filtered by pair.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderStatus, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("fetching open orders: %w", err)
	}
	var orders []orderResponse
	if err := json.Unmarshal(resp, &orders); err != nil {
		return nil, fmt.Errorf("parsing open orders: %w", err)
	}
	out := make([]exchange.OrderStatus, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o.toStatus(nil))
	}
	return out, nil
}

// GetPositionRisk lists live positions. Positions with zero amount are
// filtered out.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) ([]exchange.Position, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}
	var raw []positionRiskResponse
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("parsing positions: %w", err)
	}
	var positions []exchange.Position
	for _, p := range raw {
		if p.PositionAmt == 0 {
			continue
		}
		positions = append(positions, exchange.Position{
			Symbol:           p.Symbol,
			PositionAmt:      p.PositionAmt,
			EntryPrice:       p.EntryPrice,
			MarkPrice:        p.MarkPrice,
			UnrealizedProfit: p.UnRealizedProfit,
			Leverage:         p.Leverage,
			PositionSide:     p.PositionSide,
		})
	}
	return positions, nil
}

// SetLeverage binds leverage for a pair prior to placement.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/leverage", map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	})
	if err != nil {
		return fmt.Errorf("setting leverage: %w", err)
	}
	return nil
}

// SetPositionTPSLMode is a no-op on Binance: protective orders are placed as
// separate STOP_MARKET / TAKE_PROFIT_MARKET orders regardless.
func (c *Client) SetPositionTPSLMode(ctx context.Context, symbol string, enabled bool) error {
	return nil
}

// GetIncome lists income events within [start, end].
func (c *Client) GetIncome(ctx context.Context, incomeType string, start, end time.Time, limit int) ([]exchange.Income, error) {
	params := map[string]string{}
	if incomeType != "" {
		params["incomeType"] = incomeType
	}
	if !start.IsZero() {
		params["startTime"] = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		params["endTime"] = strconv.FormatInt(end.UnixMilli(), 10)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/income", params)
	if err != nil {
		return nil, fmt.Errorf("fetching income: %w", err)
	}
	var raw []incomeResponse
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("parsing income: %w", err)
	}
	out := make([]exchange.Income, 0, len(raw))
	for _, r := range raw {
		out = append(out, exchange.Income{
			Time:    time.UnixMilli(r.Time),
			Type:    r.IncomeType,
			Amount:  r.Income,
			Asset:   r.Asset,
			Symbol:  r.Symbol,
			TradeID: r.TradeID,
		})
	}
	return out, nil
}

// GetAccountTrades lists account fills for a pair within [start, end].
func (c *Client) GetAccountTrades(ctx context.Context, symbol string, start, end time.Time, limit int) ([]exchange.AccountTrade, error) {
	params := map[string]string{"symbol": symbol}
	if !start.IsZero() {
		params["startTime"] = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		params["endTime"] = strconv.FormatInt(end.UnixMilli(), 10)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/userTrades", params)
	if err != nil {
		return nil, fmt.Errorf("fetching account trades: %w", err)
	}
	var raw []accountTradeResponse
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("parsing account trades: %w", err)
	}
	out := make([]exchange.AccountTrade, 0, len(raw))
	for _, r := range raw {
		out = append(out, exchange.AccountTrade{
			Symbol:      r.Symbol,
			OrderID:     strconv.FormatInt(r.OrderID, 10),
			Side:        r.Side,
			Price:       r.Price,
			Qty:         r.Qty,
			RealizedPnl: r.RealizedPnl,
			Commission:  r.Commission,
			Time:        time.UnixMilli(r.Time),
		})
	}
	return out, nil
}

// GetBalances lists per-asset futures balances.
func (c *Client) GetBalances(ctx context.Context) ([]exchange.AssetBalance, error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching balances: %w", err)
	}
	var raw []balanceResponse
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("parsing balances: %w", err)
	}
	out := make([]exchange.AssetBalance, 0, len(raw))
	for _, r := range raw {
		locked := r.Balance - r.AvailableBalance
		if locked < 0 {
			locked = 0
		}
		out = append(out, exchange.AssetBalance{
			Asset:            r.Asset,
			Free:             r.AvailableBalance,
			Locked:           locked,
			Total:            r.Balance,
			UnrealizedProfit: r.CrossUnPnl,
		})
	}
	return out, nil
}

// GetListenKey creates a user-data stream listen key.
func (c *Client) GetListenKey(ctx context.Context) (string, error) {
	resp, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/listenKey", nil)
	if err != nil {
		return "", fmt.Errorf("getting listen key: %w", err)
	}
	var lk struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(resp, &lk); err != nil {
		return "", fmt.Errorf("parsing listen key: %w", err)
	}
	return lk.ListenKey, nil
}

// KeepAliveListenKey extends the listen key's validity. It skips the
// limiter's pause window because a missed keepalive drops the stream.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/fapi/v1/listenKey",
		map[string]string{"listenKey": listenKey}, true, false)
	if err != nil {
		return fmt.Errorf("keeping listen key alive: %w", err)
	}
	return nil
}

// CloseListenKey invalidates a listen key.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	_, err := c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/listenKey",
		map[string]string{"listenKey": listenKey})
	if err != nil {
		return fmt.Errorf("closing listen key: %w", err)
	}
	return nil
}

// exchangeInfo fetches the full exchange information payload.
func (c *Client) exchangeInfo(ctx context.Context) (*exchangeInfoResponse, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching exchange info: %w", err)
	}
	var info exchangeInfoResponse
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("parsing exchange info: %w", err)
	}
	return &info, nil
}

// ==================== HTTP HELPERS ====================

// buildQueryString renders params sorted by key, signature excluded.
func buildQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "signature" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// sign creates the HMAC-SHA256 signature for a query string.
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) signParams(params map[string]string) string {
	query := buildQueryString(params)
	return query + "&signature=" + c.sign(query)
}

func (c *Client) publicGet(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, endpoint, params, false, true)
}

func (c *Client) signedRequest(ctx context.Context, method, endpoint string, params map[string]string) ([]byte, error) {
	return c.doRequest(ctx, method, endpoint, params, true, true)
}

// doRequest performs one API call with retry on transient errors. Signed
// requests refresh timestamp and recvWindow per attempt because the
// signature covers both.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed, respectPause bool) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if respectPause {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		var query string
		if signed {
			if params == nil {
				params = make(map[string]string)
			}
			params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
			params["recvWindow"] = "10000" // clock skew tolerance
			query = c.signParams(params)
		} else {
			query = buildQueryString(params)
		}

		reqURL := c.baseURL + endpoint
		if query != "" {
			reqURL += "?" + query
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
		if err != nil {
			return nil, err
		}
		if signed || endpoint == "/fapi/v1/listenKey" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < maxRetries {
				c.retrySleep(ctx, attempt, endpoint, err)
				continue
			}
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			ve := parseVenueError(resp.StatusCode, body)
			lastErr = ve

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 ||
				ve.Code == -1003 || ve.Code == -1015 {
				c.limiter.Pause()
			}
			if ve.Kind() == exchange.FailureTransient && attempt < maxRetries {
				c.retrySleep(ctx, attempt, endpoint, ve)
				continue
			}
			return nil, ve
		}

		c.limiter.Record()
		return body, nil
	}

	return nil, lastErr
}

func (c *Client) retrySleep(ctx context.Context, attempt int, endpoint string, cause error) {
	delay := retryDelay(attempt)
	c.logger.Warn().Err(cause).Str("endpoint", endpoint).Int("attempt", attempt+1).
		Dur("delay", delay).Msg("request failed, retrying")
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// retryDelay returns exponential backoff with ±25% jitter.
func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay + jitter - delay/4
}

// parseVenueError decodes the venue's {"code":..,"msg":..} error body,
// preserving it verbatim.
func parseVenueError(status int, body []byte) *exchange.VenueError {
	ve := &exchange.VenueError{
		Venue:      "binance",
		HTTPStatus: status,
		Body:       body,
		Message:    string(body),
	}
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		ve.Code = apiErr.Code
		ve.Message = apiErr.Msg
	}
	return ve
}

func asVenueError(err error, target **exchange.VenueError) bool {
	return errors.As(err, target)
}

var (
	_ exchange.Client       = (*Client)(nil)
	_ exchange.StreamClient = (*Client)(nil)
)
