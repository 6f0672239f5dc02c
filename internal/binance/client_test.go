package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

const exchangeInfoBody = `{
	"symbols": [
		{
			"symbol": "ETHUSDT",
			"status": "TRADING",
			"contractType": "PERPETUAL",
			"quoteAsset": "USDT",
			"pricePrecision": 2,
			"quantityPrecision": 3,
			"filters": [
				{"filterType": "LOT_SIZE", "stepSize": "0.001", "minQty": "0.001", "maxQty": "10000"},
				{"filterType": "PRICE_FILTER", "tickSize": "0.01", "minPrice": "39.86", "maxPrice": "306177"},
				{"filterType": "MIN_NOTIONAL", "notional": "20"}
			]
		},
		{
			"symbol": "DOGEUSDT_250926",
			"status": "TRADING",
			"contractType": "CURRENT_QUARTER",
			"quoteAsset": "USDT",
			"filters": []
		},
		{
			"symbol": "OLDUSDT",
			"status": "CLOSE_ONLY",
			"contractType": "PERPETUAL",
			"quoteAsset": "USDT",
			"filters": []
		}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", "test-secret", false, zerolog.Nop())
	c.baseURL = srv.URL
	c.httpClient = srv.Client()
	c.limiter = NewRateLimiter(1000) // effectively unthrottled in tests
	return c
}

func TestSign(t *testing.T) {
	c := &Client{secretKey: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"}
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := c.sign(query); got != want {
		t.Errorf("sign = %s, want %s", got, want)
	}
}

func TestBuildQueryStringSortsKeys(t *testing.T) {
	got := buildQueryString(map[string]string{
		"symbol":    "ETHUSDT",
		"side":      "BUY",
		"quantity":  "0.5",
		"signature": "excluded",
	})
	want := "quantity=0.5&side=BUY&symbol=ETHUSDT"
	if got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
}

func TestCreateOrderQuantizesAndParses(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			w.Write([]byte(exchangeInfoBody))
		case "/fapi/v1/order":
			if r.Header.Get("X-MBX-APIKEY") != "test-key" {
				t.Errorf("missing API key header")
			}
			gotQuery = r.URL.RawQuery
			w.Write([]byte(`{"orderId": 4051011234, "clientOrderId": "x-1", "symbol": "ETHUSDT",
				"status": "FILLED", "executedQty": "0.123", "avgPrice": "2500.10"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	res, err := c.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     exchange.SideBuy,
		Type:     exchange.OrderTypeMarket,
		Quantity: 0.12345, // must be floored to 0.123
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !res.Placed() {
		t.Error("result with orderId should be Placed")
	}
	if res.OrderID != "4051011234" {
		t.Errorf("order id = %q, want 4051011234", res.OrderID)
	}
	if res.ExecutedQty != 0.123 {
		t.Errorf("executed qty = %v, want 0.123", res.ExecutedQty)
	}
	if len(res.Raw) == 0 {
		t.Error("raw response not preserved")
	}

	q, err := url.ParseQuery(gotQuery)
	if err != nil {
		t.Fatalf("parsing sent query: %v", err)
	}
	if q.Get("quantity") != "0.123" {
		t.Errorf("sent quantity = %q, want 0.123", q.Get("quantity"))
	}
	if q.Get("recvWindow") != "10000" {
		t.Errorf("recvWindow = %q, want 10000", q.Get("recvWindow"))
	}
	if q.Get("signature") == "" {
		t.Error("request not signed")
	}
}

func TestCreateOrderMissingOrderIDIsNotPlaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			w.Write([]byte(exchangeInfoBody))
		default:
			w.Write([]byte(`{"symbol": "ETHUSDT", "status": "NEW"}`))
		}
	})

	res, err := c.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol: "ETHUSDT", Side: exchange.SideBuy, Type: exchange.OrderTypeMarket, Quantity: 0.5,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.Placed() {
		t.Error("result without orderId must not count as placed")
	}
}

func TestCreateOrderVenueError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			w.Write([]byte(exchangeInfoBody))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": -2019, "msg": "Margin is insufficient."}`))
		}
	})

	_, err := c.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol: "ETHUSDT", Side: exchange.SideBuy, Type: exchange.OrderTypeMarket, Quantity: 0.5,
	})
	var ve *exchange.VenueError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want VenueError", err)
	}
	if ve.Code != -2019 {
		t.Errorf("code = %d, want -2019", ve.Code)
	}
	if ve.Kind() != exchange.FailureMarginInsufficient {
		t.Errorf("kind = %s, want MARGIN_INSUFFICIENT", ve.Kind())
	}
	if !ve.Kind().Terminal() {
		t.Error("margin failure must be terminal")
	}
}

func TestResolveSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exchangeInfoBody))
	})

	sym, err := c.ResolveSymbol(context.Background(), "eth")
	if err != nil {
		t.Fatalf("ResolveSymbol: %v", err)
	}
	if sym != "ETHUSDT" {
		t.Errorf("symbol = %q, want ETHUSDT", sym)
	}

	// Non-TRADING pairs are unsupported.
	if _, err := c.ResolveSymbol(context.Background(), "OLD"); !errors.Is(err, exchange.ErrSymbolUnsupported) {
		t.Errorf("CLOSE_ONLY pair: err = %v, want ErrSymbolUnsupported", err)
	}

	// Quarterly contracts are excluded from the filter table.
	if _, err := c.ResolveSymbol(context.Background(), "NOPE"); err == nil {
		t.Error("unknown coin: want error")
	}
}

func TestGetSymbolFilters(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(exchangeInfoBody))
	})

	f, err := c.GetSymbolFilters(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("GetSymbolFilters: %v", err)
	}
	if f.StepSize != 0.001 || f.TickSize != 0.01 || f.MinNotional != 20 {
		t.Errorf("filters = %+v, want stepSize 0.001 tickSize 0.01 minNotional 20", f)
	}

	// Second lookup is served from the cache.
	if _, err := c.GetSymbolFilters(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("cached GetSymbolFilters: %v", err)
	}
	if calls != 1 {
		t.Errorf("exchangeInfo calls = %d, want 1", calls)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -2013, "msg": "Order does not exist."}`))
	})

	_, err := c.GetOrder(context.Background(), "ETHUSDT", "123")
	if !errors.Is(err, exchange.ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}
