package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// stubClient implements only what the cache touches; embedding the interface
// covers the rest.
type stubClient struct {
	exchange.Client
	name  string
	price float64
	err   error
	calls int
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func TestMarkPriceCaches(t *testing.T) {
	client := &stubClient{name: "binance", price: 2500}
	c := NewCache(time.Minute)

	for i := 0; i < 3; i++ {
		p, err := c.MarkPrice(context.Background(), client, "ETHUSDT")
		if err != nil {
			t.Fatalf("MarkPrice: %v", err)
		}
		if p != 2500 {
			t.Errorf("price = %v, want 2500", p)
		}
	}
	if client.calls != 1 {
		t.Errorf("venue calls = %d, want 1", client.calls)
	}
}

func TestMarkPriceServesStaleOnError(t *testing.T) {
	client := &stubClient{name: "binance", price: 2500}
	c := NewCache(time.Nanosecond) // every lookup is stale

	if _, err := c.MarkPrice(context.Background(), client, "ETHUSDT"); err != nil {
		t.Fatalf("MarkPrice: %v", err)
	}

	client.err = errors.New("venue down")
	p, err := c.MarkPrice(context.Background(), client, "ETHUSDT")
	if err != nil {
		t.Fatalf("MarkPrice with stale entry: %v", err)
	}
	if p != 2500 {
		t.Errorf("stale price = %v, want 2500", p)
	}

	// No entry at all propagates the error.
	if _, err := c.MarkPrice(context.Background(), client, "BTCUSDT"); err == nil {
		t.Error("miss with failing venue: want error")
	}
}

func TestMarkPriceKeyedByVenue(t *testing.T) {
	binance := &stubClient{name: "binance", price: 100}
	kucoin := &stubClient{name: "kucoin", price: 101}
	c := NewCache(time.Minute)

	pb, _ := c.MarkPrice(context.Background(), binance, "ETHUSDT")
	pk, _ := c.MarkPrice(context.Background(), kucoin, "ETHUSDT")
	if pb == pk {
		t.Error("venues must not share cache entries")
	}
}

func TestInvalidate(t *testing.T) {
	client := &stubClient{name: "binance", price: 100}
	c := NewCache(time.Minute)

	if _, err := c.MarkPrice(context.Background(), client, "ETHUSDT"); err != nil {
		t.Fatalf("MarkPrice: %v", err)
	}
	c.Invalidate(client, "ETHUSDT")
	if _, err := c.MarkPrice(context.Background(), client, "ETHUSDT"); err != nil {
		t.Fatalf("MarkPrice after invalidate: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("venue calls = %d, want 2 after invalidate", client.calls)
	}
}
