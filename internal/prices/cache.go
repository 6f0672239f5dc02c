// Package prices provides a short-lived mark price cache shared by the
// preflight checks and the audit loop, so bursts of signals for the same
// symbol don't multiply venue requests.
package prices

import (
	"context"
	"sync"
	"time"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// DefaultTTL keeps a price fresh enough for threshold checks without
// hitting the venue on every lookup.
const DefaultTTL = 5 * time.Second

type entry struct {
	price     float64
	fetchedAt time.Time
}

// Cache caches mark prices per venue and symbol.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry
}

// NewCache creates a cache with the given TTL; zero means DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: make(map[string]entry)}
}

// MarkPrice returns the cached mark price for a symbol, fetching through the
// client on a miss or stale entry.
func (c *Cache) MarkPrice(ctx context.Context, client exchange.Client, symbol string) (float64, error) {
	key := client.Name() + ":" + symbol

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.price, nil
	}

	price, err := client.GetMarkPrice(ctx, symbol)
	if err != nil {
		// Serve a stale price rather than failing a read-only check; order
		// placement revalidates against the venue anyway.
		if ok {
			return e.price, nil
		}
		return 0, err
	}

	c.mu.Lock()
	c.entries[key] = entry{price: price, fetchedAt: time.Now()}
	c.mu.Unlock()
	return price, nil
}

// Invalidate drops a cached price, used after fills move the market view.
func (c *Cache) Invalidate(client exchange.Client, symbol string) {
	c.mu.Lock()
	delete(c.entries, client.Name()+":"+symbol)
	c.mu.Unlock()
}
