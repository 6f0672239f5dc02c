package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

const filterTTL = time.Hour

// filterCache holds per-symbol trading constraints parsed from exchangeInfo.
// The whole table is refreshed lazily when a lookup finds a stale or missing
// entry; exchangeInfo is a heavy endpoint so one fetch serves all symbols.
type filterCache struct {
	client *Client

	mu        sync.RWMutex
	filters   map[string]*exchange.SymbolFilters
	fetchedAt time.Time
}

func newFilterCache(c *Client) *filterCache {
	return &filterCache{
		client:  c,
		filters: make(map[string]*exchange.SymbolFilters),
	}
}

func (fc *filterCache) get(ctx context.Context, symbol string) (*exchange.SymbolFilters, error) {
	fc.mu.RLock()
	f, ok := fc.filters[symbol]
	fresh := time.Since(fc.fetchedAt) < filterTTL
	fc.mu.RUnlock()

	if ok && fresh {
		return f, nil
	}
	if err := fc.refresh(ctx); err != nil {
		// A stale entry is better than failing the order outright.
		if ok {
			return f, nil
		}
		return nil, err
	}

	fc.mu.RLock()
	defer fc.mu.RUnlock()
	f, ok = fc.filters[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, exchange.ErrSymbolUnsupported)
	}
	return f, nil
}

func (fc *filterCache) refresh(ctx context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	// Another caller may have refreshed while this one waited on the lock.
	if time.Since(fc.fetchedAt) < filterTTL && len(fc.filters) > 0 {
		return nil
	}

	info, err := fc.client.exchangeInfo(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	table := make(map[string]*exchange.SymbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset != "USDT" || s.ContractType != "PERPETUAL" {
			continue
		}
		f := &exchange.SymbolFilters{
			Symbol:    s.Symbol,
			Status:    s.Status,
			FetchedAt: now,
		}
		for _, filter := range s.Filters {
			switch filter.FilterType {
			case "LOT_SIZE":
				f.StepSize = filter.StepSize
				f.MinQty = filter.MinQty
				f.MaxQty = filter.MaxQty
			case "PRICE_FILTER":
				f.TickSize = filter.TickSize
				f.MinPrice = filter.MinPrice
				f.MaxPrice = filter.MaxPrice
			case "MIN_NOTIONAL":
				f.MinNotional = filter.MinNotional
			}
		}
		table[s.Symbol] = f
	}

	fc.filters = table
	fc.fetchedAt = now
	fc.client.logger.Debug().Int("symbols", len(table)).Msg("symbol filters refreshed")
	return nil
}
