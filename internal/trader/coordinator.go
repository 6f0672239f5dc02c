// Package trader implements the trade coordinator: open, close, and
// stop-loss primitives with preflight checks, serialized per symbol, plus
// the position manager resolving conflicts between trades on one symbol.
package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/BrianElionDev/BuyBot/internal/database"
	"github.com/BrianElionDev/BuyBot/internal/exchange"
	"github.com/BrianElionDev/BuyBot/internal/fees"
	"github.com/BrianElionDev/BuyBot/internal/prices"
	"github.com/BrianElionDev/BuyBot/internal/signals"
)

// Config carries the coordinator's tunables.
type Config struct {
	TradeAmount    float64 // quote units per trade
	MinTradeAmount float64
	MaxTradeAmount float64
	Leverage       int

	PriceThreshold    float64 // fraction, e.g. 0.02
	MemecoinThreshold float64
	MemecoinSymbols   []string

	TradeCooldown    time.Duration // per-symbol, no open position
	PositionCooldown time.Duration // per-symbol, open position exists

	SameSidePolicy    string
	OppositePolicy    string
	MaxPositionTrades int
}

// CooldownStore gates repeat attempts per symbol.
type CooldownStore interface {
	StartCooldown(ctx context.Context, symbol string, d time.Duration) error
	CooldownRemaining(ctx context.Context, symbol string) time.Duration
}

// Coordinator executes trade lifecycle operations against one venue.
// All mutating operations for a symbol are funneled through the mailbox, so
// open/close/update on the same symbol never interleave.
type Coordinator struct {
	client    exchange.Client
	repo      *database.Repository
	prices    *prices.Cache
	fees      *fees.Calculator
	cooldowns CooldownStore
	posman    *PositionManager
	mailbox   *Mailbox
	cfg       Config
	logger    zerolog.Logger
}

// NewCoordinator wires the coordinator. cooldowns may be nil (no gating).
func NewCoordinator(client exchange.Client, repo *database.Repository, priceCache *prices.Cache,
	feeCalc *fees.Calculator, cooldowns CooldownStore, cfg Config, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		client:    client,
		repo:      repo,
		prices:    priceCache,
		fees:      feeCalc,
		cooldowns: cooldowns,
		posman:    NewPositionManager(repo, cfg.SameSidePolicy, cfg.OppositePolicy, cfg.MaxPositionTrades, logger),
		mailbox:   NewMailbox(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "trade_coordinator").Logger(),
	}
}

// Close drains the per-symbol lanes.
func (c *Coordinator) Close() { c.mailbox.Close() }

// OpenTrade runs the full placement preflight and submits the entry order.
func (c *Coordinator) OpenTrade(ctx context.Context, trade *database.Trade, parsed *signals.Signal) error {
	return c.mailbox.Do(ctx, parsed.CoinSymbol, func(ctx context.Context) error {
		return c.openLocked(ctx, trade, parsed)
	})
}

func (c *Coordinator) openLocked(ctx context.Context, trade *database.Trade, parsed *signals.Signal) error {
	log := c.logger.With().Int64("trade_id", trade.ID).Str("coin", parsed.CoinSymbol).Logger()

	// 1. Cooldown gate. Every attempt opens a fresh window, rejected or not.
	if c.cooldowns != nil {
		if remaining := c.cooldowns.CooldownRemaining(ctx, parsed.CoinSymbol); remaining > 0 {
			log.Info().Dur("remaining", remaining).Msg("rejected by cooldown")
			return c.fail(ctx, trade, database.StatusFailed,
				fmt.Sprintf("cooldown active for %s (%s remaining)", parsed.CoinSymbol, remaining.Round(time.Second)))
		}
		defer c.startCooldown(parsed.CoinSymbol)
	}

	// 2. Conflict resolution against live trades on the symbol.
	decision, err := c.posman.Resolve(ctx, parsed.CoinSymbol, parsed.PositionType)
	if err != nil {
		return err
	}
	switch decision.Resolution {
	case ResolutionReject:
		return c.fail(ctx, trade, database.StatusFailed, decision.Reason)
	case ResolutionReplace:
		log.Info().Int64("existing", decision.Primary.ID).Msg("closing opposite position before open")
		if _, err := c.closeLocked(ctx, decision.Primary, 100, decision.Reason); err != nil {
			return c.fail(ctx, trade, database.StatusFailed,
				fmt.Sprintf("replace failed closing trade %d: %v", decision.Primary.ID, err))
		}
	}

	// 3. Symbol support.
	symbol, err := c.client.ResolveSymbol(ctx, parsed.CoinSymbol)
	if err != nil {
		if exchange.Classify(err).Terminal() || errors.Is(err, exchange.ErrSymbolUnsupported) {
			return c.fail(ctx, trade, database.StatusFailed,
				fmt.Sprintf("symbol unsupported: %v", err))
		}
		return err
	}

	// 4. Reference price.
	markPrice, err := c.prices.MarkPrice(ctx, c.client, symbol)
	if err != nil {
		return fmt.Errorf("reference price: %w", err)
	}

	// 5. Price proximity gate.
	signalPrice := parsed.EntryPrice()
	if signalPrice > 0 {
		threshold := c.thresholdFor(parsed.CoinSymbol)
		drift := math.Abs(signalPrice-markPrice) / markPrice
		if drift > threshold {
			log.Info().Float64("signal", signalPrice).Float64("mark", markPrice).
				Float64("drift", drift).Msg("rejected by price proximity")
			return c.fail(ctx, trade, database.StatusFailed,
				fmt.Sprintf("price out of range: signal %.8g vs market %.8g (%.2f%% > %.2f%%)",
					signalPrice, markPrice, drift*100, threshold*100))
		}
	}

	// 6. Sizing: quote notional over reference price, scaled by multiplier.
	notional := c.cfg.TradeAmount
	if c.cfg.MinTradeAmount > 0 && notional < c.cfg.MinTradeAmount {
		notional = c.cfg.MinTradeAmount
	}
	if c.cfg.MaxTradeAmount > 0 && notional > c.cfg.MaxTradeAmount {
		notional = c.cfg.MaxTradeAmount
	}
	qty := notional / markPrice
	if parsed.QtyMultiplier > 1 {
		qty *= float64(parsed.QtyMultiplier)
	}

	// 7. Precision clamp against venue filters.
	filters, err := c.client.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return fmt.Errorf("symbol filters: %w", err)
	}
	limitPrice := 0.0
	if parsed.OrderType == exchange.OrderTypeLimit {
		limitPrice = signalPrice
	}
	qQty, qPrice, err := exchange.QuantizeOrder(filters, qty, limitPrice)
	if err != nil {
		return c.fail(ctx, trade, database.StatusFailed, fmt.Sprintf("quantization: %v", err))
	}
	if limitPrice == 0 && filters.MinNotional > 0 && qQty*markPrice < filters.MinNotional {
		return c.fail(ctx, trade, database.StatusFailed,
			fmt.Sprintf("notional %.4f below minimum %.4f", qQty*markPrice, filters.MinNotional))
	}

	// 8. Leverage binding.
	if err := c.client.SetLeverage(ctx, symbol, c.cfg.Leverage); err != nil {
		log.Warn().Err(err).Int("leverage", c.cfg.Leverage).Msg("leverage binding failed, continuing")
	}

	// 9. Fee preview.
	entryRef := markPrice
	if qPrice > 0 {
		entryRef = qPrice
	}
	preview, err := c.fees.Preview(
		decimal.NewFromFloat(qQty).Mul(decimal.NewFromFloat(entryRef)),
		decimal.NewFromFloat(entryRef), parsed.IsLong())
	if err == nil {
		log.Info().Str("total_fee", preview.TotalFee.String()).
			Str("breakeven", preview.Breakeven.String()).Msg("fee preview")
	}

	// 10. Placement. A venue-assigned order id is the sole success
	// criterion; everything after it may fail without undoing the trade.
	side := exchange.SideBuy
	if !parsed.IsLong() {
		side = exchange.SideSell
	}
	result, err := c.client.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     parsed.OrderType,
		Quantity: qQty,
		Price:    qPrice,
	})
	if err != nil {
		kind := exchange.Classify(err)
		if kind.Terminal() {
			return c.fail(ctx, trade, database.StatusFailed,
				fmt.Sprintf("placement rejected (%s): %v", kind, err))
		}
		// Transient: leave the row PENDING for the next delivery or sync.
		log.Error().Err(err).Msg("placement failed transiently")
		if ierr := c.repo.IncrementSyncError(ctx, trade.ID, fmt.Sprintf("transient placement error: %v", err)); ierr != nil {
			log.Error().Err(ierr).Msg("recording placement error")
		}
		return err
	}
	if !result.Placed() {
		return c.fail(ctx, trade, database.StatusFailed, "venue response carried no order id")
	}
	log.Info().Str("order_id", result.OrderID).Str("symbol", symbol).
		Float64("qty", qQty).Msg("order placed")

	// 11. Persist execution state.
	trade.CoinSymbol = parsed.CoinSymbol
	trade.SignalType = parsed.PositionType
	trade.EntryPrice = signalPrice
	trade.ExchangeOrderID = result.OrderID
	trade.BinanceResponse = result.Raw
	trade.PositionSize = qQty

	now := time.Now().UTC()
	switch {
	case parsed.OrderType == exchange.OrderTypeMarket && result.ExecutedQty > 0:
		trade.Status = database.StatusOpen
		trade.BinanceEntryPrice = result.AvgPrice
		trade.PositionSize = result.ExecutedQty
	case parsed.OrderType == exchange.OrderTypeMarket:
		trade.Status = database.StatusUnfilled
	default:
		// LIMIT rests on the book; the fill event flips it to OPEN.
		trade.Status = database.StatusPending
	}

	// 12. Protective orders. Failures never undo a successful placement.
	tpsl := c.installProtectiveOrders(ctx, trade, parsed, symbol, filters, qQty)
	trade.TPSLOrders = tpsl

	if err := c.repo.UpdateTradeExecution(ctx, trade); err != nil {
		return fmt.Errorf("persisting execution: %w", err)
	}
	if trade.Status == database.StatusOpen {
		if _, err := c.repo.SetCreatedAt(ctx, trade.ID, now); err != nil {
			log.Error().Err(err).Msg("setting created_at")
		}
	}

	// 13. Merge bookkeeping.
	if decision.Resolution == ResolutionMerge && decision.Primary != nil {
		c.recordMerge(ctx, decision.Primary, trade, decision.Reason)
	}
	return nil
}

// installProtectiveOrders tries the venue's position-mode TP/SL first and
// falls back to separate reduce-only stop orders. TP1 takes half the
// position, TP2 the rest.
func (c *Coordinator) installProtectiveOrders(ctx context.Context, trade *database.Trade,
	parsed *signals.Signal, symbol string, filters *exchange.SymbolFilters, qty float64) []database.TPSLOrder {

	if parsed.StopLoss <= 0 && len(parsed.TakeProfits) == 0 {
		return nil
	}
	log := c.logger.With().Int64("trade_id", trade.ID).Str("symbol", symbol).Logger()

	if err := c.client.SetPositionTPSLMode(ctx, symbol, true); err != nil &&
		!errors.Is(err, exchange.ErrTPSLModeUnsupported) {
		log.Debug().Err(err).Msg("position TP/SL mode unavailable")
	}

	exitSide := exchange.SideSell
	if !parsed.IsLong() {
		exitSide = exchange.SideBuy
	}

	var installed []database.TPSLOrder
	if parsed.StopLoss > 0 {
		res, err := c.client.CreateOrder(ctx, exchange.OrderRequest{
			Symbol:        symbol,
			Side:          exitSide,
			Type:          exchange.OrderTypeStopMarket,
			StopPrice:     parsed.StopLoss,
			Quantity:      qty,
			ClosePosition: true,
			ReduceOnly:    true,
		})
		if err != nil || !res.Placed() {
			log.Warn().Err(err).Float64("price", parsed.StopLoss).Msg("stop loss placement failed")
			c.recordIssue(ctx, trade.ID, fmt.Sprintf("stop loss placement failed: %v", err))
		} else {
			installed = append(installed, database.TPSLOrder{
				OrderID: res.OrderID, Kind: "SL", TriggerPrice: parsed.StopLoss,
			})
		}
	}

	remaining := qty
	for i, tp := range parsed.TakeProfits {
		tpQty := remaining
		if i < len(parsed.TakeProfits)-1 {
			tpQty = exchange.FloorToStep(qty/2, filters.StepSize)
		}
		res, err := c.client.CreateOrder(ctx, exchange.OrderRequest{
			Symbol:     symbol,
			Side:       exitSide,
			Type:       exchange.OrderTypeTakeProfitMarket,
			StopPrice:  tp,
			Quantity:   tpQty,
			ReduceOnly: true,
		})
		if err != nil || !res.Placed() {
			log.Warn().Err(err).Float64("price", tp).Msg("take profit placement failed")
			c.recordIssue(ctx, trade.ID, fmt.Sprintf("tp%d placement failed: %v", i+1, err))
			continue
		}
		installed = append(installed, database.TPSLOrder{
			OrderID: res.OrderID, Kind: "TP", TriggerPrice: tp, Level: i + 1,
		})
		remaining -= tpQty
	}
	return installed
}

// CloseTrade closes percent of the trade's live position at market.
func (c *Coordinator) CloseTrade(ctx context.Context, trade *database.Trade, percent float64, reason string) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.mailbox.Do(ctx, trade.CoinSymbol, func(ctx context.Context) error {
		var err error
		resp, err = c.closeLocked(ctx, trade, percent, reason)
		return err
	})
	return resp, err
}

func (c *Coordinator) closeLocked(ctx context.Context, trade *database.Trade, percent float64, reason string) (json.RawMessage, error) {
	if percent <= 0 || percent > 100 {
		return nil, fmt.Errorf("invalid close percent %v", percent)
	}
	log := c.logger.With().Int64("trade_id", trade.ID).Str("coin", trade.CoinSymbol).Logger()

	symbol, err := c.client.ResolveSymbol(ctx, trade.CoinSymbol)
	if err != nil {
		return nil, err
	}

	pos, err := c.livePosition(ctx, symbol, trade.SignalType)
	if err != nil && !errors.Is(err, exchange.ErrNoPosition) {
		return nil, err
	}
	if pos == nil || pos.PositionAmt == 0 {
		log.Info().Str("reason", reason).Msg("position already closed on venue")
		if _, err := c.repo.SetClosedAt(ctx, trade.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"error":"position already closed"}`), nil
	}

	size := math.Abs(pos.PositionAmt)
	filters, err := c.client.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return nil, err
	}
	closeQty := exchange.FloorToStep(size*percent/100, filters.StepSize)
	if closeQty <= 0 {
		return nil, fmt.Errorf("close quantity rounds to zero (size %v, percent %v)", size, percent)
	}
	fullClose := closeQty >= size-filters.StepSize/2

	side := exchange.SideSell
	if pos.PositionAmt < 0 {
		side = exchange.SideBuy
	}
	result, err := c.client.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       exchange.OrderTypeMarket,
		Quantity:   closeQty,
		ReduceOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("close order: %w", err)
	}
	if !result.Placed() {
		return nil, fmt.Errorf("close order response carried no order id")
	}
	log.Info().Str("order_id", result.OrderID).Float64("qty", closeQty).
		Bool("full", fullClose).Str("reason", reason).Msg("close order placed")

	exitPrice := result.AvgPrice
	if exitPrice == 0 {
		exitPrice = pos.MarkPrice
	}

	if fullClose {
		pnl := c.estimatePnl(trade, exitPrice, size)
		if err := c.repo.UpdateTradeExit(ctx, trade.ID, exitPrice, pnl); err != nil {
			return result.Raw, err
		}
		if _, err := c.repo.SetClosedAt(ctx, trade.ID, time.Now().UTC()); err != nil {
			return result.Raw, err
		}
		// Entry orders or protective remnants left on the book are orphans
		// once the position is gone.
		if err := c.client.CancelAllOrders(ctx, symbol); err != nil {
			log.Warn().Err(err).Msg("cleanup cancel failed")
		}
	} else {
		remainder := size - closeQty
		entry := trade.BinanceEntryPrice
		if entry == 0 {
			entry = pos.EntryPrice
		}
		if err := c.repo.UpdateTradeFill(ctx, trade.ID, database.StatusPartiallyClosed, entry, remainder); err != nil {
			return result.Raw, err
		}
	}
	return result.Raw, nil
}

// MoveStopLoss replaces all protective stop orders with a single SL at
// price; price zero means the effective entry (breakeven).
func (c *Coordinator) MoveStopLoss(ctx context.Context, trade *database.Trade, price float64) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.mailbox.Do(ctx, trade.CoinSymbol, func(ctx context.Context) error {
		var err error
		resp, err = c.moveStopLocked(ctx, trade, price)
		return err
	})
	return resp, err
}

func (c *Coordinator) moveStopLocked(ctx context.Context, trade *database.Trade, price float64) (json.RawMessage, error) {
	log := c.logger.With().Int64("trade_id", trade.ID).Str("coin", trade.CoinSymbol).Logger()

	symbol, err := c.client.ResolveSymbol(ctx, trade.CoinSymbol)
	if err != nil {
		return nil, err
	}
	pos, err := c.livePosition(ctx, symbol, trade.SignalType)
	if err != nil {
		return nil, err
	}

	if price <= 0 {
		price = trade.BinanceEntryPrice
		if price == 0 {
			price = pos.EntryPrice
		}
		if price == 0 {
			return nil, fmt.Errorf("no effective entry known for breakeven stop")
		}
	}

	// The venue has no amendment API: cancel every reduce-only stop, then
	// place the replacement sized to the fresh position.
	kept := make([]database.TPSLOrder, 0, len(trade.TPSLOrders))
	open, err := c.client.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("listing open orders: %w", err)
	}
	for _, o := range open {
		if o.Type != exchange.OrderTypeStopMarket || !isProtective(o) {
			continue
		}
		if err := c.client.CancelOrder(ctx, symbol, o.OrderID); err != nil &&
			!errors.Is(err, exchange.ErrOrderNotFound) {
			return nil, fmt.Errorf("canceling stop %s: %w", o.OrderID, err)
		}
	}
	for _, rec := range trade.TPSLOrders {
		if rec.Kind != "SL" {
			kept = append(kept, rec)
		}
	}

	side := exchange.SideSell
	if pos.PositionAmt < 0 {
		side = exchange.SideBuy
	}
	filters, err := c.client.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return nil, err
	}
	result, err := c.client.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          exchange.OrderTypeStopMarket,
		StopPrice:     exchange.FloorToStep(price, filters.TickSize),
		Quantity:      math.Abs(pos.PositionAmt),
		ClosePosition: true,
		ReduceOnly:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("placing stop loss: %w", err)
	}
	if !result.Placed() {
		return nil, fmt.Errorf("stop loss response carried no order id")
	}

	kept = append(kept, database.TPSLOrder{OrderID: result.OrderID, Kind: "SL", TriggerPrice: price})
	if err := c.repo.UpdateTPSLOrders(ctx, trade.ID, kept); err != nil {
		return result.Raw, err
	}
	log.Info().Str("order_id", result.OrderID).Float64("price", price).Msg("stop loss moved")
	return result.Raw, nil
}

// CancelEntry cancels the resting entry order of a not-yet-filled trade.
func (c *Coordinator) CancelEntry(ctx context.Context, trade *database.Trade) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.mailbox.Do(ctx, trade.CoinSymbol, func(ctx context.Context) error {
		symbol, err := c.client.ResolveSymbol(ctx, trade.CoinSymbol)
		if err != nil {
			return err
		}
		if trade.ExchangeOrderID == "" {
			resp = json.RawMessage(`{"error":"no entry order recorded"}`)
			return nil
		}
		if err := c.client.CancelOrder(ctx, symbol, trade.ExchangeOrderID); err != nil &&
			!errors.Is(err, exchange.ErrOrderNotFound) {
			return fmt.Errorf("canceling entry: %w", err)
		}
		if err := c.repo.UpdateTradeStatus(ctx, trade.ID, database.StatusCanceled); err != nil {
			return err
		}
		resp = json.RawMessage(`{"result":"entry order cancelled"}`)
		return nil
	})
	return resp, err
}

// livePosition finds the venue position for a symbol matching the trade's
// direction.
func (c *Coordinator) livePosition(ctx context.Context, symbol, positionType string) (*exchange.Position, error) {
	positions, err := c.client.GetPositionRisk(ctx, symbol)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		p := &positions[i]
		if p.Symbol != symbol {
			continue
		}
		if positionType == signals.Short && p.PositionAmt < 0 {
			return p, nil
		}
		if positionType != signals.Short && p.PositionAmt > 0 {
			return p, nil
		}
	}
	return nil, exchange.ErrNoPosition
}

// estimatePnl computes directional PnL from entry and exit; the PnL
// backfill loop replaces it with the venue's realized figure when available.
func (c *Coordinator) estimatePnl(trade *database.Trade, exitPrice, size float64) float64 {
	entry := trade.BinanceEntryPrice
	if entry == 0 {
		entry = trade.EntryPrice
	}
	if entry == 0 || exitPrice == 0 {
		return 0
	}
	diff := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(entry))
	if trade.SignalType == signals.Short {
		diff = diff.Neg()
	}
	pnl, _ := diff.Mul(decimal.NewFromFloat(size)).RoundBank(8).Float64()
	return pnl
}

// recordMerge applies the weighted-average entry to the primary and marks
// the secondary merged.
func (c *Coordinator) recordMerge(ctx context.Context, primary, secondary *database.Trade, reason string) {
	log := c.logger.With().Int64("primary", primary.ID).Int64("secondary", secondary.ID).Logger()

	pEntry, pQty := primary.BinanceEntryPrice, primary.PositionSize
	sEntry, sQty := secondary.BinanceEntryPrice, secondary.PositionSize
	if sEntry == 0 {
		sEntry = secondary.EntryPrice
	}
	if pEntry > 0 && pQty > 0 && sEntry > 0 && sQty > 0 {
		weighted, err := fees.WeightedEntry(
			[]decimal.Decimal{decimal.NewFromFloat(pEntry), decimal.NewFromFloat(sEntry)},
			[]decimal.Decimal{decimal.NewFromFloat(pQty), decimal.NewFromFloat(sQty)},
		)
		if err == nil {
			w, _ := weighted.Float64()
			if err := c.repo.UpdateMergedEntry(ctx, primary.ID, w, pQty+sQty); err != nil {
				log.Error().Err(err).Msg("updating merged entry")
			}
		}
	}
	if err := c.repo.MarkMerged(ctx, secondary.ID, primary.ID, reason); err != nil {
		log.Error().Err(err).Msg("marking merge")
	}
}

func (c *Coordinator) thresholdFor(coin string) float64 {
	for _, m := range c.cfg.MemecoinSymbols {
		if strings.EqualFold(m, coin) && c.cfg.MemecoinThreshold > 0 {
			return c.cfg.MemecoinThreshold
		}
	}
	return c.cfg.PriceThreshold
}

// startCooldown opens the post-attempt window, doubled to the position
// cooldown when a live position exists on the symbol.
func (c *Coordinator) startCooldown(coin string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := c.cfg.TradeCooldown
	if live, err := c.repo.GetLiveTradesForSymbol(ctx, coin); err == nil && len(live) > 0 {
		d = c.cfg.PositionCooldown
	}
	if d <= 0 {
		return
	}
	if err := c.cooldowns.StartCooldown(ctx, coin, d); err != nil {
		c.logger.Warn().Err(err).Str("coin", coin).Msg("starting cooldown")
	}
}

func (c *Coordinator) recordIssue(ctx context.Context, tradeID int64, issue string) {
	if err := c.repo.IncrementSyncError(ctx, tradeID, issue); err != nil {
		c.logger.Error().Err(err).Int64("trade_id", tradeID).Msg("recording issue")
	}
}

// fail moves the trade to a terminal preflight failure.
func (c *Coordinator) fail(ctx context.Context, trade *database.Trade, status, reason string) error {
	if err := c.repo.MarkTradeFailed(ctx, trade.ID, status, reason); err != nil {
		return err
	}
	trade.Status = status
	return nil
}

func isProtective(o exchange.OrderStatus) bool {
	return o.ReduceOnly || o.Type == exchange.OrderTypeStopMarket || o.Type == exchange.OrderTypeTakeProfitMarket
}

var _ signals.Dispatcher = (*Coordinator)(nil)
