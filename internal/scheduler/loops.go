package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/database"
	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// Loop names, used by the manual-trigger endpoint.
const (
	LoopStatusSync    = "status_sync"
	LoopPnlBackfill   = "pnl_backfill"
	LoopOrphanCleanup = "orphan_cleanup"
	LoopBalanceSync   = "balance_sync"
	LoopPositionAudit = "position_audit"
)

// Intervals configures the loops.
type Intervals struct {
	StatusSync    time.Duration
	PnlBackfill   time.Duration
	OrphanCleanup time.Duration
	BalanceSync   time.Duration
	PositionAudit time.Duration
}

// DefaultIntervals matches the production cadence.
func DefaultIntervals() Intervals {
	return Intervals{
		StatusSync:    24 * time.Minute,
		PnlBackfill:   time.Hour,
		OrphanCleanup: 2 * time.Hour,
		BalanceSync:   5 * time.Minute,
		PositionAudit: 5 * time.Minute,
	}
}

const (
	statusSyncMaxAge  = 120 * time.Hour
	statusSyncSpacing = time.Second // 1 req/s against the order endpoint
	pnlBatchSize      = 50
	pnlWindowSlack    = 5 * time.Minute
	auditThreshold    = 0.8
)

// Syncer implements the loop bodies for one venue.
type Syncer struct {
	client exchange.Client
	repo   *database.Repository
	logger zerolog.Logger
}

// NewSyncer wires a syncer.
func NewSyncer(client exchange.Client, repo *database.Repository, logger zerolog.Logger) *Syncer {
	return &Syncer{
		client: client,
		repo:   repo,
		logger: logger.With().Str("component", "syncer").Str("venue", client.Name()).Logger(),
	}
}

// Loops builds the five reconciliation loops.
func (s *Syncer) Loops(iv Intervals) []*Loop {
	return []*Loop{
		{Name: LoopStatusSync, Interval: iv.StatusSync, Fn: s.SyncStatuses},
		{Name: LoopPnlBackfill, Interval: iv.PnlBackfill, Fn: s.BackfillPnl},
		{Name: LoopOrphanCleanup, Interval: iv.OrphanCleanup, Fn: s.CleanupOrphans},
		{Name: LoopBalanceSync, Interval: iv.BalanceSync, Fn: s.SyncBalances},
		{Name: LoopPositionAudit, Interval: iv.PositionAudit, Fn: s.AuditPositions},
	}
}

// SyncStatuses probes venue order status for every non-terminal trade with
// an order id, repairing drift the stream missed. Probe failures only bump
// sync_error_count; they never flip a trade to a terminal failure.
func (s *Syncer) SyncStatuses(ctx context.Context) error {
	trades, err := s.repo.GetTradesByStatus(ctx,
		database.StatusPending, database.StatusOpen, database.StatusPartiallyClosed)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-statusSyncMaxAge)

	for _, trade := range trades {
		if trade.ExchangeOrderID == "" || trade.Timestamp.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.syncOne(ctx, trade)

		select {
		case <-time.After(statusSyncSpacing):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Syncer) syncOne(ctx context.Context, trade *database.Trade) {
	log := s.logger.With().Int64("trade_id", trade.ID).Str("order_id", trade.ExchangeOrderID).Logger()

	symbol, err := s.client.ResolveSymbol(ctx, trade.CoinSymbol)
	if err != nil {
		log.Warn().Err(err).Msg("symbol resolution failed during sync")
		return
	}

	status, err := s.client.GetOrder(ctx, symbol, trade.ExchangeOrderID)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderNotFound) {
			// The venue purges filled orders; absence means the order
			// completed earlier than our records show.
			log.Info().Msg("order purged on venue, treating as closed")
			if _, err := s.repo.SetClosedAt(ctx, trade.ID, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("closing purged trade")
			}
			return
		}
		if err := s.repo.IncrementSyncError(ctx, trade.ID, fmt.Sprintf("status probe failed: %v", err)); err != nil {
			log.Error().Err(err).Msg("recording probe failure")
		}
		return
	}

	if err := s.repo.SetOrderStatusResponse(ctx, trade.ID, status.Raw); err != nil {
		log.Error().Err(err).Msg("storing probe payload")
	}

	switch status.Status {
	case exchange.StatusFilled:
		if status.ReduceOnly {
			if err := s.repo.UpdateTradeExit(ctx, trade.ID, status.AvgPrice, 0); err != nil {
				log.Error().Err(err).Msg("recording exit from probe")
			}
			if _, err := s.repo.SetClosedAt(ctx, trade.ID, status.UpdateTime.UTC()); err != nil {
				log.Error().Err(err).Msg("setting closed_at from probe")
			}
			return
		}
		if _, err := s.repo.SetCreatedAt(ctx, trade.ID, status.UpdateTime.UTC()); err != nil {
			log.Error().Err(err).Msg("setting created_at from probe")
		}
		if err := s.repo.UpdateTradeFill(ctx, trade.ID, database.StatusOpen, status.AvgPrice, status.ExecutedQty); err != nil {
			log.Error().Err(err).Msg("applying fill from probe")
		}

	case exchange.StatusCanceled, exchange.StatusExpired:
		if status.ExecutedQty > 0 {
			return
		}
		newStatus := database.StatusCanceled
		if status.Status == exchange.StatusExpired {
			newStatus = database.StatusExpired
		}
		if err := s.repo.UpdateTradeStatus(ctx, trade.ID, newStatus); err != nil {
			log.Error().Err(err).Msg("applying cancel from probe")
		}
	}
}

// BackfillPnl fills exit price and realized PnL for closed trades from the
// venue's own figures. created_at and closed_at are never touched.
func (s *Syncer) BackfillPnl(ctx context.Context) error {
	trades, err := s.repo.GetClosedTradesMissingPnl(ctx, pnlBatchSize)
	if err != nil {
		return err
	}

	for _, trade := range trades {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := s.logger.With().Int64("trade_id", trade.ID).Logger()

		symbol, err := s.client.ResolveSymbol(ctx, trade.CoinSymbol)
		if err != nil {
			log.Warn().Err(err).Msg("symbol resolution failed during backfill")
			continue
		}
		start := trade.CreatedAt.Add(-pnlWindowSlack)
		end := trade.ClosedAt.Add(pnlWindowSlack)

		fills, err := s.client.GetAccountTrades(ctx, symbol, start, end, 1000)
		if err != nil {
			log.Warn().Err(err).Msg("account trades fetch failed")
			continue
		}

		var pnl, notional, qty float64
		for _, f := range fills {
			if f.RealizedPnl == 0 {
				continue
			}
			pnl += f.RealizedPnl
			notional += f.Price * f.Qty
			qty += f.Qty
		}
		if qty == 0 {
			log.Debug().Msg("no realized fills in window")
			continue
		}
		exitPrice := notional / qty
		if err := s.repo.UpdateTradeExit(ctx, trade.ID, exitPrice, pnl); err != nil {
			log.Error().Err(err).Msg("backfilling pnl")
			continue
		}
		log.Info().Float64("pnl", pnl).Float64("exit", exitPrice).Msg("pnl backfilled")
	}
	return nil
}

// CleanupOrphans cancels reduce-only orders on symbols with no live
// position. Orders whose trade rows were merged into a surviving trade are
// left alone.
func (s *Syncer) CleanupOrphans(ctx context.Context) error {
	orders, err := s.client.GetOpenOrders(ctx, "")
	if err != nil {
		return err
	}
	positions, err := s.client.GetPositionRisk(ctx, "")
	if err != nil {
		return err
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		if p.PositionAmt != 0 {
			held[p.Symbol] = true
		}
	}

	canceled := 0
	for _, o := range orders {
		if !o.ReduceOnly || held[o.Symbol] {
			continue
		}
		if trade, err := s.repo.GetTradeByExchangeOrderID(ctx, o.OrderID); err == nil &&
			trade.MergedIntoTradeID != nil {
			continue
		}
		if err := s.client.CancelOrder(ctx, o.Symbol, o.OrderID); err != nil &&
			!errors.Is(err, exchange.ErrOrderNotFound) {
			s.logger.Warn().Err(err).Str("order_id", o.OrderID).Str("symbol", o.Symbol).
				Msg("orphan cancel failed")
			continue
		}
		canceled++
		s.logger.Info().Str("order_id", o.OrderID).Str("symbol", o.Symbol).
			Msg("orphaned reduce-only order canceled")
	}
	if canceled > 0 {
		s.logger.Info().Int("canceled", canceled).Msg("orphan cleanup completed")
	}
	return nil
}

// SyncBalances snapshots per-asset balances and ingests new income events
// into the deduplicated transaction history.
func (s *Syncer) SyncBalances(ctx context.Context) error {
	balances, err := s.client.GetBalances(ctx)
	if err != nil {
		return err
	}
	for _, b := range balances {
		if b.Total == 0 && b.Free == 0 {
			continue
		}
		row := &database.Balance{
			Platform:      s.client.Name(),
			AccountType:   "futures",
			Asset:         b.Asset,
			Free:          b.Free,
			Locked:        b.Locked,
			Total:         b.Total,
			UnrealizedPnl: b.UnrealizedProfit,
		}
		if err := s.repo.UpsertBalance(ctx, row); err != nil {
			return err
		}
	}

	// Income ingestion: resume from the newest stored event, overlapping a
	// little; the tuple primary key swallows the overlap.
	start := time.Now().Add(-24 * time.Hour)
	if latest, err := s.repo.LatestTransactionTime(ctx); err == nil && latest != nil {
		start = latest.Add(-time.Minute)
	}
	income, err := s.client.GetIncome(ctx, "", start, time.Now(), 1000)
	if err != nil {
		s.logger.Warn().Err(err).Msg("income fetch failed")
		return nil
	}
	txs := make([]database.Transaction, 0, len(income))
	for _, in := range income {
		txs = append(txs, database.Transaction{
			Time:   in.Time,
			Type:   in.Type,
			Amount: in.Amount,
			Asset:  in.Asset,
			Symbol: in.Symbol,
		})
	}
	inserted, err := s.repo.InsertTransactions(ctx, txs)
	if err != nil {
		return err
	}
	if inserted > 0 {
		s.logger.Info().Int("inserted", inserted).Msg("income events ingested")
	}
	return nil
}

// AuditPositions verifies every open venue position has a matching local
// trade. Confidence: symbol 0.5, side 0.3, size proximity 0.2; below the
// threshold the best candidate is flagged for manual verification.
func (s *Syncer) AuditPositions(ctx context.Context) error {
	positions, err := s.client.GetPositionRisk(ctx, "")
	if err != nil {
		return err
	}

	for _, pos := range positions {
		if pos.PositionAmt == 0 {
			continue
		}
		coin := baseCoin(pos.Symbol)
		candidates, err := s.repo.GetLiveTradesForSymbol(ctx, coin)
		if err != nil {
			return err
		}

		best := 0.0
		var bestTrade *database.Trade
		for _, t := range candidates {
			score := 0.5 // symbol already matched by the query
			if sideMatches(t.SignalType, pos.PositionAmt) {
				score += 0.3
			}
			if t.PositionSize > 0 {
				diff := math.Abs(math.Abs(pos.PositionAmt)-t.PositionSize) / math.Abs(pos.PositionAmt)
				if diff <= 0.05 {
					score += 0.2
				}
			}
			if score > best {
				best = score
				bestTrade = t
			}
		}

		if best >= auditThreshold {
			continue
		}
		if bestTrade != nil {
			s.logger.Warn().Str("symbol", pos.Symbol).Int64("trade_id", bestTrade.ID).
				Float64("confidence", best).Msg("position match below threshold, flagging")
			if err := s.repo.SetManualVerification(ctx, bestTrade.ID, true); err != nil {
				return err
			}
		} else {
			s.logger.Error().Str("symbol", pos.Symbol).Float64("amt", pos.PositionAmt).
				Msg("venue position with no local trade")
		}
	}
	return nil
}

func sideMatches(signalType string, positionAmt float64) bool {
	if signalType == database.PositionShort {
		return positionAmt < 0
	}
	return positionAmt > 0
}

// baseCoin strips the venue pair suffix back to the coin symbol.
func baseCoin(symbol string) string {
	s := strings.TrimSuffix(symbol, "USDTM")
	s = strings.TrimSuffix(s, "USDT")
	if s == "XBT" {
		return "BTC"
	}
	return s
}
