// Package ingestor applies user-data stream execution reports to trade
// rows. Events are applied strictly in arrival order; the bounded queue
// exerts back-pressure on the stream reader when persistence lags.
package ingestor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/binance"
	"github.com/BrianElionDev/BuyBot/internal/database"
	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

// DefaultQueueSize is the back-pressure high-water mark: once this many
// updates are pending the stream reader blocks, the venue eventually
// disconnects, and reconnection triggers a snapshot reconciliation.
const DefaultQueueSize = 256

// TradeStore is the slice of the repository the ingestor writes through.
type TradeStore interface {
	GetTradeByExchangeOrderID(ctx context.Context, orderID string) (*database.Trade, error)
	SetLatestVenuePayload(ctx context.Context, id int64, payload json.RawMessage) error
	UpdateTradeStatus(ctx context.Context, id int64, status string) error
	UpdateTradeFill(ctx context.Context, id int64, status string, entryPrice, positionSize float64) error
	UpdateTradeExit(ctx context.Context, id int64, exitPrice, pnlUSD float64) error
	SetCreatedAt(ctx context.Context, id int64, at time.Time) (bool, error)
	SetClosedAt(ctx context.Context, id int64, at time.Time) (bool, error)
}

// Ingestor consumes order updates from the user-data stream.
type Ingestor struct {
	repo   TradeStore
	queue  chan binance.OrderUpdate
	logger zerolog.Logger

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex

	applied int64
	dropped int64
}

// New creates an ingestor with the given queue size (0 = DefaultQueueSize).
func New(repo TradeStore, queueSize int, logger zerolog.Logger) *Ingestor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Ingestor{
		repo:   repo,
		queue:  make(chan binance.OrderUpdate, queueSize),
		logger: logger.With().Str("component", "event_ingestor").Logger(),
	}
}

// Start launches the apply worker.
func (i *Ingestor) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return
	}
	i.started = true

	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel
	i.wg.Add(1)
	go i.run(ctx)
}

// Stop cancels the worker after the in-flight row update completes.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	if !i.started {
		i.mu.Unlock()
		return
	}
	i.started = false
	i.cancel()
	i.mu.Unlock()
	i.wg.Wait()
}

// Handle enqueues one stream event. It blocks when the queue is full, which
// stops the websocket read loop and lets the venue apply its own
// back-pressure.
func (i *Ingestor) Handle(u binance.OrderUpdate) {
	i.queue <- u
}

// Stats reports applied and unmatched event counts for the health endpoint.
func (i *Ingestor) Stats() (applied, unmatched int64, pending int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.applied, i.dropped, len(i.queue)
}

func (i *Ingestor) run(ctx context.Context) {
	defer i.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-i.queue:
			// The update in hand completes even during shutdown.
			applyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			i.apply(applyCtx, u)
			cancel()
		}
	}
}

// apply maps one execution report onto a trade-row transition.
func (i *Ingestor) apply(ctx context.Context, u binance.OrderUpdate) {
	if u.OrderID == "" {
		return
	}
	log := i.logger.With().Str("order_id", u.OrderID).Str("symbol", u.Symbol).
		Str("status", u.OrderStatus).Logger()

	trade, err := i.repo.GetTradeByExchangeOrderID(ctx, u.OrderID)
	if err != nil {
		if errors.Is(err, database.ErrTradeNotFound) {
			i.mu.Lock()
			i.dropped++
			i.mu.Unlock()
			log.Debug().Msg("event matches no trade")
			return
		}
		log.Error().Err(err).Msg("trade lookup failed")
		return
	}
	log = log.With().Int64("trade_id", trade.ID).Logger()

	if err := i.repo.SetLatestVenuePayload(ctx, trade.ID, u.Raw); err != nil {
		log.Error().Err(err).Msg("storing event payload")
	}

	isExit := u.ReduceOnly || isExitSide(trade.SignalType, u.Side)

	switch u.OrderStatus {
	case exchange.StatusFilled, exchange.StatusPartiallyFilled:
		if isExit {
			i.applyExitFill(ctx, log, trade, u)
		} else {
			i.applyEntryFill(ctx, log, trade, u)
		}

	case exchange.StatusCanceled, exchange.StatusExpired:
		if u.FilledQty > 0 {
			// A cancel after partial fills leaves a live position; the
			// status sync and audit own the remainder.
			log.Info().Float64("filled", u.FilledQty).Msg("order canceled after partial fill")
			break
		}
		if isExit {
			// A dead protective order does not change the trade.
			break
		}
		status := database.StatusCanceled
		if u.OrderStatus == exchange.StatusExpired {
			status = database.StatusExpired
		}
		if err := i.repo.UpdateTradeStatus(ctx, trade.ID, status); err != nil {
			log.Error().Err(err).Msg("applying cancel")
		}

	case exchange.StatusRejected:
		log.Warn().Msg("order rejected on stream")
	}

	i.mu.Lock()
	i.applied++
	i.mu.Unlock()
}

func (i *Ingestor) applyEntryFill(ctx context.Context, log zerolog.Logger, trade *database.Trade, u binance.OrderUpdate) {
	if u.FilledQty <= 0 {
		return
	}
	// First fill starts the position clock; the CAS keeps redelivered
	// events from moving it.
	if set, err := i.repo.SetCreatedAt(ctx, trade.ID, u.EventTime.UTC()); err != nil {
		log.Error().Err(err).Msg("setting created_at")
	} else if set {
		log.Info().Time("created_at", u.EventTime).Msg("position opened")
	}

	entry := u.AvgPrice
	if entry == 0 {
		entry = u.LastPrice
	}
	if err := i.repo.UpdateTradeFill(ctx, trade.ID, database.StatusOpen, entry, u.FilledQty); err != nil {
		log.Error().Err(err).Msg("applying entry fill")
	}
}

func (i *Ingestor) applyExitFill(ctx context.Context, log zerolog.Logger, trade *database.Trade, u binance.OrderUpdate) {
	if u.OrderStatus != exchange.StatusFilled {
		return
	}
	exitPrice := u.AvgPrice
	if exitPrice == 0 {
		exitPrice = u.LastPrice
	}

	remaining := trade.PositionSize - u.FilledQty
	fullClose := remaining <= 1e-9 || math.Abs(remaining) < trade.PositionSize*1e-6

	if fullClose {
		if err := i.repo.UpdateTradeExit(ctx, trade.ID, exitPrice, u.RealizedPnl); err != nil {
			log.Error().Err(err).Msg("recording exit")
		}
		if set, err := i.repo.SetClosedAt(ctx, trade.ID, u.EventTime.UTC()); err != nil {
			log.Error().Err(err).Msg("setting closed_at")
		} else if set {
			log.Info().Float64("exit", exitPrice).Float64("pnl", u.RealizedPnl).Msg("position closed")
		}
		return
	}

	entry := trade.BinanceEntryPrice
	if err := i.repo.UpdateTradeFill(ctx, trade.ID, database.StatusPartiallyClosed, entry, remaining); err != nil {
		log.Error().Err(err).Msg("applying partial exit")
	}
}

// isExitSide reports whether an order side reduces a position of the given
// direction: sells exit longs, buys exit shorts.
func isExitSide(positionType, side string) bool {
	if positionType == database.PositionShort {
		return side == exchange.SideBuy
	}
	return side == exchange.SideSell
}
