package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/database"
)

// dedupeTTL bounds the Redis memory spent on seen-signal markers; the
// trades table's unique discord_id is the durable backstop.
const dedupeTTL = 48 * time.Hour

// InboundSignal is one initial signal delivered by the ingress API.
type InboundSignal struct {
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content"`
	Structured string    `json:"structured,omitempty"`
	DiscordID  string    `json:"discord_id,omitempty"`
	Trader     string    `json:"trader,omitempty"`
}

// InboundAlert is one follow-up alert referencing a parent trade.
type InboundAlert struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Trade     string    `json:"trade"` // parent trade discord_id
	DiscordID string    `json:"discord_id,omitempty"`
	Trader    string    `json:"trader,omitempty"`
}

// Dispatcher is the coordinator surface the router drives. Implementations
// serialize per symbol.
type Dispatcher interface {
	OpenTrade(ctx context.Context, trade *database.Trade, parsed *Signal) error
	CloseTrade(ctx context.Context, trade *database.Trade, percent float64, reason string) (json.RawMessage, error)
	MoveStopLoss(ctx context.Context, trade *database.Trade, price float64) (json.RawMessage, error)
	CancelEntry(ctx context.Context, trade *database.Trade) (json.RawMessage, error)
}

// DedupeStore marks signal ids as seen.
type DedupeStore interface {
	FirstSeen(ctx context.Context, discordID string, ttl time.Duration) (bool, error)
}

// Router binds inbound records to trade rows and dispatches lifecycle
// operations.
type Router struct {
	repo       *database.Repository
	dispatcher Dispatcher
	dedupe     DedupeStore
	logger     zerolog.Logger
}

// NewRouter creates a router. dedupe may be nil; the database unique
// constraint still prevents duplicate rows.
func NewRouter(repo *database.Repository, dispatcher Dispatcher, dedupe DedupeStore, logger zerolog.Logger) *Router {
	return &Router{
		repo:       repo,
		dispatcher: dispatcher,
		dedupe:     dedupe,
		logger:     logger.With().Str("component", "signal_router").Logger(),
	}
}

// HandleSignal processes one initial signal: bind to the pre-created trade
// row by timestamp (creating one if absent), parse, and dispatch placement.
// Redelivery of the same signal updates the same row and places no second
// order.
func (r *Router) HandleSignal(ctx context.Context, sig InboundSignal) error {
	if sig.DiscordID != "" && r.dedupe != nil {
		first, err := r.dedupe.FirstSeen(ctx, sig.DiscordID, dedupeTTL)
		if err != nil {
			r.logger.Warn().Err(err).Msg("dedupe store unavailable")
		} else if !first {
			r.logger.Info().Str("discord_id", sig.DiscordID).Msg("duplicate signal ignored")
			return nil
		}
	}

	trade, err := r.bindTrade(ctx, sig)
	if err != nil {
		return err
	}
	if trade.Status != database.StatusPending {
		r.logger.Info().Int64("trade_id", trade.ID).Str("status", trade.Status).
			Msg("signal already processed, skipping placement")
		return nil
	}

	parsed, err := ParseStructured(sig.Structured, sig.Content)
	if err != nil {
		r.logger.Error().Err(err).Int64("trade_id", trade.ID).Msg("unparseable signal")
		return r.repo.MarkTradeFailed(ctx, trade.ID, database.StatusFailed,
			fmt.Sprintf("unparseable signal: %v", err))
	}

	blob, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("encoding parsed signal: %w", err)
	}
	trade.ParsedSignal = blob
	trade.CoinSymbol = parsed.CoinSymbol
	trade.SignalType = parsed.PositionType

	r.logger.Info().Int64("trade_id", trade.ID).Str("coin", parsed.CoinSymbol).
		Str("direction", parsed.PositionType).Str("order_type", parsed.OrderType).
		Msg("dispatching signal")
	return r.dispatcher.OpenTrade(ctx, trade, parsed)
}

// bindTrade finds the trade row pre-created at the signal's timestamp using
// the [t, t+1ms) window, falling back to discord_id, creating a fresh
// PENDING row when neither matches.
func (r *Router) bindTrade(ctx context.Context, sig InboundSignal) (*database.Trade, error) {
	ts := NormalizeTimestamp(sig.Timestamp)
	trade, err := r.repo.GetTradeByTimestampRange(ctx, ts, ts.Add(time.Millisecond))
	if err == nil {
		return trade, nil
	}
	if !errors.Is(err, database.ErrTradeNotFound) {
		return nil, err
	}

	if sig.DiscordID != "" {
		trade, err = r.repo.GetTradeByDiscordID(ctx, sig.DiscordID)
		if err == nil {
			return trade, nil
		}
		if !errors.Is(err, database.ErrTradeNotFound) {
			return nil, err
		}
	}

	fresh := &database.Trade{
		DiscordID: sig.DiscordID,
		Timestamp: ts,
		Status:    database.StatusPending,
	}
	id, err := r.repo.CreateTrade(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("creating trade row: %w", err)
	}
	fresh.ID = id
	return fresh, nil
}

// HandleAlert processes one follow-up alert: record it, bind the parent,
// classify, and dispatch. Alerts on dead parents are acknowledged and
// skipped.
func (r *Router) HandleAlert(ctx context.Context, in InboundAlert) error {
	row := &database.Alert{
		Timestamp: NormalizeTimestamp(in.Timestamp),
		DiscordID: in.DiscordID,
		Trade:     in.Trade,
		Content:   in.Content,
		Trader:    in.Trader,
	}
	alertID, err := r.repo.CreateAlert(ctx, row)
	if err != nil {
		return err
	}

	parsed := Classify(in.Content)
	parsedBlob, _ := json.Marshal(parsed)

	parent, err := r.repo.GetTradeByDiscordID(ctx, in.Trade)
	if err != nil {
		if errors.Is(err, database.ErrTradeNotFound) {
			r.logger.Warn().Str("trade", in.Trade).Msg("alert references unknown trade")
			return r.repo.UpdateAlertOutcome(ctx, alertID, parsedBlob,
				outcome("skipped - parent trade not found"))
		}
		return err
	}

	if deadForAlerts(parent.Status) {
		r.logger.Info().Int64("trade_id", parent.ID).Str("status", parent.Status).
			Str("action", string(parsed.Action)).Msg("alert skipped, no open position")
		return r.repo.UpdateAlertOutcome(ctx, alertID, parsedBlob,
			outcome("skipped - no open position"))
	}

	resp, actErr := r.applyAction(ctx, parent, parsed)
	if actErr != nil {
		r.logger.Error().Err(actErr).Int64("trade_id", parent.ID).
			Str("action", string(parsed.Action)).Msg("alert action failed")
		resp = outcome(actErr.Error())
	}
	if resp == nil {
		resp = outcome("ok")
	}
	if err := r.repo.UpdateAlertOutcome(ctx, alertID, parsedBlob, resp); err != nil {
		return err
	}
	return actErr
}

func (r *Router) applyAction(ctx context.Context, trade *database.Trade, parsed ParsedAlert) (json.RawMessage, error) {
	switch parsed.Action {
	case ActionStopLossHit:
		return r.dispatcher.CloseTrade(ctx, trade, 100, "stop loss hit")
	case ActionPositionClosed:
		return r.dispatcher.CloseTrade(ctx, trade, 100, "position closed")
	case ActionTakeProfit1:
		return r.dispatcher.CloseTrade(ctx, trade, 50, "tp1")
	case ActionTakeProfit2:
		return r.dispatcher.CloseTrade(ctx, trade, 100, "tp2")
	case ActionTP1AndBreakEven:
		resp, err := r.dispatcher.CloseTrade(ctx, trade, 50, "tp1")
		if err != nil {
			return resp, err
		}
		return r.dispatcher.MoveStopLoss(ctx, trade, 0)
	case ActionStopLossUpdate:
		return r.dispatcher.MoveStopLoss(ctx, trade, parsed.Price)
	case ActionOrderCancelled:
		return r.dispatcher.CancelEntry(ctx, trade)
	case ActionLimitOrderFilled, ActionLimitOrderNotFilled:
		// Acknowledgements; the stream and status sync own these transitions.
		return outcome("acknowledged"), nil
	default:
		return outcome("unrecognized alert content"), nil
	}
}

// deadForAlerts reports whether an alert on this parent is skipped outright.
// CLOSED is deliberately absent: close actions on a CLOSED parent still reach
// the dispatcher, which records "position already closed" on the alert.
func deadForAlerts(status string) bool {
	switch status {
	case database.StatusFailed, database.StatusUnfilled, database.StatusCanceled, database.StatusExpired:
		return true
	}
	return false
}

func outcome(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"result": msg})
	return b
}

// NormalizeTimestamp truncates to millisecond precision and converts to UTC,
// matching the external row-creation convention so the [t, t+1ms) window
// lands on the right row.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// ParseTimestamp accepts ISO-8601 with or without a trailing Z.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeTimestamp(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
