package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository provides persistence operations on top of DB.
type Repository struct {
	db *DB
}

// NewRepository creates a repository bound to a connection pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// ErrTradeNotFound is returned when a lookup matches no trade row.
var ErrTradeNotFound = errors.New("trade not found")

const tradeColumns = `id, discord_id, timestamp, coin_symbol, parsed_signal, signal_type,
	status, entry_price, binance_entry_price, exit_price, position_size,
	exchange_order_id, original_order_response, binance_response,
	order_status_response, tp_sl_orders, pnl_usd, sync_error_count, sync_issues,
	manual_verification_needed, created_at, closed_at, updated_at,
	merged_into_trade_id, merge_reason, merged_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*Trade, error) {
	var t Trade
	var entryPrice, binanceEntry, positionSize *float64
	var coinSymbol, signalType, exchangeOrderID, mergeReason *string
	var tpsl, syncIssues []byte

	err := row.Scan(
		&t.ID, &t.DiscordID, &t.Timestamp, &coinSymbol, &t.ParsedSignal, &signalType,
		&t.Status, &entryPrice, &binanceEntry, &t.ExitPrice, &positionSize,
		&exchangeOrderID, &t.OriginalOrderResponse, &t.BinanceResponse,
		&t.OrderStatusResponse, &tpsl, &t.PnlUSD, &t.SyncErrorCount, &syncIssues,
		&t.ManualVerification, &t.CreatedAt, &t.ClosedAt, &t.UpdatedAt,
		&t.MergedIntoTradeID, &mergeReason, &t.MergedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("scanning trade: %w", err)
	}

	if coinSymbol != nil {
		t.CoinSymbol = *coinSymbol
	}
	if signalType != nil {
		t.SignalType = *signalType
	}
	if exchangeOrderID != nil {
		t.ExchangeOrderID = *exchangeOrderID
	}
	if mergeReason != nil {
		t.MergeReason = *mergeReason
	}
	if entryPrice != nil {
		t.EntryPrice = *entryPrice
	}
	if binanceEntry != nil {
		t.BinanceEntryPrice = *binanceEntry
	}
	if positionSize != nil {
		t.PositionSize = *positionSize
	}
	if len(tpsl) > 0 {
		if err := json.Unmarshal(tpsl, &t.TPSLOrders); err != nil {
			return nil, fmt.Errorf("decoding tp_sl_orders: %w", err)
		}
	}
	if len(syncIssues) > 0 {
		if err := json.Unmarshal(syncIssues, &t.SyncIssues); err != nil {
			return nil, fmt.Errorf("decoding sync_issues: %w", err)
		}
	}
	return &t, nil
}

// CreateTrade inserts a new trade row and returns its id.
func (r *Repository) CreateTrade(ctx context.Context, t *Trade) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO trades (discord_id, timestamp, coin_symbol, parsed_signal, signal_type, status, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, NOW())
		 RETURNING id`,
		t.DiscordID, t.Timestamp, t.CoinSymbol, t.ParsedSignal, t.SignalType, t.Status, t.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting trade: %w", err)
	}
	return id, nil
}

// GetTradeByID fetches a trade by primary key.
func (r *Repository) GetTradeByID(ctx context.Context, id int64) (*Trade, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	return scanTrade(row)
}

// GetTradeByDiscordID fetches a trade by its external unique id.
func (r *Repository) GetTradeByDiscordID(ctx context.Context, discordID string) (*Trade, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE discord_id = $1`, discordID)
	return scanTrade(row)
}

// GetTradeByTimestampRange fetches the trade whose signal timestamp falls in
// [from, to). Signal ingestion binds initial signals to pre-created rows by a
// one-millisecond window around the signal instant.
func (r *Repository) GetTradeByTimestampRange(ctx context.Context, from, to time.Time) (*Trade, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE timestamp >= $1 AND timestamp < $2 ORDER BY id LIMIT 1`,
		from, to)
	return scanTrade(row)
}

// GetTradeByExchangeOrderID resolves a trade from a venue order id. The
// fallback scans the stored venue payload for ids recorded before the
// exchange_order_id column was populated.
func (r *Repository) GetTradeByExchangeOrderID(ctx context.Context, orderID string) (*Trade, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE exchange_order_id = $1
		    OR binance_response->>'orderId' = $1
		    OR original_order_response->>'orderId' = $1
		 ORDER BY id DESC LIMIT 1`,
		orderID)
	return scanTrade(row)
}

// GetTradesByStatus lists trades in any of the given statuses.
func (r *Repository) GetTradesByStatus(ctx context.Context, statuses ...string) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status = ANY($1) ORDER BY id`, statuses)
	if err != nil {
		return nil, fmt.Errorf("querying trades by status: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetLiveTrades lists OPEN and PARTIALLY_CLOSED trades younger than maxAge.
// Zero maxAge disables the age filter.
func (r *Repository) GetLiveTrades(ctx context.Context, maxAge time.Duration) ([]*Trade, error) {
	if maxAge <= 0 {
		return r.GetTradesByStatus(ctx, StatusOpen, StatusPartiallyClosed)
	}
	cutoff := time.Now().Add(-maxAge)
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE status = ANY($1) AND timestamp >= $2 ORDER BY id`,
		[]string{StatusOpen, StatusPartiallyClosed}, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying live trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetLiveTradesForSymbol lists live trades for one coin symbol, excluding
// rows already merged into another trade.
func (r *Repository) GetLiveTradesForSymbol(ctx context.Context, coinSymbol string) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE coin_symbol = $1 AND status = ANY($2) AND merged_into_trade_id IS NULL
		 ORDER BY id`,
		coinSymbol, []string{StatusOpen, StatusPartiallyClosed})
	if err != nil {
		return nil, fmt.Errorf("querying live trades for symbol: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetClosedTradesMissingPnl lists CLOSED trades with a null pnl_usd or
// exit_price, the backfill loop's work queue.
func (r *Repository) GetClosedTradesMissingPnl(ctx context.Context, limit int) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE status = $1 AND (pnl_usd IS NULL OR exit_price IS NULL)
		   AND created_at IS NOT NULL AND closed_at IS NOT NULL
		 ORDER BY closed_at DESC LIMIT $2`,
		StatusClosed, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades missing pnl: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func collectTrades(rows pgx.Rows) ([]*Trade, error) {
	var trades []*Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// UpdateTradeStatus sets the status. Terminal rows are left untouched so the
// loops can call this idempotently.
func (r *Repository) UpdateTradeStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ($3, $4, $5, $6)`,
		id, status, StatusClosed, StatusFailed, StatusCanceled, StatusExpired)
	if err != nil {
		return fmt.Errorf("updating trade status: %w", err)
	}
	return nil
}

// UpdateTradeExecution records the outcome of a successful placement.
// original_order_response is write-once: the COALESCE keeps the first
// payload and later placements of the same row cannot replace it.
func (r *Repository) UpdateTradeExecution(ctx context.Context, t *Trade) error {
	tpsl, err := json.Marshal(t.TPSLOrders)
	if err != nil {
		return fmt.Errorf("encoding tp_sl_orders: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`UPDATE trades SET
			status = $2,
			coin_symbol = COALESCE(NULLIF($3, ''), coin_symbol),
			signal_type = COALESCE(NULLIF($4, ''), signal_type),
			entry_price = $5,
			binance_entry_price = $6,
			position_size = $7,
			exchange_order_id = NULLIF($8, ''),
			original_order_response = COALESCE(original_order_response, $9),
			binance_response = $9,
			tp_sl_orders = $10,
			parsed_signal = COALESCE($11, parsed_signal),
			updated_at = NOW()
		 WHERE id = $1`,
		t.ID, t.Status, t.CoinSymbol, t.SignalType, t.EntryPrice, t.BinanceEntryPrice,
		t.PositionSize, t.ExchangeOrderID, t.BinanceResponse, tpsl, t.ParsedSignal)
	if err != nil {
		return fmt.Errorf("updating trade execution: %w", err)
	}
	return nil
}

// markTradeFailedSQL appends the failure reason to sync_issues; issues
// recorded by earlier probe failures stay in place.
const markTradeFailedSQL = `UPDATE trades SET
	status = $2,
	sync_issues = COALESCE(sync_issues, '[]'::jsonb) || $3::jsonb,
	updated_at = NOW()
 WHERE id = $1`

// MarkTradeFailed records a preflight or placement failure with its reason.
func (r *Repository) MarkTradeFailed(ctx context.Context, id int64, status, reason string) error {
	issue, _ := json.Marshal(reason)
	_, err := r.db.Pool.Exec(ctx, markTradeFailedSQL, id, status, issue)
	if err != nil {
		return fmt.Errorf("marking trade failed: %w", err)
	}
	return nil
}

// SetCreatedAt sets created_at if and only if it is currently null.
// Returns true when this call performed the write.
func (r *Repository) SetCreatedAt(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET created_at = $2, updated_at = NOW()
		 WHERE id = $1 AND created_at IS NULL`,
		id, at)
	if err != nil {
		return false, fmt.Errorf("setting created_at: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetClosedAt sets closed_at if and only if it is currently null, and forces
// the CLOSED status at the same time so the closed_at ⇒ CLOSED invariant
// cannot be observed broken.
func (r *Repository) SetClosedAt(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET closed_at = $2, status = $3, updated_at = NOW()
		 WHERE id = $1 AND closed_at IS NULL
		   AND (created_at IS NULL OR created_at <= $2)`,
		id, at, StatusClosed)
	if err != nil {
		return false, fmt.Errorf("setting closed_at: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateTradeFill applies a fill observed on the stream or a status probe:
// position size, effective entry, and status.
func (r *Repository) UpdateTradeFill(ctx context.Context, id int64, status string, entryPrice, positionSize float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET status = $2, binance_entry_price = $3, position_size = $4, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ($5, $6, $7, $8)`,
		id, status, entryPrice, positionSize,
		StatusClosed, StatusFailed, StatusCanceled, StatusExpired)
	if err != nil {
		return fmt.Errorf("updating trade fill: %w", err)
	}
	return nil
}

// UpdateTradeExit records the exit price and realized PnL. created_at and
// closed_at are deliberately untouched.
func (r *Repository) UpdateTradeExit(ctx context.Context, id int64, exitPrice, pnlUSD float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET exit_price = $2, pnl_usd = $3, updated_at = NOW() WHERE id = $1`,
		id, exitPrice, pnlUSD)
	if err != nil {
		return fmt.Errorf("updating trade exit: %w", err)
	}
	return nil
}

// UpdateTPSLOrders replaces the recorded protective orders.
func (r *Repository) UpdateTPSLOrders(ctx context.Context, id int64, orders []TPSLOrder) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("encoding tp_sl_orders: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`UPDATE trades SET tp_sl_orders = $2, updated_at = NOW() WHERE id = $1`,
		id, data)
	if err != nil {
		return fmt.Errorf("updating tp_sl_orders: %w", err)
	}
	return nil
}

// SetOrderStatusResponse stores the latest status-probe payload. It never
// touches original_order_response.
func (r *Repository) SetOrderStatusResponse(ctx context.Context, id int64, payload json.RawMessage) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET order_status_response = $2, updated_at = NOW() WHERE id = $1`,
		id, payload)
	if err != nil {
		return fmt.Errorf("updating order_status_response: %w", err)
	}
	return nil
}

// SetLatestVenuePayload stores the newest venue payload for a trade without
// touching the write-once original.
func (r *Repository) SetLatestVenuePayload(ctx context.Context, id int64, payload json.RawMessage) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET binance_response = $2, updated_at = NOW() WHERE id = $1`,
		id, payload)
	if err != nil {
		return fmt.Errorf("updating binance_response: %w", err)
	}
	return nil
}

// IncrementSyncError bumps the failed-probe counter and appends the issue.
// Probe failures never change the trade status.
func (r *Repository) IncrementSyncError(ctx context.Context, id int64, issue string) error {
	entry, _ := json.Marshal(issue)
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET
			sync_error_count = sync_error_count + 1,
			sync_issues = COALESCE(sync_issues, '[]'::jsonb) || $2::jsonb,
			updated_at = NOW()
		 WHERE id = $1`,
		id, entry)
	if err != nil {
		return fmt.Errorf("incrementing sync_error_count: %w", err)
	}
	return nil
}

// SetManualVerification flags a trade for operator review.
func (r *Repository) SetManualVerification(ctx context.Context, id int64, needed bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET manual_verification_needed = $2, updated_at = NOW() WHERE id = $1`,
		id, needed)
	if err != nil {
		return fmt.Errorf("setting manual_verification_needed: %w", err)
	}
	return nil
}

// MarkMerged records that a secondary trade was merged into a primary.
func (r *Repository) MarkMerged(ctx context.Context, secondaryID, primaryID int64, reason string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET merged_into_trade_id = $2, merge_reason = $3, merged_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		secondaryID, primaryID, reason)
	if err != nil {
		return fmt.Errorf("marking trade merged: %w", err)
	}
	return nil
}

// UpdateMergedEntry applies the weighted-average entry and enlarged size to
// the primary trade of a merge.
func (r *Repository) UpdateMergedEntry(ctx context.Context, primaryID int64, entryPrice, positionSize float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET binance_entry_price = $2, position_size = $3, updated_at = NOW() WHERE id = $1`,
		primaryID, entryPrice, positionSize)
	if err != nil {
		return fmt.Errorf("updating merged entry: %w", err)
	}
	return nil
}

// LastAttemptForSymbol returns the timestamp of the most recent trade row for
// a symbol, used by the cooldown gate when Redis has no record.
func (r *Repository) LastAttemptForSymbol(ctx context.Context, coinSymbol string) (*time.Time, error) {
	var at *time.Time
	err := r.db.Pool.QueryRow(ctx,
		`SELECT MAX(timestamp) FROM trades WHERE coin_symbol = $1`, coinSymbol).Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("querying last attempt: %w", err)
	}
	return at, nil
}
