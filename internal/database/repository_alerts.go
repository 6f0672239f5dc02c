package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrAlertNotFound is returned when a lookup matches no alert row.
var ErrAlertNotFound = errors.New("alert not found")

const alertColumns = `id, timestamp, discord_id, trade, content, trader,
	parsed_alert, binance_response, created_at, updated_at`

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var discordID, trade, content, trader *string
	err := row.Scan(
		&a.ID, &a.Timestamp, &discordID, &trade, &content, &trader,
		&a.ParsedAlert, &a.BinanceResponse, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("scanning alert: %w", err)
	}
	if discordID != nil {
		a.DiscordID = *discordID
	}
	if trade != nil {
		a.Trade = *trade
	}
	if content != nil {
		a.Content = *content
	}
	if trader != nil {
		a.Trader = *trader
	}
	return &a, nil
}

// CreateAlert inserts a follow-up alert row and returns its id.
func (r *Repository) CreateAlert(ctx context.Context, a *Alert) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO alerts (timestamp, discord_id, trade, content, trader)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		 RETURNING id`,
		a.Timestamp, a.DiscordID, a.Trade, a.Content, a.Trader,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting alert: %w", err)
	}
	return id, nil
}

// GetAlertByID fetches an alert by primary key.
func (r *Repository) GetAlertByID(ctx context.Context, id int64) (*Alert, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

// GetAlertsForTrade lists every alert bound to a parent trade's discord id.
func (r *Repository) GetAlertsForTrade(ctx context.Context, tradeDiscordID string) ([]*Alert, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE trade = $1 ORDER BY timestamp`,
		tradeDiscordID)
	if err != nil {
		return nil, fmt.Errorf("querying alerts for trade: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UpdateAlertOutcome records the parsed action and the venue response for an
// executed alert.
func (r *Repository) UpdateAlertOutcome(ctx context.Context, id int64, parsed, venueResponse json.RawMessage) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE alerts SET parsed_alert = $2, binance_response = $3, updated_at = NOW() WHERE id = $1`,
		id, parsed, venueResponse)
	if err != nil {
		return fmt.Errorf("updating alert outcome: %w", err)
	}
	return nil
}
