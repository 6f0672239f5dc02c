package database

import (
	"context"
	"fmt"
	"time"
)

// InsertTransactions stores income events, skipping rows already present.
// The primary key over the full tuple makes re-ingesting an overlapping
// window a no-op. Returns the number of newly inserted rows.
func (r *Repository) InsertTransactions(ctx context.Context, txs []Transaction) (int, error) {
	inserted := 0
	for _, tx := range txs {
		tag, err := r.db.Pool.Exec(ctx,
			`INSERT INTO transaction_history (time, type, amount, asset, symbol)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT DO NOTHING`,
			tx.Time, tx.Type, tx.Amount, tx.Asset, tx.Symbol)
		if err != nil {
			return inserted, fmt.Errorf("inserting transaction: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// GetTransactions lists income events within [start, end], newest first.
func (r *Repository) GetTransactions(ctx context.Context, start, end time.Time, limit int) ([]Transaction, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT time, type, amount, asset, symbol FROM transaction_history
		 WHERE time >= $1 AND time <= $2 ORDER BY time DESC LIMIT $3`,
		start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.Time, &tx.Type, &tx.Amount, &tx.Asset, &tx.Symbol); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// LatestTransactionTime returns the newest stored income event time, used to
// pick the next ingestion window start.
func (r *Repository) LatestTransactionTime(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := r.db.Pool.QueryRow(ctx,
		`SELECT MAX(time) FROM transaction_history`).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("querying latest transaction time: %w", err)
	}
	return t, nil
}
