package database

import (
	"context"
	"fmt"
)

// UpsertBalance inserts or replaces one venue balance snapshot row.
func (r *Repository) UpsertBalance(ctx context.Context, b *Balance) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO balances (platform, account_type, asset, free, locked, total, unrealized_pnl, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (platform, account_type, asset) DO UPDATE SET
			free = EXCLUDED.free,
			locked = EXCLUDED.locked,
			total = EXCLUDED.total,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			last_updated = NOW()`,
		b.Platform, b.AccountType, b.Asset, b.Free, b.Locked, b.Total, b.UnrealizedPnl)
	if err != nil {
		return fmt.Errorf("upserting balance: %w", err)
	}
	return nil
}

// GetBalances lists the stored balances for one platform.
func (r *Repository) GetBalances(ctx context.Context, platform string) ([]*Balance, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT platform, account_type, asset, free, locked, total, unrealized_pnl, last_updated
		 FROM balances WHERE platform = $1 ORDER BY account_type, asset`,
		platform)
	if err != nil {
		return nil, fmt.Errorf("querying balances: %w", err)
	}
	defer rows.Close()

	var balances []*Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Platform, &b.AccountType, &b.Asset, &b.Free, &b.Locked,
			&b.Total, &b.UnrealizedPnl, &b.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		balances = append(balances, &b)
	}
	return balances, rows.Err()
}
