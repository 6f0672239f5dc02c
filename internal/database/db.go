// Package database provides the PostgreSQL persistence layer for trades,
// alerts, balances and transaction history.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool and verifies connectivity.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	return newDB(dsn, logger)
}

// NewDBFromURL creates a pool from a postgres:// connection URL.
func NewDBFromURL(url string, logger zerolog.Logger) (*DB, error) {
	return newDB(url, logger)
}

func newDB(dsn string, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", poolConfig.ConnConfig.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			discord_id VARCHAR(64) UNIQUE,
			timestamp TIMESTAMPTZ NOT NULL,
			coin_symbol VARCHAR(20),
			parsed_signal JSONB,
			signal_type VARCHAR(10),
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			entry_price DOUBLE PRECISION,
			binance_entry_price DOUBLE PRECISION,
			exit_price DOUBLE PRECISION,
			position_size DOUBLE PRECISION,
			exchange_order_id VARCHAR(64),
			original_order_response JSONB,
			binance_response JSONB,
			order_status_response JSONB,
			tp_sl_orders JSONB,
			pnl_usd DOUBLE PRECISION,
			sync_error_count INTEGER NOT NULL DEFAULT 0,
			sync_issues JSONB,
			manual_verification_needed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ,
			closed_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			merged_into_trade_id BIGINT REFERENCES trades(id),
			merge_reason TEXT,
			merged_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_coin_symbol ON trades(coin_symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exchange_order_id ON trades(exchange_order_id)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			discord_id VARCHAR(64),
			trade VARCHAR(64),
			content TEXT,
			trader VARCHAR(64),
			parsed_alert JSONB,
			binance_response JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_trade ON alerts(trade)`,

		`CREATE TABLE IF NOT EXISTS balances (
			platform VARCHAR(20) NOT NULL,
			account_type VARCHAR(20) NOT NULL,
			asset VARCHAR(20) NOT NULL,
			free DOUBLE PRECISION NOT NULL DEFAULT 0,
			locked DOUBLE PRECISION NOT NULL DEFAULT 0,
			total DOUBLE PRECISION NOT NULL DEFAULT 0,
			unrealized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (platform, account_type, asset)
		)`,

		`CREATE TABLE IF NOT EXISTS transaction_history (
			time TIMESTAMPTZ NOT NULL,
			type VARCHAR(30) NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			asset VARCHAR(20) NOT NULL,
			symbol VARCHAR(30) NOT NULL DEFAULT '',
			PRIMARY KEY (time, type, amount, asset, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_history_time ON transaction_history(time)`,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}
