package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/config"
	"github.com/BrianElionDev/BuyBot/internal/api"
	"github.com/BrianElionDev/BuyBot/internal/binance"
	"github.com/BrianElionDev/BuyBot/internal/cache"
	"github.com/BrianElionDev/BuyBot/internal/database"
	"github.com/BrianElionDev/BuyBot/internal/exchange"
	"github.com/BrianElionDev/BuyBot/internal/fees"
	"github.com/BrianElionDev/BuyBot/internal/ingestor"
	"github.com/BrianElionDev/BuyBot/internal/kucoin"
	"github.com/BrianElionDev/BuyBot/internal/prices"
	"github.com/BrianElionDev/BuyBot/internal/scheduler"
	"github.com/BrianElionDev/BuyBot/internal/signals"
	"github.com/BrianElionDev/BuyBot/internal/trader"
	"github.com/BrianElionDev/BuyBot/internal/vault"
)

// Exit codes: 1 for configuration or credential failures, 2 for
// persistence failures.
const (
	exitConfig      = 1
	exitPersistence = 2
)

func main() {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(exitConfig)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Str("venue", cfg.TradingConfig.PrimaryVenue).Msg("trade engine starting")

	if err := run(cfg, logger); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			logger.Error().Err(exit.err).Msg(exit.msg)
			os.Exit(exit.code)
		}
		logger.Error().Err(err).Msg("fatal error")
		os.Exit(exitConfig)
	}
}

type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence. The engine cannot run without a database.
	db, err := database.NewDBFromURL(cfg.DatabaseConfig.URL, logger)
	if err != nil {
		return &exitError{exitPersistence, "database connection failed", err}
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return &exitError{exitPersistence, "database migrations failed", err}
	}
	repo := database.NewRepository(db)

	// Redis backs cooldowns and dedupe. Optional: without it every gate
	// fails open.
	var redisCache *cache.Service
	if cfg.RedisConfig.Enabled {
		redisCache, err = cache.NewService(cache.Config{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		}, logger)
		if err != nil {
			return &exitError{exitConfig, "redis connection failed", err}
		}
		defer redisCache.Close()
	} else {
		logger.Warn().Msg("redis disabled, cooldowns and dedupe are off")
	}

	// Venue client for the trading pipeline.
	client, streamSource, err := buildVenueClient(ctx, cfg, logger)
	if err != nil {
		return &exitError{exitConfig, "venue client setup failed", err}
	}

	feeCalc := buildFeeCalculator(cfg.FeeConfig)
	priceCache := prices.NewCache(prices.DefaultTTL)

	var cooldowns trader.CooldownStore
	if redisCache != nil {
		cooldowns = redisCache
	}
	coordinator := trader.NewCoordinator(client, repo, priceCache, feeCalc, cooldowns, trader.Config{
		TradeAmount:       cfg.TradingConfig.TradeAmount,
		MinTradeAmount:    cfg.TradingConfig.MinTradeAmount,
		MaxTradeAmount:    cfg.TradingConfig.MaxTradeAmount,
		Leverage:          cfg.TradingConfig.Leverage,
		PriceThreshold:    cfg.TradingConfig.PriceThreshold / 100,
		MemecoinThreshold: cfg.TradingConfig.MemecoinThreshold / 100,
		MemecoinSymbols:   cfg.TradingConfig.MemecoinSymbols,
		TradeCooldown:     time.Duration(cfg.TradingConfig.TradeCooldown) * time.Second,
		PositionCooldown:  time.Duration(cfg.TradingConfig.PositionCooldown) * time.Second,
		SameSidePolicy:    cfg.TradingConfig.SameSidePolicy,
		OppositePolicy:    cfg.TradingConfig.OppositePolicy,
		MaxPositionTrades: cfg.TradingConfig.MaxPositionTrades,
	}, logger)
	defer coordinator.Close()

	var dedupe signals.DedupeStore
	if redisCache != nil {
		dedupe = redisCache
	}
	router := signals.NewRouter(repo, coordinator, dedupe, logger)

	// Real-time event path: stream feeds the ingestor, which owns the
	// ordered apply loop.
	var stream *binance.UserDataStream
	var ing *ingestor.Ingestor
	if cfg.StreamConfig.Enabled && streamSource != nil {
		ing = ingestor.New(repo, cfg.StreamConfig.QueueSize, logger)
		ing.Start()
		defer ing.Stop()

		stream = binance.NewUserDataStream(streamSource, cfg.BinanceConfig.TestNet, binance.StreamOptions{
			PingInterval:  time.Duration(cfg.StreamConfig.PingInterval) * time.Second,
			PongTimeout:   time.Duration(cfg.StreamConfig.PongTimeout) * time.Second,
			MaxReconnects: cfg.StreamConfig.MaxReconnectAttempts,
		}, ing.Handle, logger)
		stream.Start()
		defer stream.Stop()
	} else {
		logger.Warn().Msg("user-data stream disabled, relying on periodic sync only")
	}

	// Periodic reconciliation loops.
	var sched *scheduler.Scheduler
	if cfg.SchedulerConfig.Enabled {
		def := scheduler.DefaultIntervals()
		syncer := scheduler.NewSyncer(client, repo, logger)
		sched = scheduler.New(syncer.Loops(scheduler.Intervals{
			StatusSync:    config.IntervalOrDefault(cfg.SchedulerConfig.StatusSyncInterval, def.StatusSync),
			PnlBackfill:   config.IntervalOrDefault(cfg.SchedulerConfig.PnlBackfillInterval, def.PnlBackfill),
			OrphanCleanup: config.IntervalOrDefault(cfg.SchedulerConfig.OrphanCleanupInterval, def.OrphanCleanup),
			BalanceSync:   config.IntervalOrDefault(cfg.SchedulerConfig.BalanceSyncInterval, def.BalanceSync),
			PositionAudit: config.IntervalOrDefault(cfg.SchedulerConfig.PositionAuditInterval, def.PositionAudit),
		}), logger)
		sched.Start()
		defer sched.Stop()
	}

	// HTTP ingress.
	var schedCtl api.SchedulerControl
	if sched != nil {
		schedCtl = sched
	}
	var streamStatus api.StreamStatus
	if stream != nil {
		streamStatus = stream
	}
	server := api.NewServer(router, schedCtl, streamStatus, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Run(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown incomplete")
	}

	logger.Info().Msg("trade engine stopped")
	return nil
}

// buildVenueClient resolves credentials (Vault first, environment fallback)
// and constructs the primary venue client. The second return is the
// user-data stream source; nil when the venue has no stream support.
func buildVenueClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (exchange.Client, exchange.StreamClient, error) {
	binanceKey := cfg.BinanceConfig.APIKey
	binanceSecret := cfg.BinanceConfig.SecretKey
	kucoinKey := cfg.KucoinConfig.APIKey
	kucoinSecret := cfg.KucoinConfig.SecretKey
	kucoinPassphrase := cfg.KucoinConfig.Passphrase

	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			return nil, nil, err
		}
		if err := vaultClient.Health(ctx); err != nil {
			return nil, nil, err
		}

		creds, err := vaultClient.GetCredentials(ctx, "binance", cfg.BinanceConfig.TestNet)
		if err != nil {
			return nil, nil, fmt.Errorf("binance credentials: %w", err)
		}
		binanceKey, binanceSecret = creds.APIKey, creds.SecretKey

		if cfg.KucoinConfig.Enabled {
			kc, err := vaultClient.GetCredentials(ctx, "kucoin", false)
			if err != nil {
				return nil, nil, fmt.Errorf("kucoin credentials: %w", err)
			}
			kucoinKey, kucoinSecret, kucoinPassphrase = kc.APIKey, kc.SecretKey, kc.Passphrase
		}
	}

	switch cfg.TradingConfig.PrimaryVenue {
	case "kucoin":
		if kucoinKey == "" || kucoinSecret == "" || kucoinPassphrase == "" {
			return nil, nil, fmt.Errorf("kucoin credentials are incomplete")
		}
		// KuCoin has no user-data stream support here; the periodic sync
		// loops own reconciliation.
		return kucoin.NewClient(kucoinKey, kucoinSecret, kucoinPassphrase, logger), nil, nil
	default:
		if binanceKey == "" || binanceSecret == "" {
			return nil, nil, fmt.Errorf("binance credentials are incomplete")
		}
		client := binance.NewClient(binanceKey, binanceSecret, cfg.BinanceConfig.TestNet, logger)
		return client, client, nil
	}
}

func buildFeeCalculator(cfg config.FeeConfig) *fees.Calculator {
	if cfg.UseFixed {
		return fees.NewFixed(cfg.FixedRate)
	}
	return fees.NewTiered(cfg.FixedRate, cfg.BNBDiscount)
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if !cfg.JSONFormat {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
