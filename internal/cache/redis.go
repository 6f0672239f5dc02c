// Package cache provides the Redis-backed cooldown gate and signal
// deduplication store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Service wraps the Redis client. Redis holds only reconstructable state
// (cooldowns, dedupe markers); a flush costs at most one duplicate check
// against the database.
type Service struct {
	client *redis.Client
	logger zerolog.Logger
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewService connects to Redis and verifies the connection.
func NewService(cfg Config, logger zerolog.Logger) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	log := logger.With().Str("component", "cache").Logger()
	log.Info().Str("addr", cfg.Addr).Msg("connected to Redis")
	return &Service{client: client, logger: log}, nil
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	return s.client.Close()
}

func cooldownKey(symbol string) string { return "cooldown:" + symbol }
func signalKey(discordID string) string { return "signal_seen:" + discordID }

// StartCooldown opens a cooldown window for a symbol.
func (s *Service) StartCooldown(ctx context.Context, symbol string, d time.Duration) error {
	if err := s.client.Set(ctx, cooldownKey(symbol), time.Now().Format(time.RFC3339), d).Err(); err != nil {
		return fmt.Errorf("setting cooldown: %w", err)
	}
	return nil
}

// CooldownRemaining reports how long the symbol's cooldown still runs; zero
// means no active cooldown. Redis failures fail open: a missed cooldown is
// cheaper than blocking all trading.
func (s *Service) CooldownRemaining(ctx context.Context, symbol string) time.Duration {
	ttl, err := s.client.TTL(ctx, cooldownKey(symbol)).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("cooldown lookup failed, failing open")
		return 0
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

// FirstSeen marks a signal id as processed and reports whether this call was
// the first sighting. The TTL bounds memory; the trades table's unique
// discord_id constraint is the durable backstop.
func (s *Service) FirstSeen(ctx context.Context, discordID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, signalKey(discordID), "1", ttl).Result()
	if err != nil {
		return true, fmt.Errorf("marking signal seen: %w", err)
	}
	return ok, nil
}
