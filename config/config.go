package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	BinanceConfig   BinanceConfig   `json:"binance"`
	KucoinConfig    KucoinConfig    `json:"kucoin"`
	TradingConfig   TradingConfig   `json:"trading"`
	FeeConfig       FeeConfig       `json:"fees"`
	StreamConfig    StreamConfig    `json:"stream"`
	SchedulerConfig SchedulerConfig `json:"scheduler"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

type DatabaseConfig struct {
	URL string `json:"url"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig selects the credential source. When disabled, venue keys come
// from the environment instead.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TestNet   bool   `json:"testnet"`
}

type KucoinConfig struct {
	Enabled    bool   `json:"enabled"`
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// TradingConfig holds sizing, gating, and conflict-policy knobs.
type TradingConfig struct {
	PrimaryVenue      string   `json:"primary_venue"`      // binance or kucoin
	TradeAmount       float64  `json:"trade_amount"`       // target notional, USDT
	MinTradeAmount    float64  `json:"min_trade_amount"`   // clamp floor
	MaxTradeAmount    float64  `json:"max_trade_amount"`   // clamp ceiling
	Leverage          int      `json:"leverage"`
	PriceThreshold    float64  `json:"price_threshold"`    // percent, entry vs mark
	MemecoinThreshold float64  `json:"memecoin_threshold"` // percent, overrides for memecoins
	MemecoinSymbols   []string `json:"memecoin_symbols"`
	TradeCooldown     int      `json:"trade_cooldown"`      // seconds
	PositionCooldown  int      `json:"position_cooldown"`   // seconds, when a position is already live
	SameSidePolicy    string   `json:"same_side_policy"`    // merge or reject
	OppositePolicy    string   `json:"opposite_policy"`     // replace or reject
	MaxPositionTrades int      `json:"max_position_trades"`
}

type FeeConfig struct {
	UseFixed    bool    `json:"use_fixed"`
	FixedRate   float64 `json:"fixed_rate"`
	BNBDiscount bool    `json:"bnb_discount"`
}

type StreamConfig struct {
	Enabled              bool `json:"enabled"`
	PingInterval         int  `json:"ping_interval"`  // seconds
	PongTimeout          int  `json:"pong_timeout"`   // seconds
	MaxReconnectAttempts int  `json:"max_reconnect_attempts"`
	QueueSize            int  `json:"queue_size"`
}

// SchedulerConfig holds loop intervals in seconds; zero means default.
type SchedulerConfig struct {
	Enabled               bool `json:"enabled"`
	StatusSyncInterval    int  `json:"status_sync_interval"`
	PnlBackfillInterval   int  `json:"pnl_backfill_interval"`
	OrphanCleanupInterval int  `json:"orphan_cleanup_interval"`
	BalanceSyncInterval   int  `json:"balance_sync_interval"`
	PositionAuditInterval int  `json:"position_audit_interval"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// Load reads config.json when present and applies environment overrides on
// top. Environment always wins.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
	if cfg.TradingConfig.PrimaryVenue == "" {
		cfg.TradingConfig.PrimaryVenue = "binance"
	}
	if cfg.TradingConfig.TradeAmount == 0 {
		cfg.TradingConfig.TradeAmount = 101.0
	}
	if cfg.TradingConfig.MinTradeAmount == 0 {
		cfg.TradingConfig.MinTradeAmount = 20.0
	}
	if cfg.TradingConfig.MaxTradeAmount == 0 {
		cfg.TradingConfig.MaxTradeAmount = 500.0
	}
	if cfg.TradingConfig.Leverage == 0 {
		cfg.TradingConfig.Leverage = 1
	}
	if cfg.TradingConfig.PriceThreshold == 0 {
		cfg.TradingConfig.PriceThreshold = 2.0
	}
	if cfg.TradingConfig.MemecoinThreshold == 0 {
		cfg.TradingConfig.MemecoinThreshold = 5.0
	}
	if len(cfg.TradingConfig.MemecoinSymbols) == 0 {
		cfg.TradingConfig.MemecoinSymbols = []string{"DOGE", "SHIB", "PEPE", "WIF", "BONK", "FLOKI"}
	}
	if cfg.TradingConfig.TradeCooldown == 0 {
		cfg.TradingConfig.TradeCooldown = 300
	}
	if cfg.TradingConfig.PositionCooldown == 0 {
		cfg.TradingConfig.PositionCooldown = 600
	}
	if cfg.TradingConfig.SameSidePolicy == "" {
		cfg.TradingConfig.SameSidePolicy = "merge"
	}
	if cfg.TradingConfig.OppositePolicy == "" {
		cfg.TradingConfig.OppositePolicy = "replace"
	}
	if cfg.TradingConfig.MaxPositionTrades == 0 {
		cfg.TradingConfig.MaxPositionTrades = 3
	}
	if cfg.FeeConfig.FixedRate == 0 {
		cfg.FeeConfig.FixedRate = 0.0005
	}
	if cfg.StreamConfig.PingInterval == 0 {
		cfg.StreamConfig.PingInterval = 180
	}
	if cfg.StreamConfig.PongTimeout == 0 {
		cfg.StreamConfig.PongTimeout = 600
	}
	if cfg.StreamConfig.MaxReconnectAttempts == 0 {
		cfg.StreamConfig.MaxReconnectAttempts = 10
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "trading/venues"
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)

	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_API_SECRET", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)

	cfg.KucoinConfig.Enabled = getEnvBoolOrDefault("KUCOIN_ENABLED", cfg.KucoinConfig.Enabled)
	cfg.KucoinConfig.APIKey = getEnvOrDefault("KUCOIN_API_KEY", cfg.KucoinConfig.APIKey)
	cfg.KucoinConfig.SecretKey = getEnvOrDefault("KUCOIN_API_SECRET", cfg.KucoinConfig.SecretKey)
	cfg.KucoinConfig.Passphrase = getEnvOrDefault("KUCOIN_API_PASSPHRASE", cfg.KucoinConfig.Passphrase)

	cfg.TradingConfig.PrimaryVenue = getEnvOrDefault("TRADING_VENUE", cfg.TradingConfig.PrimaryVenue)
	cfg.TradingConfig.TradeAmount = getEnvFloatOrDefault("TRADE_AMOUNT", cfg.TradingConfig.TradeAmount)
	cfg.TradingConfig.MinTradeAmount = getEnvFloatOrDefault("MIN_TRADE_AMOUNT", cfg.TradingConfig.MinTradeAmount)
	cfg.TradingConfig.MaxTradeAmount = getEnvFloatOrDefault("MAX_TRADE_AMOUNT", cfg.TradingConfig.MaxTradeAmount)
	cfg.TradingConfig.Leverage = getEnvIntOrDefault("LEVERAGE", cfg.TradingConfig.Leverage)
	cfg.TradingConfig.PriceThreshold = getEnvFloatOrDefault("PRICE_THRESHOLD", cfg.TradingConfig.PriceThreshold)
	cfg.TradingConfig.MemecoinThreshold = getEnvFloatOrDefault("MEMECOIN_PRICE_THRESHOLD", cfg.TradingConfig.MemecoinThreshold)
	if v := os.Getenv("MEMECOIN_SYMBOLS"); v != "" {
		cfg.TradingConfig.MemecoinSymbols = splitList(v)
	}
	cfg.TradingConfig.TradeCooldown = getEnvIntOrDefault("TRADE_COOLDOWN", cfg.TradingConfig.TradeCooldown)
	cfg.TradingConfig.PositionCooldown = getEnvIntOrDefault("POSITION_COOLDOWN", cfg.TradingConfig.PositionCooldown)
	cfg.TradingConfig.SameSidePolicy = getEnvOrDefault("SAME_SIDE_POLICY", cfg.TradingConfig.SameSidePolicy)
	cfg.TradingConfig.OppositePolicy = getEnvOrDefault("OPPOSITE_POLICY", cfg.TradingConfig.OppositePolicy)
	cfg.TradingConfig.MaxPositionTrades = getEnvIntOrDefault("MAX_POSITION_TRADES", cfg.TradingConfig.MaxPositionTrades)

	cfg.FeeConfig.UseFixed = getEnvBoolOrDefault("USE_FIXED_FEE_CALCULATOR", cfg.FeeConfig.UseFixed)
	cfg.FeeConfig.FixedRate = getEnvFloatOrDefault("FIXED_FEE_RATE", cfg.FeeConfig.FixedRate)
	cfg.FeeConfig.BNBDiscount = getEnvBoolOrDefault("BNB_FEE_DISCOUNT", cfg.FeeConfig.BNBDiscount)

	cfg.StreamConfig.Enabled = getEnvBoolOrDefault("WEBSOCKET_ENABLED", cfg.StreamConfig.Enabled)
	cfg.StreamConfig.PingInterval = getEnvIntOrDefault("PING_INTERVAL", cfg.StreamConfig.PingInterval)
	cfg.StreamConfig.PongTimeout = getEnvIntOrDefault("PONG_TIMEOUT", cfg.StreamConfig.PongTimeout)
	cfg.StreamConfig.MaxReconnectAttempts = getEnvIntOrDefault("MAX_RECONNECT_ATTEMPTS", cfg.StreamConfig.MaxReconnectAttempts)
	cfg.StreamConfig.QueueSize = getEnvIntOrDefault("EVENT_QUEUE_SIZE", cfg.StreamConfig.QueueSize)

	cfg.SchedulerConfig.Enabled = getEnvBoolOrDefault("SCHEDULER_ENABLED", cfg.SchedulerConfig.Enabled)
	cfg.SchedulerConfig.StatusSyncInterval = getEnvIntOrDefault("STATUS_SYNC_INTERVAL", cfg.SchedulerConfig.StatusSyncInterval)
	cfg.SchedulerConfig.PnlBackfillInterval = getEnvIntOrDefault("PNL_BACKFILL_INTERVAL", cfg.SchedulerConfig.PnlBackfillInterval)
	cfg.SchedulerConfig.OrphanCleanupInterval = getEnvIntOrDefault("ORPHAN_CLEANUP_INTERVAL", cfg.SchedulerConfig.OrphanCleanupInterval)
	cfg.SchedulerConfig.BalanceSyncInterval = getEnvIntOrDefault("BALANCE_SYNC_INTERVAL", cfg.SchedulerConfig.BalanceSyncInterval)
	cfg.SchedulerConfig.PositionAuditInterval = getEnvIntOrDefault("POSITION_AUDIT_INTERVAL", cfg.SchedulerConfig.PositionAuditInterval)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	if c.DatabaseConfig.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.TradingConfig.MinTradeAmount > c.TradingConfig.MaxTradeAmount {
		return fmt.Errorf("min_trade_amount %.2f exceeds max_trade_amount %.2f",
			c.TradingConfig.MinTradeAmount, c.TradingConfig.MaxTradeAmount)
	}
	switch c.TradingConfig.PrimaryVenue {
	case "binance", "kucoin":
	default:
		return fmt.Errorf("primary_venue must be binance or kucoin, got %q", c.TradingConfig.PrimaryVenue)
	}
	switch c.TradingConfig.SameSidePolicy {
	case "merge", "reject":
	default:
		return fmt.Errorf("same_side_policy must be merge or reject, got %q", c.TradingConfig.SameSidePolicy)
	}
	switch c.TradingConfig.OppositePolicy {
	case "replace", "reject":
	default:
		return fmt.Errorf("opposite_policy must be replace or reject, got %q", c.TradingConfig.OppositePolicy)
	}
	if c.VaultConfig.Enabled && c.VaultConfig.Address == "" {
		return fmt.Errorf("VAULT_ADDR is required when vault is enabled")
	}
	return nil
}

// ListenAddr joins host and port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerConfig.Host, c.ServerConfig.Port)
}

// IntervalOrDefault converts a seconds field to a duration, falling back
// when the field is zero.
func IntervalOrDefault(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
