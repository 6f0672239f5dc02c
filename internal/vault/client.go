// Package vault loads venue API credentials from HashiCorp Vault. When
// Vault is disabled the caller falls back to environment credentials.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"github.com/BrianElionDev/BuyBot/config"
)

// Credentials is one venue's API credential set. Passphrase is empty for
// venues that do not use one.
type Credentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
	Venue      string `json:"venue"`
	IsTestnet  bool   `json:"is_testnet"`
}

// Client wraps the HashiCorp Vault KV v2 client.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]*Credentials
}

// NewClient connects to Vault. A disabled config yields a cache-only client
// usable for tests.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg, cache: make(map[string]*Credentials)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("configuring vault TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*Credentials),
	}, nil
}

// IsEnabled reports whether Vault is the credential source.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// GetCredentials fetches one venue's credentials, consulting the cache
// first.
func (c *Client) GetCredentials(ctx context.Context, venue string, isTestnet bool) (*Credentials, error) {
	key := c.cacheKey(venue, isTestnet)

	c.mu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("credentials for %s not found and vault is disabled", venue)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(venue, isTestnet))
	if err != nil {
		return nil, fmt.Errorf("reading %s credentials from vault: %w", venue, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials for %s not found in vault", venue)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format for %s", venue)
	}

	creds := &Credentials{
		APIKey:     getString(data, "api_key"),
		SecretKey:  getString(data, "secret_key"),
		Passphrase: getString(data, "passphrase"),
		Venue:      venue,
		IsTestnet:  isTestnet,
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("incomplete credentials for %s in vault", venue)
	}

	c.mu.Lock()
	c.cache[key] = creds
	c.mu.Unlock()

	return creds, nil
}

// StoreCredentials writes one venue's credentials. The cache-only path
// serves disabled-vault setups and tests.
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	key := c.cacheKey(creds.Venue, creds.IsTestnet)

	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[key] = &creds
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"passphrase": creds.Passphrase,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(creds.Venue, creds.IsTestnet), secretData); err != nil {
		return fmt.Errorf("storing %s credentials in vault: %w", creds.Venue, err)
	}

	c.mu.Lock()
	c.cache[key] = &creds
	c.mu.Unlock()
	return nil
}

// ClearCache drops cached credentials, forcing a re-read on next use.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credentials)
	c.mu.Unlock()
}

// Health verifies the Vault connection and seal state.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(venue string, isTestnet bool) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, c.cacheKey(venue, isTestnet))
}

func (c *Client) cacheKey(venue string, isTestnet bool) string {
	network := "mainnet"
	if isTestnet {
		network = "testnet"
	}
	return fmt.Sprintf("%s_%s", venue, network)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
