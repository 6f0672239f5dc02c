package vault

import (
	"context"
	"testing"

	"github.com/BrianElionDev/BuyBot/config"
)

func TestDisabledVaultCacheRoundTrip(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx := context.Background()
	if _, err := c.GetCredentials(ctx, "binance", false); err == nil {
		t.Error("empty cache with vault disabled: want error")
	}

	want := Credentials{APIKey: "k", SecretKey: "s", Venue: "binance"}
	if err := c.StoreCredentials(ctx, want); err != nil {
		t.Fatalf("StoreCredentials: %v", err)
	}

	got, err := c.GetCredentials(ctx, "binance", false)
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if got.APIKey != "k" || got.SecretKey != "s" {
		t.Errorf("credentials = %+v, want stored values", got)
	}

	// Testnet keys live under a separate path.
	if _, err := c.GetCredentials(ctx, "binance", true); err == nil {
		t.Error("testnet lookup should miss the mainnet entry")
	}

	c.ClearCache()
	if _, err := c.GetCredentials(ctx, "binance", false); err == nil {
		t.Error("cache cleared: want error")
	}
}

func TestDisabledVaultHealthIsNil(t *testing.T) {
	c, _ := NewClient(config.VaultConfig{Enabled: false})
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health with vault disabled: %v", err)
	}
}
