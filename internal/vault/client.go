// Package vault reads arena secrets from HashiCorp Vault KV v2.
// Secrets are cached briefly so startup paths that resolve the same
// credential more than once do not hammer the server. Environment
// variables always take precedence over Vault values; the caller
// decides which fields to fill.
package vault

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// Tokens that only ever appear in local development setups
var insecureDevTokens = map[string]bool{
	"arena-dev-token": true,
	"root":            true,
	"dev":             true,
	"test":            true,
}

// Config holds Vault client configuration
type Config struct {
	Address   string        // Vault server address (default: http://localhost:8200)
	Token     string        // authentication token (falls back to VAULT_TOKEN)
	MountPath string        // KV v2 mount path (default: "secret")
	BasePath  string        // base path for arena secrets (default: "arena")
	CacheTTL  time.Duration // how long to cache secret reads (default: 5 minutes)
}

// Client reads KV v2 secrets with a read-through TTL cache
type Client struct {
	api      *vaultapi.Client
	mount    string
	base     string
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	data      map[string]interface{}
	expiresAt time.Time
}

// NewClient creates a Vault client. Construction fails without a token.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		cfg.Address = os.Getenv("VAULT_ADDR")
		if cfg.Address == "" {
			cfg.Address = "http://localhost:8200"
		}
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token is required")
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "arena"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	if insecureDevTokens[cfg.Token] {
		log.Warn().Msg("Vault client is using a known development token, never do this in production")
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address

	api, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	api.SetToken(cfg.Token)

	log.Info().
		Str("address", cfg.Address).
		Str("mount_path", cfg.MountPath).
		Str("base_path", cfg.BasePath).
		Msg("Vault client initialized")

	return &Client{
		api:      api,
		mount:    cfg.MountPath,
		base:     cfg.BasePath,
		cacheTTL: cfg.CacheTTL,
		cache:    make(map[string]cachedSecret),
	}, nil
}

// GetSecret reads one secret relative to the base path, so
// GetSecret(ctx, "llm") resolves <mount>/data/<base>/llm. KV v2 nests
// payloads under "data"; KV v1 responses are returned as is.
func (c *Client) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	c.mu.RLock()
	if hit, ok := c.cache[path]; ok && time.Now().Before(hit.expiresAt) {
		c.mu.RUnlock()
		return hit.data, nil
	}
	c.mu.RUnlock()

	fullPath := fmt.Sprintf("%s/data/%s/%s", c.mount, c.base, path)
	secret, err := c.api.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	c.mu.Lock()
	c.cache[path] = cachedSecret{data: data, expiresAt: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()

	return data, nil
}

// GetSecretString reads a single string value from a secret
func (c *Client) GetSecretString(ctx context.Context, path, key string) (string, error) {
	data, err := c.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}

	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key %q not found or not a string at path: %s", key, path)
	}
	return value, nil
}

// ClearCache drops all cached secrets
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]cachedSecret)
	c.mu.Unlock()
}
