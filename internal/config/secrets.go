package config

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/vault"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled    bool   // Enable Vault integration
	Address    string // Vault server address
	Token      string // Vault authentication token
	MountPath  string // KV v2 mount path (default: "secret")
	SecretPath string // Base path for arena secrets (default: "arena")
}

// GetVaultConfigFromEnv creates VaultConfig from environment variables
func GetVaultConfigFromEnv() VaultConfig {
	if os.Getenv("VAULT_ENABLED") != "true" {
		return VaultConfig{Enabled: false}
	}

	return VaultConfig{
		Enabled:    true,
		Address:    getEnvOrDefault("VAULT_ADDR", "http://localhost:8200"),
		Token:      os.Getenv("VAULT_TOKEN"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "arena"),
	}
}

// LoadSecretsFromVault fills empty credential fields from Vault. Environment
// values win; every failure is logged and skipped so the process can still
// come up on env-provided secrets alone.
func LoadSecretsFromVault(ctx context.Context, cfg *Config, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Debug().Msg("Vault integration disabled, using environment variables for secrets")
		return nil
	}

	vc, err := vault.NewClient(vault.Config{
		Address:   vaultCfg.Address,
		Token:     vaultCfg.Token,
		MountPath: vaultCfg.MountPath,
		BasePath:  vaultCfg.SecretPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create vault client: %w", err)
	}

	if secrets, err := vc.GetSecret(ctx, "llm"); err != nil {
		log.Warn().Err(err).Msg("Failed to load LLM secrets from Vault")
	} else {
		if key, ok := secrets["api_key"].(string); ok && key != "" && cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
			log.Info().Msg("Loaded LLM gateway key from Vault")
		}
	}

	if secrets, err := vc.GetSecret(ctx, "binance"); err != nil {
		log.Warn().Err(err).Msg("Failed to load Binance secrets from Vault")
	} else {
		if key, ok := secrets["api_key"].(string); ok && key != "" && cfg.Market.BinanceAPIKey == "" {
			cfg.Market.BinanceAPIKey = key
		}
		if key, ok := secrets["secret_key"].(string); ok && key != "" && cfg.Market.BinanceSecret == "" {
			cfg.Market.BinanceSecret = key
		}
	}

	if secrets, err := vc.GetSecret(ctx, "redis"); err != nil {
		log.Warn().Err(err).Msg("Failed to load Redis secrets from Vault")
	} else {
		if pw, ok := secrets["password"].(string); ok && pw != "" && cfg.Redis.Password == "" {
			cfg.Redis.Password = pw
		}
	}

	if secrets, err := vc.GetSecret(ctx, "telegram"); err != nil {
		log.Debug().Err(err).Msg("No Telegram secrets in Vault")
	} else {
		if token, ok := secrets["bot_token"].(string); ok && token != "" && cfg.Alerts.TelegramToken == "" {
			cfg.Alerts.TelegramToken = token
		}
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
