package secrets

import (
	"fmt"
	"log/slog"
	"os"
)

// Config holds configuration for the secrets backend.
type Config struct {
	// Backend specifies which backend to use: "1password", "local", or "auto"
	// "auto" (default) uses 1Password if configured, otherwise local
	Backend string

	OnePassword OnePasswordConfig

	// Local storage directory (default: ~/.fleet/secrets)
	LocalDir string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		Backend: getEnv("FLEET_SECRETS_BACKEND", "auto"),
		OnePassword: OnePasswordConfig{
			Host:    os.Getenv("OP_CONNECT_HOST"),
			Token:   os.Getenv("OP_CONNECT_TOKEN"),
			VaultID: os.Getenv("OP_VAULT_ID"),
		},
		LocalDir: os.Getenv("FLEET_SECRETS_DIR"),
	}
}

// NewResolver creates a Resolver based on configuration.
func NewResolver(cfg Config, logger *slog.Logger) (Resolver, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	switch backend {
	case "1password":
		return NewOnePasswordResolver(cfg.OnePassword, logger)

	case "local":
		return NewLocalResolver(cfg.LocalDir, logger)

	case "auto":
		if cfg.OnePassword.Host != "" && cfg.OnePassword.Token != "" {
			return NewOnePasswordResolver(cfg.OnePassword, logger)
		}
		logger.Info("OP_CONNECT_HOST not set, using local secret storage")
		return NewLocalResolver(cfg.LocalDir, logger)

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
