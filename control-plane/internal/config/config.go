package config

// Runtime configuration for the control plane server.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (FLEET_*)
// 3. Config file (YAML, validated against the embedded CUE schema)
// 4. Defaults
//
// # Example Config File
//
//	server:
//	  port: 8080
//	  write_timeout: 30s
//
//	database:
//	  url: op://fleet/postgres/url
//	  max_conns: 20
//
//	redis:
//	  url: redis://localhost:6379/0
//
//	ingest:
//	  rate_limit: 50
//	  burst: 100
//
//	auth:
//	  enabled: true
//	  operator_key_hashes:
//	    - $2a$10$...
//
//	telemetry:
//	  enabled: true
//	  interval: 1m
//
//	log:
//	  level: info

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig defines the Postgres connection.
type DatabaseConfig struct {
	URL      string `yaml:"url"` // postgres://... or op://vault/item/field
	Migrate  bool   `yaml:"migrate"`
	MaxConns int32  `yaml:"max_conns,omitempty"`
}

// RedisConfig defines the optional idempotency cache.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"` // Empty keeps idempotency keys in process memory
}

// IngestConfig defines detection ingestion limits.
type IngestConfig struct {
	RateLimit float64 `yaml:"rate_limit"` // Batches per second
	Burst     int     `yaml:"burst"`
}

// AuthConfig defines operator API key authentication on mutating endpoints.
type AuthConfig struct {
	// Enabled rejects requests without a valid key. When false, keys are
	// still checked and failures logged, but requests pass.
	Enabled           bool     `yaml:"enabled"`
	OperatorKeyHashes []string `yaml:"operator_key_hashes,omitempty"` // bcrypt hashes
}

// TelemetryConfig defines export of the OpenTelemetry domain counters.
type TelemetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	ServiceName string        `yaml:"service_name,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"` // Export period
	Output      string        `yaml:"output,omitempty"`   // stdout, stderr or a file path
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			URL:     "postgres://localhost:5432/fleet?sslmode=disable",
			Migrate: true,
		},
		Ingest: IngestConfig{
			RateLimit: DefaultIngestRateLimit,
			Burst:     DefaultIngestBurst,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "fleet-control",
			Interval:    DefaultMetricExportInterval,
			Output:      "stdout",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a YAML file after validating it
// against the embedded schema.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes YAML config bytes on top of the defaults.
func Parse(name string, data []byte) (*Config, error) {
	if err := ValidateYAML(name, data); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Ingest.RateLimit <= 0 {
		return fmt.Errorf("ingest.rate_limit must be positive")
	}
	if c.Ingest.Burst <= 0 {
		return fmt.Errorf("ingest.burst must be positive")
	}
	if c.Auth.Enabled && len(c.Auth.OperatorKeyHashes) == 0 {
		return fmt.Errorf("auth.enabled requires at least one operator key hash")
	}
	if c.Telemetry.Enabled && c.Telemetry.Interval <= 0 {
		return fmt.Errorf("telemetry.interval must be positive")
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the FLEET_ prefix:
// - FLEET_PORT
// - FLEET_DATABASE_URL
// - FLEET_REDIS_URL
// - FLEET_INGEST_RATE_LIMIT
// - FLEET_LOG_LEVEL
// - FLEET_AUTH_ENABLED
// - FLEET_TELEMETRY_ENABLED
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FLEET_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("FLEET_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("FLEET_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("FLEET_INGEST_RATE_LIMIT"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			c.Ingest.RateLimit = rps
		}
	}
	if v := os.Getenv("FLEET_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FLEET_AUTH_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Auth.Enabled = enabled
		}
	}
	if v := os.Getenv("FLEET_TELEMETRY_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = enabled
		}
	}
}

// SecretResolver turns a secret reference into its value.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretRefPrefix marks config values that must be resolved before use.
const SecretRefPrefix = "op://"

// ResolveSecrets replaces secret references in connection URLs.
// Values without the op:// prefix are left alone.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretResolver) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"database.url", &c.Database.URL},
		{"redis.url", &c.Redis.URL},
	}
	for _, f := range fields {
		if !strings.HasPrefix(*f.value, SecretRefPrefix) {
			continue
		}
		if r == nil {
			return fmt.Errorf("%s is a secret reference but no secret backend is configured", f.name)
		}
		v, err := r.Resolve(ctx, *f.value)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", f.name, err)
		}
		*f.value = v
	}
	return nil
}

// HasSecretRefs reports whether any value needs a secret backend.
func (c *Config) HasSecretRefs() bool {
	return strings.HasPrefix(c.Database.URL, SecretRefPrefix) ||
		strings.HasPrefix(c.Redis.URL, SecretRefPrefix)
}
