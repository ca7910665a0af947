package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Redis.URL != "" {
		t.Error("redis should be disabled by default")
	}
	if cfg.Ingest.RateLimit != DefaultIngestRateLimit {
		t.Errorf("RateLimit = %v, want %v", cfg.Ingest.RateLimit, DefaultIngestRateLimit)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
server:
  port: 9090
  write_timeout: 45s
database:
  url: postgres://db:5432/fleet
  max_conns: 20
redis:
  url: redis://cache:6379/1
ingest:
  rate_limit: 5.5
  burst: 10
auth:
  enabled: true
  operator_key_hashes:
    - "$2a$10$abcdefghijklmnopqrstuv"
telemetry:
  enabled: true
  interval: 15s
log:
  level: debug
`)
	cfg, err := Parse("test.yaml", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("WriteTimeout = %v, want 45s", cfg.Server.WriteTimeout)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout should keep default, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("MaxConns = %d, want 20", cfg.Database.MaxConns)
	}
	if !cfg.Database.Migrate {
		t.Error("Migrate should keep default true")
	}
	if cfg.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.Ingest.RateLimit != 5.5 || cfg.Ingest.Burst != 10 {
		t.Errorf("Ingest = %+v", cfg.Ingest)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.OperatorKeyHashes) != 1 {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Interval != 15*time.Second || cfg.Telemetry.Output != "stdout" {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown top-level key", "servers:\n  port: 80\n"},
		{"unknown nested key", "server:\n  listen: 80\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"port wrong type", "server:\n  port: eighty\n"},
		{"bad duration", "server:\n  read_timeout: soon\n"},
		{"empty database url", "database:\n  url: \"\"\n"},
		{"zero rate limit", "ingest:\n  rate_limit: 0\n"},
		{"unknown log level", "log:\n  level: verbose\n"},
		{"bad telemetry interval", "telemetry:\n  interval: often\n"},
		{"plaintext operator key", "auth:\n  operator_key_hashes: [hunter2]\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("bad.yaml", []byte(tt.yaml)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Port = %d, want 8181", cfg.Server.Port)
	}

	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FLEET_PORT", "7070")
	t.Setenv("FLEET_DATABASE_URL", "postgres://env/fleet")
	t.Setenv("FLEET_REDIS_URL", "redis://env:6379")
	t.Setenv("FLEET_INGEST_RATE_LIMIT", "12.5")
	t.Setenv("FLEET_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://env/fleet" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Redis.URL != "redis://env:6379" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.Ingest.RateLimit != 12.5 {
		t.Errorf("RateLimit = %v", cfg.Ingest.RateLimit)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv("FLEET_PORT", "not-a-port")
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"missing database", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad rate", func(c *Config) { c.Ingest.RateLimit = -1 }, "rate_limit"},
		{"bad burst", func(c *Config) { c.Ingest.Burst = 0 }, "burst"},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }, "operator key"},
		{"telemetry without interval", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Interval = 0
		}, "telemetry.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

type fakeResolver struct {
	values map[string]string
	calls  int
}

func (f *fakeResolver) Resolve(_ context.Context, ref string) (string, error) {
	f.calls++
	v, ok := f.values[ref]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.URL = "op://fleet/postgres/url"
	cfg.Redis.URL = "redis://plain:6379"

	if !cfg.HasSecretRefs() {
		t.Fatal("expected HasSecretRefs to be true")
	}

	r := &fakeResolver{values: map[string]string{
		"op://fleet/postgres/url": "postgres://secret/fleet",
	}}
	if err := cfg.ResolveSecrets(context.Background(), r); err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if cfg.Database.URL != "postgres://secret/fleet" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Redis.URL != "redis://plain:6379" {
		t.Errorf("plain value should be untouched, got %q", cfg.Redis.URL)
	}
	if r.calls != 1 {
		t.Errorf("resolver called %d times, want 1", r.calls)
	}
	if cfg.HasSecretRefs() {
		t.Error("no refs should remain")
	}
}

func TestResolveSecretsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.URL = "op://fleet/redis/url"

	if err := cfg.ResolveSecrets(context.Background(), nil); err == nil {
		t.Error("expected error without resolver")
	}

	err := cfg.ResolveSecrets(context.Background(), &fakeResolver{})
	if err == nil || !strings.Contains(err.Error(), "redis.url") {
		t.Errorf("expected redis.url resolution error, got %v", err)
	}
}
