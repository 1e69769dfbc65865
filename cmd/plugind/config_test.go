package main

import (
	"testing"
	"time"

	"riverforge/internal/settings"
)

func envMap(values map[string]string) func(string) string {
	return func(name string) string {
		return values[name]
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil, envMap(nil))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9460" {
		t.Fatalf("addr = %q, want :9460", cfg.Addr)
	}
	if cfg.SettingsDriver != "memory" {
		t.Fatalf("settings driver = %q, want memory", cfg.SettingsDriver)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("log format = %q, want json", cfg.LogFormat)
	}
	if cfg.CacheEnabled {
		t.Fatal("cache should be disabled without a Redis address")
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("shutdown timeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoadConfigEnvFallbacks(t *testing.T) {
	cfg, err := loadConfig(nil, envMap(map[string]string{
		"RIVERFORGE_ADDR":                ":8080",
		"RIVERFORGE_SETTINGS_DRIVER":     "postgres",
		"RIVERFORGE_POSTGRES_DSN":        "postgres://plugin@localhost/riverforge",
		"RIVERFORGE_POSTGRES_MAX_CONNS":  "8",
		"RIVERFORGE_CACHE_REDIS_ADDR":    "localhost:6379",
		"RIVERFORGE_CACHE_TTL":           "30s",
		"RIVERFORGE_RATE_RESOLVE_LIMIT":  "100",
		"RIVERFORGE_RATE_RESOLVE_WINDOW": "10s",
		"RIVERFORGE_API_TOKEN_HASHES":    "hash-a, hash-b",
	}))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q, want :8080", cfg.Addr)
	}
	if cfg.SettingsDriver != "postgres" {
		t.Fatalf("settings driver = %q, want postgres", cfg.SettingsDriver)
	}
	storeCfg := settings.PostgresConfig{MaxConnections: int32(cfg.PostgresMaxConns)}
	if storeCfg.MaxConnections != 8 {
		t.Fatalf("postgres max conns = %d, want 8", storeCfg.MaxConnections)
	}
	if !cfg.CacheEnabled || cfg.CacheTTL != 30*time.Second {
		t.Fatalf("cache enabled = %v ttl = %v, want enabled 30s", cfg.CacheEnabled, cfg.CacheTTL)
	}
	if cfg.ResolveLimit != 100 || cfg.ResolveWindow != 10*time.Second {
		t.Fatalf("resolve limit = %d window = %v", cfg.ResolveLimit, cfg.ResolveWindow)
	}
	if len(cfg.APITokenHashes) != 2 || cfg.APITokenHashes[1] != "hash-b" {
		t.Fatalf("token hashes = %v", cfg.APITokenHashes)
	}
}

func TestLoadConfigFlagsWinOverEnv(t *testing.T) {
	cfg, err := loadConfig([]string{"-addr", ":7000", "-rate-global-rps", "25"}, envMap(map[string]string{
		"RIVERFORGE_ADDR":            ":8080",
		"RIVERFORGE_RATE_GLOBAL_RPS": "50",
	}))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("addr = %q, want flag value :7000", cfg.Addr)
	}
	if cfg.GlobalRPS != 25 {
		t.Fatalf("global rps = %v, want flag value 25", cfg.GlobalRPS)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	if _, err := loadConfig(nil, envMap(map[string]string{
		"RIVERFORGE_SETTINGS_DRIVER": "postgres",
	})); err == nil {
		t.Fatal("expected error for postgres driver without DSN")
	}

	if _, err := loadConfig(nil, envMap(map[string]string{
		"RIVERFORGE_SETTINGS_DRIVER": "etcd",
	})); err == nil {
		t.Fatal("expected error for unknown settings driver")
	}

	if _, err := loadConfig([]string{"-tls-cert", "cert.pem"}, envMap(nil)); err == nil {
		t.Fatal("expected error for cert without key")
	}

	if _, err := loadConfig(nil, envMap(map[string]string{
		"RIVERFORGE_CACHE_TTL": "soon",
	})); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
