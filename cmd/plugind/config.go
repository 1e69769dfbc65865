package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "RIVERFORGE_"

type config struct {
	Addr    string
	TLSCert string
	TLSKey  string

	LogLevel  string
	LogFormat string

	SettingsDriver   string
	PostgresDSN      string
	PostgresMaxConns int
	PostgresAppName  string

	CacheEnabled  bool
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisChannel  string
	CacheTTL      time.Duration

	APITokenHashes []string

	GlobalRPS     float64
	GlobalBurst   int
	ResolveLimit  int
	ResolveWindow time.Duration

	ShutdownTimeout time.Duration
}

func defaultConfig() config {
	return config{
		Addr:            ":9460",
		LogLevel:        "info",
		LogFormat:       "json",
		SettingsDriver:  "memory",
		PostgresAppName: "riverforge",
		CacheTTL:        time.Minute,
		ResolveWindow:   time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// loadConfig resolves the runtime configuration from flags with environment
// fallbacks. Flags win over environment variables; both win over defaults.
func loadConfig(args []string, getenv func(string) string) (config, error) {
	cfg := defaultConfig()

	fs := flag.NewFlagSet("plugind", flag.ContinueOnError)
	addr := fs.String("addr", "", "HTTP listen address")
	tlsCert := fs.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := fs.String("tls-key", "", "path to TLS private key file")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "log format (json or text)")
	settingsDriver := fs.String("settings-driver", "", "settings driver (memory or postgres)")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres connection string for the settings store")
	postgresMaxConns := fs.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresAppName := fs.String("postgres-app-name", "", "application_name reported to Postgres")
	redisAddr := fs.String("cache-redis-addr", "", "Redis address for the settings cache")
	redisUsername := fs.String("cache-redis-username", "", "Redis username for the settings cache")
	redisPassword := fs.String("cache-redis-password", "", "Redis password for the settings cache")
	redisChannel := fs.String("cache-redis-channel", "", "Redis channel for settings invalidations")
	cacheTTL := fs.Duration("cache-ttl", 0, "settings cache entry lifetime")
	apiTokenHashes := fs.String("api-token-hashes", "", "comma separated pbkdf2 hashes of accepted API tokens")
	globalRPS := fs.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := fs.Int("rate-global-burst", 0, "global rate limit burst allowance")
	resolveLimit := fs.Int("rate-resolve-limit", 0, "maximum encoder-options requests per window for a single client")
	resolveWindow := fs.Duration("rate-resolve-window", 0, "window for counting encoder-options requests")
	shutdownTimeout := fs.Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	env := func(name string) string {
		return strings.TrimSpace(getenv(envPrefix + name))
	}

	cfg.Addr = firstNonEmpty(*addr, env("ADDR"), cfg.Addr)
	cfg.TLSCert = firstNonEmpty(*tlsCert, env("TLS_CERT"))
	cfg.TLSKey = firstNonEmpty(*tlsKey, env("TLS_KEY"))
	cfg.LogLevel = firstNonEmpty(*logLevel, env("LOG_LEVEL"), cfg.LogLevel)
	cfg.LogFormat = firstNonEmpty(*logFormat, env("LOG_FORMAT"), cfg.LogFormat)
	cfg.SettingsDriver = strings.ToLower(firstNonEmpty(*settingsDriver, env("SETTINGS_DRIVER"), cfg.SettingsDriver))
	cfg.PostgresDSN = firstNonEmpty(*postgresDSN, env("POSTGRES_DSN"))
	cfg.PostgresAppName = firstNonEmpty(*postgresAppName, env("POSTGRES_APP_NAME"), cfg.PostgresAppName)
	cfg.RedisAddr = firstNonEmpty(*redisAddr, env("CACHE_REDIS_ADDR"))
	cfg.RedisUsername = firstNonEmpty(*redisUsername, env("CACHE_REDIS_USERNAME"))
	cfg.RedisPassword = firstNonEmpty(*redisPassword, env("CACHE_REDIS_PASSWORD"))
	cfg.RedisChannel = firstNonEmpty(*redisChannel, env("CACHE_REDIS_CHANNEL"))
	cfg.CacheEnabled = cfg.RedisAddr != ""

	var err error
	if cfg.PostgresMaxConns, err = resolveInt(*postgresMaxConns, env("POSTGRES_MAX_CONNS"), cfg.PostgresMaxConns); err != nil {
		return config{}, fmt.Errorf("invalid %sPOSTGRES_MAX_CONNS: %w", envPrefix, err)
	}
	if cfg.CacheTTL, err = resolveDuration(*cacheTTL, env("CACHE_TTL"), cfg.CacheTTL); err != nil {
		return config{}, fmt.Errorf("invalid %sCACHE_TTL: %w", envPrefix, err)
	}
	if cfg.GlobalRPS, err = resolveFloat(*globalRPS, env("RATE_GLOBAL_RPS"), cfg.GlobalRPS); err != nil {
		return config{}, fmt.Errorf("invalid %sRATE_GLOBAL_RPS: %w", envPrefix, err)
	}
	if cfg.GlobalBurst, err = resolveInt(*globalBurst, env("RATE_GLOBAL_BURST"), cfg.GlobalBurst); err != nil {
		return config{}, fmt.Errorf("invalid %sRATE_GLOBAL_BURST: %w", envPrefix, err)
	}
	if cfg.ResolveLimit, err = resolveInt(*resolveLimit, env("RATE_RESOLVE_LIMIT"), cfg.ResolveLimit); err != nil {
		return config{}, fmt.Errorf("invalid %sRATE_RESOLVE_LIMIT: %w", envPrefix, err)
	}
	if cfg.ResolveWindow, err = resolveDuration(*resolveWindow, env("RATE_RESOLVE_WINDOW"), cfg.ResolveWindow); err != nil {
		return config{}, fmt.Errorf("invalid %sRATE_RESOLVE_WINDOW: %w", envPrefix, err)
	}
	if cfg.ShutdownTimeout, err = resolveDuration(*shutdownTimeout, env("SHUTDOWN_TIMEOUT"), cfg.ShutdownTimeout); err != nil {
		return config{}, fmt.Errorf("invalid %sSHUTDOWN_TIMEOUT: %w", envPrefix, err)
	}

	cfg.APITokenHashes = splitList(firstNonEmpty(*apiTokenHashes, env("API_TOKEN_HASHES")))

	switch cfg.SettingsDriver {
	case "memory":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return config{}, fmt.Errorf("settings driver postgres requires %sPOSTGRES_DSN", envPrefix)
		}
	default:
		return config{}, fmt.Errorf("unknown settings driver %q", cfg.SettingsDriver)
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return config{}, fmt.Errorf("both TLS cert and key must be provided")
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, envValue string, fallback int) (int, error) {
	if flagValue != 0 {
		return flagValue, nil
	}
	if envValue == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(envValue)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func resolveFloat(flagValue float64, envValue string, fallback float64) (float64, error) {
	if flagValue != 0 {
		return flagValue, nil
	}
	if envValue == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(envValue, 64)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func resolveDuration(flagValue time.Duration, envValue string, fallback time.Duration) (time.Duration, error) {
	if flagValue != 0 {
		return flagValue, nil
	}
	if envValue == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(envValue)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return kept
}
