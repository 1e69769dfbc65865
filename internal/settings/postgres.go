package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS plugin_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresConfig controls the Postgres-backed settings store.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
	ApplicationName string
}

// PostgresProvider stores plugin settings in a single key/value table.
type PostgresProvider struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresProvider opens a pool against the configured DSN and ensures the
// settings table exists.
func NewPostgresProvider(ctx context.Context, cfg PostgresConfig) (*PostgresProvider, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	provider := &PostgresProvider{pool: pool, queryTimeout: cfg.QueryTimeout}
	if provider.queryTimeout <= 0 {
		provider.queryTimeout = 5 * time.Second
	}
	if err := provider.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return provider, nil
}

func (p *PostgresProvider) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	if _, err := p.pool.Exec(ctx, settingsSchema); err != nil {
		return fmt.Errorf("ensure settings schema: %w", err)
	}
	return nil
}

func (p *PostgresProvider) Lookup(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM plugin_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup setting %s: %w", key, err)
	}
	return value, true, nil
}

// Store upserts a setting. The host writes settings through this path when a
// user saves the plugin configuration form.
func (p *PostgresProvider) Store(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO plugin_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

// Remove deletes a setting. Missing keys are not an error.
func (p *PostgresProvider) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	if _, err := p.pool.Exec(ctx, `DELETE FROM plugin_settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("remove setting %s: %w", key, err)
	}
	return nil
}

// Ping probes database connectivity for health checks.
func (p *PostgresProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases the underlying pool, bounded by the context deadline.
func (p *PostgresProvider) Close(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
