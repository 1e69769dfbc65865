// Command plugind serves the encoder plugin HTTP API for the transcoding
// host: ladder resolution, profile listing, and settings reloads.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"riverforge/internal/api"
	"riverforge/internal/observability/logging"
	"riverforge/internal/observability/metrics"
	"riverforge/internal/plugin"
	"riverforge/internal/server"
	"riverforge/internal/settings"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		logging.Init(logging.Config{}).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	recorder := metrics.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, recorder); err != nil {
		logger.Error("plugind exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger, recorder *metrics.Recorder) error {
	invalidations := make(chan string, 1)
	notify := func(key string) {
		select {
		case invalidations <- key:
		default:
		}
	}

	provider, probes, cache, cleanup, err := buildProvider(ctx, cfg, logger, notify)
	if err != nil {
		return err
	}
	defer cleanup()

	manager, err := plugin.NewManager(plugin.ManagerConfig{
		Provider: provider,
		Metrics:  recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := manager.Reload(ctx); err != nil {
		return err
	}

	handler := api.NewHandler(manager, api.NewTokenVerifier(cfg.APITokenHashes), logger)
	handler.Probes = probes

	srv, err := server.New(handler, server.Config{
		Addr: cfg.Addr,
		TLS:  server.TLSConfig{CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     cfg.GlobalRPS,
			GlobalBurst:   cfg.GlobalBurst,
			ResolveLimit:  cfg.ResolveLimit,
			ResolveWindow: cfg.ResolveWindow,
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
		},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
		Metrics:         recorder,
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("plugind listening", "addr", cfg.Addr, "settings_driver", cfg.SettingsDriver)
		return srv.Run(groupCtx)
	})
	if cache != nil {
		group.Go(func() error {
			err := cache.Watch(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case key := <-invalidations:
					if err := manager.Reload(groupCtx); err != nil {
						logger.Warn("reload after invalidation failed", "key", key, "error", err)
					}
				}
			}
		})
	}

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildProvider assembles the settings provider chain: the configured store,
// optionally fronted by the Redis read-through cache. The returned cleanup
// closes whatever was opened.
func buildProvider(ctx context.Context, cfg config, logger *slog.Logger, onInvalidate func(string)) (settings.Provider, []api.ComponentProbe, *settings.CachedProvider, func(), error) {
	var (
		provider settings.Provider
		probes   []api.ComponentProbe
		closers  []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.SettingsDriver {
	case "postgres":
		store, err := settings.NewPostgresProvider(ctx, settings.PostgresConfig{
			DSN:             cfg.PostgresDSN,
			MaxConnections:  int32(cfg.PostgresMaxConns),
			ApplicationName: cfg.PostgresAppName,
		})
		if err != nil {
			return nil, nil, nil, func() {}, err
		}
		closers = append(closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Warn("settings store close failed", "error", err)
			}
		})
		provider = store
		probes = append(probes, api.ComponentProbe{Name: "settings_store", Pinger: store})
	default:
		provider = settings.NewMemoryProvider(nil)
	}

	if !cfg.CacheEnabled {
		return provider, probes, nil, cleanup, nil
	}

	cache, err := settings.NewCachedProvider(provider, settings.CacheConfig{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		Channel:      cfg.RedisChannel,
		TTL:          cfg.CacheTTL,
		Logger:       logger,
		OnInvalidate: onInvalidate,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, func() {}, err
	}
	closers = append(closers, func() {
		if err := cache.Close(); err != nil {
			logger.Warn("settings cache close failed", "error", err)
		}
	})
	probes = append(probes, api.ComponentProbe{Name: "settings_cache", Pinger: cache})
	return cache, probes, cache, cleanup, nil
}
