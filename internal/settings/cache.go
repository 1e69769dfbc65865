package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL       = time.Minute
	defaultInvalidChannel = "riverforge:settings"
	defaultCachePrefix    = "riverforge:setting:"
)

// CacheConfig configures the Redis read-through cache in front of a slower
// Provider. Invalidation messages on Channel carry the changed setting key;
// the literal "*" flushes nothing here but still triggers OnInvalidate, which
// the manager uses to schedule a full reload.
type CacheConfig struct {
	Addr         string
	Addrs        []string
	Username     string
	Password     string
	MasterName   string
	TTL          time.Duration
	Channel      string
	Prefix       string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	Logger       *slog.Logger

	// OnInvalidate is called after a published key has been dropped from the
	// cache. Optional.
	OnInvalidate func(key string)
}

// CachedProvider wraps another Provider with a Redis cache plus a pub/sub
// invalidation channel.
type CachedProvider struct {
	client       redis.UniversalClient
	inner        Provider
	ttl          time.Duration
	channel      string
	prefix       string
	logger       *slog.Logger
	onInvalidate func(key string)
}

// NewCachedProvider connects to Redis and wraps inner with a read-through
// cache. The caller is responsible for ensuring the Redis instance is
// reachable.
func NewCachedProvider(inner Provider, cfg CacheConfig) (*CachedProvider, error) {
	if inner == nil {
		return nil, errors.New("inner provider is required")
	}
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})

	provider := &CachedProvider{
		client:       client,
		inner:        inner,
		ttl:          cfg.TTL,
		channel:      strings.TrimSpace(cfg.Channel),
		prefix:       cfg.Prefix,
		logger:       cfg.Logger,
		onInvalidate: cfg.OnInvalidate,
	}
	if provider.ttl <= 0 {
		provider.ttl = defaultCacheTTL
	}
	if provider.channel == "" {
		provider.channel = defaultInvalidChannel
	}
	if provider.prefix == "" {
		provider.prefix = defaultCachePrefix
	}
	if provider.logger == nil {
		provider.logger = slog.Default()
	}
	return provider, nil
}

// Lookup serves from the cache when possible and falls back to the inner
// provider, caching hits. Cache failures degrade to the inner provider rather
// than failing the lookup.
func (p *CachedProvider) Lookup(ctx context.Context, key string) (string, bool, error) {
	cached, err := p.client.Get(ctx, p.prefix+key).Result()
	if err == nil {
		return cached, true, nil
	}
	if !errors.Is(err, redis.Nil) {
		p.logger.Warn("settings cache read failed", "key", key, "error", err)
	}

	value, ok, err := p.inner.Lookup(ctx, key)
	if err != nil || !ok {
		return value, ok, err
	}
	if setErr := p.client.Set(ctx, p.prefix+key, value, p.ttl).Err(); setErr != nil {
		p.logger.Warn("settings cache write failed", "key", key, "error", setErr)
	}
	return value, true, nil
}

// Invalidate drops the key from the cache and notifies every subscriber,
// including this process.
func (p *CachedProvider) Invalidate(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, p.prefix+key).Err(); err != nil {
		return fmt.Errorf("invalidate setting %s: %w", key, err)
	}
	if err := p.client.Publish(ctx, p.channel, key).Err(); err != nil {
		return fmt.Errorf("publish invalidation for %s: %w", key, err)
	}
	return nil
}

// Watch blocks on the invalidation channel until the context is cancelled,
// dropping published keys from the cache and forwarding them to OnInvalidate.
func (p *CachedProvider) Watch(ctx context.Context) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			key := strings.TrimSpace(msg.Payload)
			if key == "" {
				continue
			}
			if key != "*" {
				if err := p.client.Del(ctx, p.prefix+key).Err(); err != nil {
					p.logger.Warn("settings cache invalidation failed", "key", key, "error", err)
				}
			}
			if p.onInvalidate != nil {
				p.onInvalidate(key)
			}
		}
	}
}

// Ping probes cache connectivity for health checks.
func (p *CachedProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (p *CachedProvider) Close() error {
	return p.client.Close()
}
