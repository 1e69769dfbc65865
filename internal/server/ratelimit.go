package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig bounds request volume. The global bucket covers every
// request; the resolve limiter throttles the encoder-options endpoint per
// client so one runaway host process cannot starve the rest. When RedisAddr
// is set the resolve counters are shared across plugin replicas.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	ResolveLimit  int
	ResolveWindow time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

type counterStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type rateLimiter struct {
	global         *tokenBucket
	resolveLimit   int
	resolveWindow  time.Duration
	resolveMu      sync.Mutex
	resolveBuckets map[string]*clientLimiter
	store          counterStore
}

type clientLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		resolveLimit:   cfg.ResolveLimit,
		resolveWindow:  cfg.ResolveWindow,
		resolveBuckets: make(map[string]*clientLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.resolveLimit <= 0 {
		rl.resolveLimit = 0
	}
	if rl.resolveWindow <= 0 {
		rl.resolveWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.resolveLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisCounterStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowResolve gates the encoder-options endpoint per client key.
func (r *rateLimiter) AllowResolve(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.resolveLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(ctx, fmt.Sprintf("riverforge:resolve:%s", key), r.resolveLimit, r.resolveWindow)
	}
	if key == "" {
		key = "unknown"
	}
	r.resolveMu.Lock()
	limiter, exists := r.resolveBuckets[key]
	if !exists {
		rate := float64(r.resolveLimit) / r.resolveWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.resolveWindow.Seconds()
		}
		limiter = &clientLimiter{bucket: newTokenBucket(rate, r.resolveLimit)}
		r.resolveBuckets[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.cleanupLocked()
	r.resolveMu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.resolveBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.resolveWindow)
	for key, limiter := range r.resolveBuckets {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.resolveBuckets, key)
		}
	}
}

type redisCounterStore struct {
	client  *redis.Client
	timeout time.Duration
}

func newRedisCounterStore(addr, password string, timeout time.Duration) *redisCounterStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &redisCounterStore{client: client, timeout: timeout}
}

// Allow increments the window counter and reports the retry delay once the
// limit is exceeded. The expiry is set when the counter is created so the
// window slides per key.
func (s *redisCounterStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if window < time.Second {
			window = time.Second
		}
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}

func (s *redisCounterStore) Close() error {
	return s.client.Close()
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
