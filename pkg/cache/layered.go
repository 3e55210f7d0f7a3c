package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache reads through an in-process layer in front of Redis. Writes
// go to Redis first. Locks and existence checks always hit Redis so replicas
// agree on them.
type LayeredCache struct {
	l1    *MemoryCache
	l2    *RedisCache
	l1TTL time.Duration
}

func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := LayeredConfig{MemoryMaxSize: 1000, MemoryTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize), WithMemoryCleanup(cfg.MemoryTTL)),
		l2:    l2,
		l1TTL: cfg.MemoryTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	ttl := lc.l1TTL
	if expiration > 0 && expiration < ttl {
		ttl = expiration
	}
	return lc.l1.Set(ctx, key, value, ttl)
}

// Get serves from memory when possible. A Redis hit is copied into memory
// as raw bytes so the next read decodes the same payload.
func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	err := lc.l1.Get(ctx, key, dest)
	if err == nil || !errors.Is(err, ErrCacheMiss) {
		return err
	}
	var raw []byte
	if err := lc.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, raw, lc.l1TTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close stops the memory layer and closes the Redis connection.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
