package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores raw feed bodies keyed by (resource identity, feed kind).
// Entries outlive their freshness window so that callers can fall back to
// stale data when the upstream feed is unreachable: Get reports fresh=false
// for such entries instead of dropping them.
type Cache interface {
	Get(ctx context.Context, key string) (val []byte, fresh bool, err error)
	Set(ctx context.Context, key string, val []byte) error
	Invalidate(ctx context.Context, key string) error
}

type memoryEntry struct {
	val      []byte
	storedAt time.Time
}

// MemoryCache is the in-process cache implementation. The clock is injected
// so tests can move time past the freshness window.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	fresh := c.now().Sub(e.storedAt) < c.ttl
	return e.val, fresh, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{val: val, storedAt: c.now()}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// RedisCache shares the feed cache between processes. The body is stored
// without expiry and freshness is tracked by a marker key with the TTL, so
// stale bodies stay readable for the fetch-failure fallback.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func freshKey(key string) string { return key + ":fresh" }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	n, err := c.client.Exists(ctx, freshKey(key)).Result()
	if err != nil {
		return nil, false, err
	}
	return val, n > 0, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, val, 0)
	pipe.Set(ctx, freshKey(key), "1", c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key, freshKey(key)).Err()
}
