package profile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreluxe/portal/internal/infra"
)

// versionTTL outlives every entry so a version never resets under a reader.
const versionTTL = 24 * time.Hour

// Cache holds per-client copies of profile data. Every entry of a client is
// dropped together by Evict, which also bumps the client's version. Set only
// stores when the version still equals the one read before loading v, so a
// read that raced a write cannot put stale data back.
type Cache interface {
	Version(ctx context.Context, client string) (uint64, error)
	Get(ctx context.Context, client, field string, dst any) (bool, error)
	Set(ctx context.Context, client, field string, version uint64, v any) error
	Evict(ctx context.Context, client string) error
}

type memoryCache struct {
	mu       sync.RWMutex
	entries  map[string]map[string][]byte
	versions map[string]uint64
}

// NewMemoryCache builds an in-process cache.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]map[string][]byte), versions: make(map[string]uint64)}
}

func (c *memoryCache) Version(_ context.Context, client string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[client], nil
}

func (c *memoryCache) Get(_ context.Context, client, field string, dst any) (bool, error) {
	c.mu.RLock()
	raw, ok := c.entries[client][field]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memoryCache) Set(_ context.Context, client, field string, version uint64, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[client] != version {
		return nil
	}
	if c.entries[client] == nil {
		c.entries[client] = make(map[string][]byte)
	}
	c.entries[client][field] = raw
	return nil
}

func (c *memoryCache) Evict(_ context.Context, client string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, client)
	c.versions[client]++
	return nil
}

// RedisCache stores a client's entries as fields of one hash next to a
// version counter.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache builds a Redis-backed cache whose hashes expire after ttl.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(client string) string   { return infra.Key("profile", client) }
func versionKey(client string) string { return infra.Key("profile", client, "version") }

func (c *RedisCache) Version(ctx context.Context, client string) (uint64, error) {
	return readVersion(ctx, c.rdb, client)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, cmd getter, client string) (uint64, error) {
	v, err := cmd.Get(ctx, versionKey(client)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisCache) Get(ctx context.Context, client, field string, dst any) (bool, error) {
	raw, err := c.rdb.HGet(ctx, cacheKey(client), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *RedisCache) Set(ctx context.Context, client, field string, version uint64, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := cacheKey(client)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readVersion(ctx, tx, client)
		if err != nil {
			return err
		}
		if cur != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, raw)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, versionKey(client))
	// An eviction landed between the check and the write.
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisCache) Evict(ctx context.Context, client string) error {
	vkey := versionKey(client)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(client))
		pipe.Incr(ctx, vkey)
		pipe.Expire(ctx, vkey, versionTTL)
		return nil
	})
	return err
}
