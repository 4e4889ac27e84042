package credential

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreluxe/portal/internal/infra"
)

const (
	fieldCount       = "count"
	fieldLockedUntil = "locked_until"
	attemptRetention = 24 * time.Hour
)

type memoryLockoutStore struct {
	mu      sync.Mutex
	entries map[string]Attempts
}

// NewMemoryLockoutStore keeps attempts in process.
func NewMemoryLockoutStore() LockoutStore {
	return &memoryLockoutStore{entries: make(map[string]Attempts)}
}

func (s *memoryLockoutStore) Get(_ context.Context, client string) (Attempts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[client], nil
}

func (s *memoryLockoutStore) Increment(_ context.Context, client string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.entries[client]
	a.Count++
	s.entries[client] = a
	return a.Count, nil
}

func (s *memoryLockoutStore) Lock(_ context.Context, client string, until time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[client] = Attempts{LockedUntil: until}
	return nil
}

func (s *memoryLockoutStore) Delete(_ context.Context, client string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, client)
	return nil
}

// RedisLockoutStore keeps attempts in a Redis hash holding the failure count
// and the lock deadline in unix milliseconds.
type RedisLockoutStore struct {
	rdb *redis.Client
}

// NewRedisLockoutStore builds a Redis-backed LockoutStore.
func NewRedisLockoutStore(rdb *redis.Client) *RedisLockoutStore {
	return &RedisLockoutStore{rdb: rdb}
}

func lockoutKey(client string) string { return infra.Key("lockout", client) }

func (s *RedisLockoutStore) Get(ctx context.Context, client string) (Attempts, error) {
	vals, err := s.rdb.HGetAll(ctx, lockoutKey(client)).Result()
	if err != nil {
		return Attempts{}, fmt.Errorf("%w: %w", ErrLockoutUnavailable, err)
	}
	var a Attempts
	if v, ok := vals[fieldCount]; ok {
		a.Count, _ = strconv.Atoi(v)
	}
	if v, ok := vals[fieldLockedUntil]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			a.LockedUntil = time.UnixMilli(ms)
		}
	}
	return a, nil
}

func (s *RedisLockoutStore) Increment(ctx context.Context, client string) (int, error) {
	key := lockoutKey(client)
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, fieldCount, 1)
		pipe.Expire(ctx, key, attemptRetention)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLockoutUnavailable, err)
	}
	return int(incr.Val()), nil
}

func (s *RedisLockoutStore) Lock(ctx context.Context, client string, until time.Time, ttl time.Duration) error {
	key := lockoutKey(client)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldCount, 0, fieldLockedUntil, until.UnixMilli())
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockoutUnavailable, err)
	}
	return nil
}

func (s *RedisLockoutStore) Delete(ctx context.Context, client string) error {
	if err := s.rdb.Del(ctx, lockoutKey(client)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLockoutUnavailable, err)
	}
	return nil
}
