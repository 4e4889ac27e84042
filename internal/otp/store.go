package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreluxe/portal/internal/infra"
)

// Store persists at most one challenge per client context.
type Store interface {
	Get(ctx context.Context, client string) (Challenge, error)
	Put(ctx context.Context, client string, c Challenge, ttl time.Duration) error
	Delete(ctx context.Context, client string) error
}

type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryStore keeps challenges in process.
func NewMemoryStore() Store {
	return &memoryStore{challenges: make(map[string]Challenge)}
}

func (s *memoryStore) Get(_ context.Context, client string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[client]
	if !ok {
		return Challenge{}, ErrNoChallenge
	}
	return c, nil
}

func (s *memoryStore) Put(_ context.Context, client string, c Challenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[client] = c
	return nil
}

func (s *memoryStore) Delete(_ context.Context, client string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, client)
	return nil
}

// RedisStore keeps challenges as JSON strings under otp:{client}.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore builds a Redis-backed challenge store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func challengeKey(client string) string { return infra.Key("otp", client) }

func (s *RedisStore) Get(ctx context.Context, client string) (Challenge, error) {
	raw, err := s.rdb.Get(ctx, challengeKey(client)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, ErrNoChallenge
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("load otp challenge: %w", err)
	}
	var c Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		s.rdb.Del(ctx, challengeKey(client))
		return Challenge{}, ErrNoChallenge
	}
	return c, nil
}

func (s *RedisStore) Put(ctx context.Context, client string, c Challenge, ttl time.Duration) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.rdb.Set(ctx, challengeKey(client), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store otp challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, client string) error {
	if err := s.rdb.Del(ctx, challengeKey(client)).Err(); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}
