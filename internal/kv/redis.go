// Package kv is the key-value store backing sessions and login throttling.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account_service/internal/config"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) (bool, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
	Close() error
}

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings once. Commands are never retried.
func NewRedisStore(ctx context.Context, cfg config.Redis) (*RedisStore, error) {
	const op = "kv.NewRedisStore"

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Address,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: -1,
	})

	s := &RedisStore{client: client}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	const op = "kv.Get"

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "kv.Set"

	status, err := s.client.Set(ctx, key, value, ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != "OK" {
		return fmt.Errorf("%s: unexpected reply %q", op, status)
	}

	return nil
}

func (s *RedisStore) Del(ctx context.Context, key string) (bool, error) {
	const op = "kv.Del"

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	const op = "kv.HIncrBy"

	v, err := s.client.HIncrBy(ctx, key, field, n).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	const op = "kv.HGetAll"

	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return m, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "kv.Expire"

	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// TTL returns the remaining time to live. A missing key yields ErrNotFound,
// a key without expiry yields -1.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	const op = "kv.TTL"

	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if d == -2 {
		return 0, ErrNotFound
	}

	return d, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
