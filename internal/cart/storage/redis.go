package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 90 * 24 * time.Hour

type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage stores carts as plain string values. Every write refreshes
// the expiry so abandoned carts age out like the Mongo TTL index.
func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStorage{client: client, ttl: ttl}
}

func (r *RedisStorage) Get(ctx context.Context, scope domain.Scope) ([]byte, error) {
	data, err := r.client.Get(ctx, redisKey(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) Set(ctx context.Context, scope domain.Scope, value []byte) error {
	if err := r.client.Set(ctx, redisKey(scope), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, scope domain.Scope) error {
	if err := r.client.Del(ctx, redisKey(scope)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func redisKey(scope domain.Scope) string {
	return fmt.Sprintf("pharmacy:%s", scope)
}
