package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore backs the consumer's duplicate guard with SET NX keys.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(c *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: c}
}

func (r *RedisIdempotencyStore) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, expiration).Result()
}

func (r *RedisIdempotencyStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
