package pii

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore adapts a go-redis client to the Store interface Masker needs.
type RedisStore struct {
	Client redis.Cmdable
}

func (s RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s RedisStore) Del(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}
