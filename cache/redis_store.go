package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore adapts a go-redis client to the cache Store interface.
type RedisStore struct {
	Client redis.Cmdable
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

func (s RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

// ScanKeys walks the keyspace matching pattern in cursor-based batches,
// mirroring the source's SCAN cache:* loop rather than KEYS (which would
// block the server on a large keyspace).
func (s RedisStore) ScanKeys(ctx context.Context, pattern string, batchSize int64, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.Client.Scan(ctx, cursor, pattern, batchSize).Result()
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := fn(k); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
