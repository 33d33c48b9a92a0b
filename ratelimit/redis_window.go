package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow adapts a go-redis client to the Window interface.
type RedisWindow struct {
	Client redis.Cmdable
}

func (w RedisWindow) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	return w.Client.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
}

func (w RedisWindow) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return w.Client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (w RedisWindow) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return w.Client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (w RedisWindow) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return w.Client.Expire(ctx, key, ttl).Err()
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
