package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/oguzhankir/ai-gateway/config"
	"github.com/redis/go-redis/v9"
)

// Key-prefix constants enforce the cross-subsystem separation called for
// by the shared resource policy: rate limiter, cache, and masking store
// each own a disjoint prefix on the same pooled connection.
const (
	PrefixRateLimit = "rate_limit:"
	PrefixCache     = "cache:"
	PrefixMask      = "mask:"
)

type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Raw exposes the underlying go-redis command interface for subsystems
// (rate limiter, cache, masking store) that need commands beyond Ping.
func (r *Client) Raw() redis.Cmdable { return r.c }

// Close releases the underlying connection pool.
func (r *Client) Close() error { return r.c.Close() }
