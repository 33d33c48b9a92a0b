/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Redis sorted-set sliding-window rate limiter, two
             windows per principal (per-minute, per-hour). Each
             check counts entries already in-window before
             admitting, so the limit is exact rather than
             fixed-bucket approximate.
Root Cause:  A fixed-bucket counter (reset every N seconds) lets a
             caller burst 2x its limit across a bucket boundary; a
             sliding window closes that gap at the cost of a
             ZCOUNT + ZADD + trim per admitted request.
Suitability: L3 — sorted-set windowing is a well-known Redis
             pattern, but the retry-after and trim arithmetic is
             easy to get subtly wrong.
──────────────────────────────────────────────────────────────
*/

// Package ratelimit implements the gateway's Redis-backed sliding-window
// rate limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/oguzhankir/ai-gateway/gwerrors"
)

const keyPrefix = "rate_limit:"

// Window is the minimal Redis sorted-set surface the limiter needs.
type Window interface {
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Tier names a rate-limit bucket with per-minute and per-hour budgets.
type Tier struct {
	RequestsPerMinute int
	RequestsPerHour   int
}

// Limiter enforces per-principal sliding-window rate limits.
type Limiter struct {
	store   Window
	enabled bool
	tiers   map[string]Tier
	now     func() time.Time
}

// New constructs a Limiter. Disabled mode always admits, matching the
// short-circuit behaviour required for check().
func New(store Window, enabled bool, tiers map[string]Tier) *Limiter {
	return &Limiter{store: store, enabled: enabled, tiers: tiers, now: time.Now}
}

const (
	minuteWindow = 60 * time.Second
	hourWindow   = time.Hour
)

// Check admits or rejects a request for principalID under the named tier.
// Admission records the current timestamp into both the per-minute and
// per-hour sorted sets and trims stale entries; rejection leaves state
// untouched.
func (l *Limiter) Check(ctx context.Context, principalID, tierName string) error {
	if !l.enabled {
		return nil
	}

	tier, ok := l.tiers[tierName]
	if !ok {
		tier = l.tiers["default"]
	}

	now := l.now()
	nowSec := float64(now.UnixNano()) / 1e9

	minuteKey := fmt.Sprintf("%s%s:minute", keyPrefix, principalID)
	hourKey := fmt.Sprintf("%s%s:hour", keyPrefix, principalID)

	if tier.RequestsPerMinute > 0 {
		count, err := l.store.ZCount(ctx, minuteKey, nowSec-minuteWindow.Seconds(), nowSec)
		if err != nil {
			return &gwerrors.RateLimitExceeded{RetryAfter: minuteWindow}
		}
		if int(count) >= tier.RequestsPerMinute {
			return &gwerrors.RateLimitExceeded{RetryAfter: retryAfter(now, minuteWindow)}
		}
	}
	if tier.RequestsPerHour > 0 {
		count, err := l.store.ZCount(ctx, hourKey, nowSec-hourWindow.Seconds(), nowSec)
		if err != nil {
			return &gwerrors.RateLimitExceeded{RetryAfter: hourWindow}
		}
		if int(count) >= tier.RequestsPerHour {
			return &gwerrors.RateLimitExceeded{RetryAfter: retryAfter(now, hourWindow)}
		}
	}

	member := fmt.Sprintf("%.6f", nowSec)
	_ = l.store.ZAdd(ctx, minuteKey, nowSec, member)
	_ = l.store.Expire(ctx, minuteKey, minuteWindow)
	_ = l.store.ZRemRangeByScore(ctx, minuteKey, 0, nowSec-minuteWindow.Seconds())

	_ = l.store.ZAdd(ctx, hourKey, nowSec, member)
	_ = l.store.Expire(ctx, hourKey, hourWindow)
	_ = l.store.ZRemRangeByScore(ctx, hourKey, 0, nowSec-hourWindow.Seconds())

	return nil
}

// retryAfter returns the number of seconds until the current window
// boundary rolls, plus one, matching window - (now mod window) + 1.
func retryAfter(now time.Time, window time.Duration) time.Duration {
	windowSec := window.Seconds()
	nowSec := float64(now.Unix())
	rem := windowSec - mod(nowSec, windowSec)
	return time.Duration(rem+1) * time.Second
}

func mod(a, b float64) float64 {
	m := a - float64(int64(a/b))*b
	if m < 0 {
		m += b
	}
	return m
}
