package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oguzhankir/ai-gateway/gwerrors"
	"github.com/oguzhankir/ai-gateway/ratelimit"
)

// fakeWindow is a minimal in-process sorted-set stand-in, narrow enough to
// exercise the sliding-window algorithm without a live Redis.
type fakeWindow struct {
	mu      sync.Mutex
	members map[string][]float64
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{members: make(map[string][]float64)}
}

func (f *fakeWindow) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, score := range f.members[key] {
		if score >= min && score <= max {
			n++
		}
	}
	return n, nil
}

func (f *fakeWindow) ZAdd(_ context.Context, key string, score float64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[key] = append(f.members[key], score)
	return nil
}

func (f *fakeWindow) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.members[key][:0]
	for _, score := range f.members[key] {
		if score < min || score > max {
			kept = append(kept, score)
		}
	}
	f.members[key] = kept
	return nil
}

func (f *fakeWindow) Expire(context.Context, string, time.Duration) error { return nil }

func TestLimiterAdmitsUpToLimitAndRejectsNext(t *testing.T) {
	store := newFakeWindow()
	limiter := ratelimit.New(store, true, map[string]ratelimit.Tier{
		"default": {RequestsPerMinute: 3, RequestsPerHour: 1000},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Check(ctx, "user-1", "default"); err != nil {
			t.Fatalf("request %d: expected admission, got %v", i, err)
		}
	}

	err := limiter.Check(ctx, "user-1", "default")
	if err == nil {
		t.Fatalf("expected the 4th request to be rejected")
	}
	var rle *gwerrors.RateLimitExceeded
	if !asRateLimitExceeded(err, &rle) {
		t.Fatalf("expected RateLimitExceeded, got %T: %v", err, err)
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > 60*time.Second+time.Second {
		t.Fatalf("expected retry_after within (0, 61s], got %v", rle.RetryAfter)
	}
}

func TestLimiterDisabledAlwaysAdmits(t *testing.T) {
	store := newFakeWindow()
	limiter := ratelimit.New(store, false, map[string]ratelimit.Tier{
		"default": {RequestsPerMinute: 0, RequestsPerHour: 0},
	})
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := limiter.Check(ctx, "user-1", "default"); err != nil {
			t.Fatalf("disabled limiter must always admit, got %v", err)
		}
	}
}

func TestLimiterIsolatesPrincipals(t *testing.T) {
	store := newFakeWindow()
	limiter := ratelimit.New(store, true, map[string]ratelimit.Tier{
		"default": {RequestsPerMinute: 1, RequestsPerHour: 1000},
	})
	ctx := context.Background()

	if err := limiter.Check(ctx, "user-1", "default"); err != nil {
		t.Fatalf("user-1 first request should admit: %v", err)
	}
	if err := limiter.Check(ctx, "user-2", "default"); err != nil {
		t.Fatalf("user-2 first request should admit independently: %v", err)
	}
	if err := limiter.Check(ctx, "user-1", "default"); err == nil {
		t.Fatalf("user-1 second request should be rejected")
	}
}

func asRateLimitExceeded(err error, target **gwerrors.RateLimitExceeded) bool {
	if e, ok := err.(*gwerrors.RateLimitExceeded); ok {
		*target = e
		return true
	}
	return false
}
