package cache_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oguzhankir/ai-gateway/cache"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string]string)} }

func (f *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeStore) ScanKeys(_ context.Context, _ string, _ int64, fn func(key string) error) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	f.mu.Unlock()
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func fakeEmbed(_ context.Context, text string) ([]float32, error) {
	// Deterministic pseudo-embedding: a single dimension derived from
	// length. With one dimension, any two non-empty prompts have cosine
	// similarity 1.
	return []float32{float32(len(text))}, nil
}

func TestCacheMissThenHit(t *testing.T) {
	store := newFakeStore()
	c := cache.New(store, fakeEmbed, cache.Config{Enabled: true, TTL: time.Hour, SimilarityThreshold: 0.95}, zerolog.Nop())
	ctx := context.Background()

	if _, ok := c.Get(ctx, "what is the capital of France?"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	resp, _ := json.Marshal(map[string]string{"completion": "Paris"})
	c.Set(ctx, "what is the capital of France?", resp)

	got, ok := c.Get(ctx, "what is the capital of France?")
	if !ok {
		t.Fatalf("expected hit after store")
	}
	if string(got) != string(resp) {
		t.Fatalf("expected stored response back, got %s", got)
	}
	if c.Stats().Hits != 1 {
		t.Fatalf("expected 1 hit recorded, got %d", c.Stats().Hits)
	}
}

func TestCacheDisabledAlwaysMisses(t *testing.T) {
	store := newFakeStore()
	c := cache.New(store, fakeEmbed, cache.Config{Enabled: false}, zerolog.Nop())
	ctx := context.Background()
	resp, _ := json.Marshal(map[string]string{"completion": "x"})
	c.Set(ctx, "q", resp)
	if _, ok := c.Get(ctx, "q"); ok {
		t.Fatalf("disabled cache must never report a hit")
	}
}

func TestCacheRejectsErrorResponseAsPoisoning(t *testing.T) {
	store := newFakeStore()
	c := cache.New(store, fakeEmbed, cache.Config{Enabled: true, TTL: time.Hour, SimilarityThreshold: 0.95}, zerolog.Nop())
	ctx := context.Background()

	errResp, _ := json.Marshal(map[string]interface{}{"error": "upstream 500"})
	c.Set(ctx, "bad query", errResp)

	if _, ok := c.Get(ctx, "bad query"); ok {
		t.Fatalf("expected an error-shaped response never to be served as a cache hit")
	}
}

func TestShouldBypass(t *testing.T) {
	if !cache.ShouldBypass(map[string]string{"X-Cache-Bypass": "true"}) {
		t.Fatalf("expected X-Cache-Bypass: true to bypass")
	}
	if !cache.ShouldBypass(map[string]string{"Cache-Control": "no-cache"}) {
		t.Fatalf("expected Cache-Control: no-cache to bypass")
	}
	if cache.ShouldBypass(map[string]string{}) {
		t.Fatalf("expected no bypass for empty headers")
	}
}

func TestCacheEmbeddingFailureIsMissNotError(t *testing.T) {
	store := newFakeStore()
	failingEmbed := func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("embedding service unavailable")
	}
	c := cache.New(store, failingEmbed, cache.Config{Enabled: true, TTL: time.Hour, SimilarityThreshold: 0.95}, zerolog.Nop())
	if _, ok := c.Get(context.Background(), "anything"); ok {
		t.Fatalf("expected embedding failure to degrade to a miss")
	}
}
