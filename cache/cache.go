/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Redis-backed semantic cache. Lookup embeds the query,
             scans cache:* in batches, and keeps the best
             cosine-similarity match above threshold; store embeds
             and writes {vector, text, response} with a TTL. An
             exact-hash fast path (md5 of the query as given;
             only the embedding input is normalised)
             short-circuits the scan when the literal prompt has
             been seen before. Embedding/Redis failures degrade to
             a miss or a no-op rather than surfacing to the caller.
Root Cause:  Nearest-neighbour over live cache keys is a known
             limitation (no vector index) that the spec accepts in
             exchange for not running a separate vector database.
Suitability: L3 — Redis SCAN/HSET semantics plus response
             validation to avoid poisoning the cache with an
             upstream error masquerading as a completion.
──────────────────────────────────────────────────────────────
*/

// Package cache implements the gateway's semantic response cache.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oguzhankir/ai-gateway/similarity"
	"github.com/rs/zerolog"
)

const keyPrefix = "cache:"

// EmbedFunc is the injected embedding capability. The embedding model
// itself is out of scope here; the cache only consumes the function.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Entry is what's persisted per cache key.
type Entry struct {
	Vector   []float32       `json:"vector"`
	Text     string          `json:"text"`
	Response json.RawMessage `json:"response"`
}

// Store is the minimal Redis surface the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	ScanKeys(ctx context.Context, pattern string, batchSize int64, fn func(key string) error) error
}

// Config tunes cache behaviour.
type Config struct {
	Enabled             bool
	TTL                 time.Duration
	SimilarityThreshold float64
}

// Cache is the semantic response cache.
type Cache struct {
	store  Store
	embed  EmbedFunc
	cfg    Config
	logger zerolog.Logger

	hits, misses int64
}

// New constructs a Cache.
func New(store Store, embed EmbedFunc, cfg Config, logger zerolog.Logger) *Cache {
	return &Cache{store: store, embed: embed, cfg: cfg, logger: logger}
}

// Get looks up query, first via the exact-hash fast path, then via a
// linear cosine-similarity scan over live cache keys. Any infrastructure
// or embedding failure is logged and reported as a miss, never an error.
func (c *Cache) Get(ctx context.Context, query string) (json.RawMessage, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}

	exactKey := keyPrefix + hashPrompt(query)
	if raw, ok, err := c.store.Get(ctx, exactKey); err == nil && ok {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err == nil && validResponse(entry.Response) {
			atomic.AddInt64(&c.hits, 1)
			return entry.Response, true
		}
	}

	vector, err := c.embed(ctx, normalizePrompt(query))
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache embedding failed, treating as miss")
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var best Entry
	var bestScore float64
	found := false

	scanErr := c.store.ScanKeys(ctx, keyPrefix+"*", 100, func(key string) error {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			return nil
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil
		}
		score := similarity.Cosine(vector, entry.Vector)
		if score > bestScore {
			bestScore = score
			best = entry
			found = true
		}
		return nil
	})
	if scanErr != nil {
		c.logger.Warn().Err(scanErr).Msg("cache scan failed, treating as miss")
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if found && bestScore >= c.cfg.SimilarityThreshold && validResponse(best.Response) {
		atomic.AddInt64(&c.hits, 1)
		return best.Response, true
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Set stores response under the exact-hash key for query, embedding the
// query for future similarity scans. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, query string, response json.RawMessage) {
	if !c.cfg.Enabled {
		return
	}
	vector, err := c.embed(ctx, normalizePrompt(query))
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache embedding failed on store, skipping")
		return
	}

	entry := Entry{Vector: vector, Text: query, Response: response}
	payload, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache entry marshal failed, skipping")
		return
	}

	key := keyPrefix + hashPrompt(query)
	if err := c.store.Set(ctx, key, string(payload), c.cfg.TTL); err != nil {
		c.logger.Warn().Err(err).Msg("cache store failed")
	}
}

// ShouldBypass reports whether the caller's headers request the cache be
// skipped for this request.
func ShouldBypass(headers map[string]string) bool {
	if strings.EqualFold(headers["X-Cache-Bypass"], "true") {
		return true
	}
	return strings.Contains(strings.ToLower(headers["Cache-Control"]), "no-cache")
}

// Stats reports cumulative hit/miss counters.
type Stats struct {
	Hits   int64
	Misses int64
}

func (c *Cache) Stats() Stats {
	return Stats{Hits: atomic.LoadInt64(&c.hits), Misses: atomic.LoadInt64(&c.misses)}
}

// validResponse rejects cache poisoning: a stored "response" that is
// actually a serialised error, or has no content, is never served as a
// hit.
func validResponse(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var probe struct {
		Error interface{} `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Error != nil {
		return false
	}
	return true
}

func normalizePrompt(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

func hashPrompt(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
