/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Redis-backed reversible masking. Entities are
             replaced right-to-left so earlier offsets stay valid,
             each becomes a sentinel <KIND:session_id:KIND_idx>,
             and the {entity_id: original} map is stored under
             mask:<session_id> with a TTL. unmask matches sentinels
             with one package-level regex, substitutes those
             carrying the session id, and deletes the session — so a
             session can be unmasked exactly once.
Root Cause:  The pipeline must send a masked prompt upstream but
             return the real completion to the caller; a session
             keyed by a random token is the only state needed to
             reverse the substitution later in the same request.
Suitability: L3 — Redis-backed session lifecycle with a
             process-wide mutex serialising id generation.
──────────────────────────────────────────────────────────────
*/

package pii

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
)

const maskKeyPrefix = "mask:"

var sentinelPattern = regexp.MustCompile(`<([A-Z_]+):([^:>]+):([A-Z_]+_\d+)>`)

// Store is the minimal Redis surface the masker needs — narrow enough to
// fake in tests without pulling in a full miniredis dependency.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}

// Masker mints masking sessions and reverses them on demand. A single
// mutex serialises session-id minting and the mask/unmask code path
// within a process, matching the source's asyncio.Lock.
type Masker struct {
	store Store
	ttl   time.Duration
	mu    sync.Mutex
}

// NewMasker constructs a Masker with the given session TTL.
func NewMasker(store Store, ttl time.Duration) *Masker {
	return &Masker{store: store, ttl: ttl}
}

// Mask rewrites text, replacing each entity's surface with a sentinel,
// and returns the rewritten text plus the session id that can later
// reverse it. Entities are applied right-to-left so earlier offsets are
// never invalidated by a replacement changing the string's length.
func (m *Masker) Mask(ctx context.Context, text string, entities []Entity) (string, string, error) {
	if len(entities) == 0 {
		return text, "", nil
	}

	m.mu.Lock()
	sessionID := generateSessionID()
	m.mu.Unlock()

	ordered := append([]Entity(nil), entities...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	mapping := make(map[string]string, len(ordered))
	masked := text
	counters := make(map[Kind]int)

	for _, e := range ordered {
		counters[e.Kind]++
		entityID := fmt.Sprintf("%s_%d", e.Kind, counters[e.Kind])
		sentinel := fmt.Sprintf("<%s:%s:%s>", e.Kind, sessionID, entityID)
		mapping[entityID] = e.Text
		if e.Start < 0 || e.End > len(masked) || e.Start > e.End {
			continue
		}
		masked = masked[:e.Start] + sentinel + masked[e.End:]
	}

	payload, err := json.Marshal(mapping)
	if err != nil {
		return "", "", fmt.Errorf("marshal masking session: %w", err)
	}

	m.mu.Lock()
	err = m.store.Set(ctx, maskKeyPrefix+sessionID, payload, m.ttl)
	m.mu.Unlock()
	if err != nil {
		return "", "", fmt.Errorf("store masking session: %w", err)
	}

	return masked, sessionID, nil
}

// Unmask restores every sentinel in text belonging to sessionID, using
// the stored mapping, then deletes the session so it cannot be reused. A
// missing or expired session, or an empty sessionID, returns text
// unchanged rather than an error.
func (m *Masker) Unmask(ctx context.Context, text, sessionID string) string {
	if sessionID == "" {
		return text
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok, err := m.store.Get(ctx, maskKeyPrefix+sessionID)
	if err != nil || !ok {
		return text
	}

	var mapping map[string]string
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return text
	}

	restored := sentinelPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := sentinelPattern.FindStringSubmatch(match)
		if len(groups) != 4 || groups[2] != sessionID {
			return match
		}
		original, ok := mapping[groups[3]]
		if !ok {
			return match
		}
		return original
	})

	_ = m.store.Del(ctx, maskKeyPrefix+sessionID)
	return restored
}

func generateSessionID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "session_" + base64.RawURLEncoding.EncodeToString(buf)
}
