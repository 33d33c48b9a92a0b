package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWriterBatchesAndFlushesOnClose(t *testing.T) {
	store := NewInMemoryStore()
	w := New(store, zerolog.Nop(), 100)

	w.LogRequest(RequestLog{RequestID: "r-1", PrincipalID: "p-1", Status: "completed"})
	w.LogRequest(RequestLog{RequestID: "r-2", PrincipalID: "p-1", Status: "failed"})
	w.Close()

	store.mu.Lock()
	n := len(store.requests)
	store.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected 2 flushed request logs, got %d", n)
	}
}

func TestBackfillRequestIDOnlyTouchesMatchingWindow(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()

	_ = store.WriteGuardrailBatch(context.Background(), []GuardrailLog{
		{ID: "g-1", PrincipalID: "p-1", RuleName: "max_tokens", Timestamp: now},
		{ID: "g-2", PrincipalID: "p-1", RuleName: "no_pii", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "g-3", PrincipalID: "p-2", RuleName: "max_tokens", Timestamp: now},
	})

	if err := store.BackfillRequestID(context.Background(), "p-1", "req-99", now, time.Minute); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	violations := store.Violations()
	byID := map[string]GuardrailLog{}
	for _, v := range violations {
		byID[v.ID] = v
	}

	if byID["g-1"].RequestID != "req-99" {
		t.Fatalf("expected in-window violation to be backfilled, got %q", byID["g-1"].RequestID)
	}
	if byID["g-2"].RequestID != "" {
		t.Fatal("expected stale violation outside the window to stay unbackfilled")
	}
	if byID["g-3"].RequestID != "" {
		t.Fatal("expected a different principal's violation to stay unbackfilled")
	}
}

func TestViolationsReturnsMostRecentFirst(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Now()

	_ = store.WriteGuardrailBatch(context.Background(), []GuardrailLog{
		{ID: "g-1", Timestamp: base},
		{ID: "g-2", Timestamp: base.Add(time.Second)},
	})

	violations := store.Violations()
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(violations))
	}
	if violations[0].ID != "g-2" {
		t.Fatalf("expected most recent violation first, got %q", violations[0].ID)
	}
}
