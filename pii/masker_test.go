package pii_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oguzhankir/ai-gateway/pii"
)

// fakeStore is a minimal in-memory stand-in for pii.Store, narrow enough
// that no Redis dependency is needed to exercise the masking session
// lifecycle.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string]string)} }

func (f *fakeStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func TestMaskUnmaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	masker := pii.NewMasker(newFakeStore(), time.Hour)

	text := "Call 555-123-4567"
	entities := pii.DetectPatterns(text)
	if len(entities) == 0 {
		t.Fatalf("expected phone entity to be detected")
	}

	masked, sid, err := masker.Mask(ctx, text, entities)
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if sid == "" {
		t.Fatalf("expected non-empty session id")
	}
	for _, e := range entities {
		if containsSubstring(masked, e.Text) {
			t.Fatalf("masked text still contains original surface %q: %q", e.Text, masked)
		}
	}

	restored := masker.Unmask(ctx, masked, sid)
	if restored != text {
		t.Fatalf("expected round-trip restore, got %q want %q", restored, text)
	}
}

func TestUnmaskConsumesSessionOnce(t *testing.T) {
	ctx := context.Background()
	masker := pii.NewMasker(newFakeStore(), time.Hour)

	text := "Email test@example.com now"
	entities := pii.DetectPatterns(text)
	masked, sid, err := masker.Mask(ctx, text, entities)
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}

	first := masker.Unmask(ctx, masked, sid)
	if first != text {
		t.Fatalf("expected first unmask to restore original text")
	}

	second := masker.Unmask(ctx, masked, sid)
	if second != masked {
		t.Fatalf("expected second unmask on consumed session to return text unchanged")
	}
}

func TestUnmaskUnknownSessionReturnsUnchanged(t *testing.T) {
	masker := pii.NewMasker(newFakeStore(), time.Hour)
	text := "<PHONE:session_bogus:PHONE_1>"
	if got := masker.Unmask(context.Background(), text, "session_bogus"); got != text {
		t.Fatalf("expected unchanged text for unknown session, got %q", got)
	}
}

func TestMaskNoEntitiesIsNoop(t *testing.T) {
	masker := pii.NewMasker(newFakeStore(), time.Hour)
	masked, sid, err := masker.Mask(context.Background(), "nothing sensitive here", nil)
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if sid != "" {
		t.Fatalf("expected no session id minted when there are no entities")
	}
	if masked != "nothing sensitive here" {
		t.Fatalf("expected text unchanged")
	}
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
