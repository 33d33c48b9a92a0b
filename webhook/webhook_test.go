package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSignIsDeterministicAndVerifiable(t *testing.T) {
	body := []byte(`{"event":"request.completed"}`)
	sig1 := Sign("secret", body)
	sig2 := Sign("secret", body)
	if sig1 != sig2 {
		t.Fatalf("expected deterministic signature, got %q and %q", sig1, sig2)
	}
	if Sign("other-secret", body) == sig1 {
		t.Fatal("expected different secret to produce a different signature")
	}
}

func TestDispatchDeliversSignedPayload(t *testing.T) {
	var mu sync.Mutex
	var gotSig, gotEvent string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotEvent = r.Header.Get("X-Webhook-Event")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewInMemoryStore()
	store.Register(Subscription{
		ID:     "sub-1",
		URL:    srv.URL,
		Secret: "shh",
		Events: map[string]bool{"request.completed": true},
		Active: true,
	})

	d := New(store, Config{Enabled: true, Timeout: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond}, zerolog.Nop())
	d.Dispatch(context.Background(), "request.completed", map[string]string{"request_id": "r-1"})
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if gotEvent != "request.completed" {
		t.Fatalf("expected event header, got %q", gotEvent)
	}
	if gotSig == "" {
		t.Fatal("expected a signature header")
	}
	expected := Sign("shh", gotBody)
	if expected != gotSig {
		t.Fatalf("signature mismatch: got %q want %q", gotSig, expected)
	}

	var decoded envelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Event != "request.completed" {
		t.Fatalf("unexpected event in payload: %q", decoded.Event)
	}
}

func TestDispatchRetriesOnFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewInMemoryStore()
	store.Register(Subscription{
		ID:     "sub-1",
		URL:    srv.URL,
		Secret: "shh",
		Events: map[string]bool{"request.failed": true},
		Active: true,
	})

	d := New(store, Config{Enabled: true, Timeout: time.Second, MaxRetries: 3, RetryDelay: time.Millisecond}, zerolog.Nop())
	d.Dispatch(context.Background(), "request.failed", map[string]string{})
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDispatchDisabledIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewInMemoryStore()
	store.Register(Subscription{ID: "s", URL: srv.URL, Secret: "x", Events: map[string]bool{"e": true}, Active: true})

	d := New(store, Config{Enabled: false}, zerolog.Nop())
	d.Dispatch(context.Background(), "e", nil)
	d.Wait()

	if called {
		t.Fatal("expected no delivery while disabled")
	}
}
