package principal

import (
	"context"
	"testing"

	"github.com/oguzhankir/ai-gateway/gwerrors"
)

func TestVerifyAdminBypass(t *testing.T) {
	store := NewInMemoryStore()
	v := New(store, "super-secret-admin-key")

	p, err := v.Verify(context.Background(), "super-secret-admin-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsAdmin || p.ID != AdminPrincipalID {
		t.Fatalf("expected admin principal, got %+v", p)
	}
}

func TestVerifyBcryptScan(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.AddKey("user-1", "plaintext-key-one"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	if err := store.AddKey("user-2", "plaintext-key-two"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	v := New(store, "admin-key")
	p, err := v.Verify(context.Background(), "plaintext-key-two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "user-2" || p.IsAdmin {
		t.Fatalf("expected user-2, got %+v", p)
	}
}

func TestVerifyUnknownCredentialFails(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.AddKey("user-1", "plaintext-key-one")
	v := New(store, "admin-key")

	_, err := v.Verify(context.Background(), "not-a-real-key")
	if err != gwerrors.ErrAuthentication {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestVerifyDeactivatedCredentialFails(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.AddKey("user-1", "plaintext-key-one")
	store.Deactivate("user-1")
	v := New(store, "admin-key")

	_, err := v.Verify(context.Background(), "plaintext-key-one")
	if err != gwerrors.ErrAuthentication {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestVerifyEmptyCredentialFails(t *testing.T) {
	store := NewInMemoryStore()
	v := New(store, "admin-key")
	if _, err := v.Verify(context.Background(), ""); err != gwerrors.ErrAuthentication {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}
