/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Resolves a presented bearer credential to a Principal.
             The configured admin key is checked first in constant
             time and bypasses the per-key store entirely; failing
             that, every active stored bcrypt hash is compared in
             turn (linear scan, acceptable at the principal-count
             scale this gateway targets).
Root Cause:  The authentication contract distinguishes a single
             admin principal from ordinary per-key principals, with
             the two-path scheme specified precisely.
Suitability: L3 — constant-time admin compare plus bcrypt scan is
             easy to get subtly wrong (timing leaks, short-circuit
             on the first non-matching hash).
──────────────────────────────────────────────────────────────
*/

// Package principal resolves a presented API credential to an
// authenticated principal, ahead of the request-processing pipeline.
package principal

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/oguzhankir/ai-gateway/gwerrors"
	"golang.org/x/crypto/bcrypt"
)

// AdminPrincipalID names the distinguished admin principal, which
// bypasses per-key checks entirely.
const AdminPrincipalID = "admin"

// Principal is an authenticated caller.
type Principal struct {
	ID      string
	IsAdmin bool
}

// Record is one stored credential, keyed by principal id.
type Record struct {
	PrincipalID string
	KeyHash     string // bcrypt hash of the credential
	Active      bool
}

// Store lists active credential records for the linear bcrypt scan.
// The backing user/api_keys schema is out of scope here; a
// database-backed implementation loads its rows into this shape.
type Store interface {
	ActiveRecords(ctx context.Context) ([]Record, error)
}

// Verifier authenticates presented credentials against the configured
// admin key, then against the Store.
type Verifier struct {
	store    Store
	adminKey string
}

// New constructs a Verifier. An empty adminKey disables the admin
// bypass entirely (every credential goes through the bcrypt scan).
func New(store Store, adminKey string) *Verifier {
	return &Verifier{store: store, adminKey: adminKey}
}

// Verify resolves presented to a Principal. The admin key is compared in
// constant time to avoid leaking partial matches via timing; failing
// that, every active record is bcrypt-compared in turn until one
// matches. No match returns gwerrors.ErrAuthentication.
func (v *Verifier) Verify(ctx context.Context, presented string) (Principal, error) {
	if presented == "" {
		return Principal{}, gwerrors.ErrAuthentication
	}

	if v.adminKey != "" && constantTimeEqual(presented, v.adminKey) {
		return Principal{ID: AdminPrincipalID, IsAdmin: true}, nil
	}

	records, err := v.store.ActiveRecords(ctx)
	if err != nil {
		return Principal{}, fmt.Errorf("load principal records: %w", err)
	}

	for _, r := range records {
		if !r.Active {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(r.KeyHash), []byte(presented)) == nil {
			return Principal{ID: r.PrincipalID}, nil
		}
	}

	return Principal{}, gwerrors.ErrAuthentication
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison of equal length to avoid leaking the
		// length mismatch through an early return's timing.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// InMemoryStore is a process-local Store, the default when no database
// repository is wired in.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

// AddKey hashes plaintext with bcrypt and stores an active record for
// principalID, replacing any existing credential for that principal.
func (s *InMemoryStore) AddKey(principalID, plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash credential: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[principalID] = Record{PrincipalID: principalID, KeyHash: string(hash), Active: true}
	return nil
}

// Deactivate marks a principal's credential inactive without deleting
// the record, so ActiveRecords stops matching it.
func (s *InMemoryStore) Deactivate(principalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[principalID]; ok {
		r.Active = false
		s.records[principalID] = r
	}
}

func (s *InMemoryStore) ActiveRecords(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}
