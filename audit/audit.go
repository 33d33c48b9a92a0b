/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Fire-and-forget audit logging on a buffered channel
             drained by a background goroutine, batching writes
             every second or every 100 entries (whichever comes
             first). Guardrail violation rows are written
             separately and back-filled with the owning request's
             ID, since the violation is known before the
             request_id is minted. The back-fill is queued when
             the request log entry is queued and does not wait
             for the request log write to succeed.
Root Cause:  Audit writes run on an independent session from the
             request-handling path so a slow or failing audit
             store can never affect the user-facing response, and
             vice versa.
Suitability: L2 — the batching/draining shape is well-trodden, but
             the back-fill timing window is easy to get wrong.
──────────────────────────────────────────────────────────────
*/

// Package audit implements asynchronous, best-effort request and
// guardrail-violation logging, isolated from the request-handling path.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestLog is one completed (or failed) pipeline run.
type RequestLog struct {
	RequestID        string
	PrincipalID      string
	Provider         string
	Model            string
	Completion       string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	DurationMs       int64
	CacheHit         bool
	PIIDetected      bool
	Status           string // "completed" | "failed" | "blocked" | "budget_exceeded"
	ErrorMessage     string
	CreatedAt        time.Time
}

// GuardrailLog is one guardrail violation, written independently of the
// request log that triggered it (the request_id may not exist yet).
type GuardrailLog struct {
	ID          string
	RequestID   string // filled in by Backfill once known
	PrincipalID string
	RuleName    string
	Severity    string
	Message     string
	Timestamp   time.Time
}

// Store persists request and guardrail logs, and supports the
// request_id back-fill step.
type Store interface {
	WriteRequestBatch(ctx context.Context, logs []RequestLog) error
	WriteGuardrailBatch(ctx context.Context, logs []GuardrailLog) error
	// BackfillRequestID sets request_id on guardrail rows for principalID
	// whose request_id is still unset and whose timestamp is within
	// window of now.
	BackfillRequestID(ctx context.Context, principalID, requestID string, now time.Time, window time.Duration) error
}

// Writer batches and asynchronously persists audit data.
type Writer struct {
	store            Store
	logger           zerolog.Logger
	requestCh        chan RequestLog
	guardrailCh      chan GuardrailLog
	backfillCh       chan backfillRequest
	wg               sync.WaitGroup
	backfillWindow   time.Duration
}

type backfillRequest struct {
	principalID string
	requestID   string
}

// New creates a Writer and starts its background drain goroutines.
// bufferSize bounds each channel; entries are dropped (not blocked on)
// once a channel is full, so a stalled store never backs up the
// request-handling path.
func New(store Store, logger zerolog.Logger, bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	w := &Writer{
		store:          store,
		logger:         logger.With().Str("component", "audit").Logger(),
		requestCh:      make(chan RequestLog, bufferSize),
		guardrailCh:    make(chan GuardrailLog, bufferSize),
		backfillCh:     make(chan backfillRequest, bufferSize),
		backfillWindow: 60 * time.Second,
	}
	w.wg.Add(3)
	go w.drainRequests()
	go w.drainGuardrails()
	go w.drainBackfills()
	return w
}

// LogRequest queues a request log entry. Best-effort: dropped silently
// if the buffer is full.
func (w *Writer) LogRequest(entry RequestLog) {
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	select {
	case w.requestCh <- entry:
	default:
		w.logger.Warn().Msg("audit request buffer full, dropping entry")
	}
	if entry.Status != "" {
		select {
		case w.backfillCh <- backfillRequest{principalID: entry.PrincipalID, requestID: entry.RequestID}:
		default:
		}
	}
}

// LogGuardrailViolations queues one or more guardrail violation rows.
func (w *Writer) LogGuardrailViolations(principalID string, violations []GuardrailLog) {
	for _, v := range violations {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.Timestamp.IsZero() {
			v.Timestamp = time.Now()
		}
		v.PrincipalID = principalID
		select {
		case w.guardrailCh <- v:
		default:
			w.logger.Warn().Msg("audit guardrail buffer full, dropping entry")
		}
	}
}

// Close flushes pending entries and stops all background drains.
func (w *Writer) Close() {
	close(w.requestCh)
	close(w.guardrailCh)
	close(w.backfillCh)
	w.wg.Wait()
}

func (w *Writer) drainRequests() {
	defer w.wg.Done()
	batch := make([]RequestLog, 0, 100)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case entry, ok := <-w.requestCh:
			if !ok {
				w.flushRequests(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 100 {
				w.flushRequests(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flushRequests(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *Writer) flushRequests(batch []RequestLog) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.WriteRequestBatch(ctx, batch); err != nil {
		w.logger.Error().Err(err).Int("count", len(batch)).Msg("failed to write request audit batch")
	}
}

func (w *Writer) drainGuardrails() {
	defer w.wg.Done()
	batch := make([]GuardrailLog, 0, 100)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case entry, ok := <-w.guardrailCh:
			if !ok {
				w.flushGuardrails(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 100 {
				w.flushGuardrails(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flushGuardrails(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *Writer) flushGuardrails(batch []GuardrailLog) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.WriteGuardrailBatch(ctx, batch); err != nil {
		w.logger.Error().Err(err).Int("count", len(batch)).Msg("failed to write guardrail audit batch")
	}
}

func (w *Writer) drainBackfills() {
	defer w.wg.Done()
	for req := range w.backfillCh {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.store.BackfillRequestID(ctx, req.principalID, req.requestID, time.Now(), w.backfillWindow)
		cancel()
		if err != nil {
			w.logger.Error().Err(err).Str("principal_id", req.principalID).Msg("guardrail request_id backfill failed")
		}
	}
}

// InMemoryStore is a process-local Store, the default when no database
// repository is wired in — the backing schema is out of scope here. It
// also exposes List methods the read-only
// management endpoints use; a real database-backed Store would serve
// those with a query instead.
type InMemoryStore struct {
	mu         sync.Mutex
	requests   []RequestLog
	guardrails []GuardrailLog
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) WriteRequestBatch(_ context.Context, logs []RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, logs...)
	return nil
}

func (s *InMemoryStore) WriteGuardrailBatch(_ context.Context, logs []GuardrailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guardrails = append(s.guardrails, logs...)
	return nil
}

func (s *InMemoryStore) BackfillRequestID(_ context.Context, principalID, requestID string, now time.Time, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-window)
	for i := range s.guardrails {
		g := &s.guardrails[i]
		if g.PrincipalID == principalID && g.RequestID == "" && g.Timestamp.After(cutoff) {
			g.RequestID = requestID
		}
	}
	return nil
}

// Violations returns a snapshot of every recorded guardrail violation,
// most recent first.
func (s *InMemoryStore) Violations() []GuardrailLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GuardrailLog, len(s.guardrails))
	for i := range s.guardrails {
		out[len(s.guardrails)-1-i] = s.guardrails[i]
	}
	return out
}
