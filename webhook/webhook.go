/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       At-least-once webhook delivery. Dispatch looks up
             every active subscription for an event name and
             delivers to each on its own goroutine, so one
             subscriber's outage never delays or drops delivery to
             another. Each attempt signs the exact JSON body with
             HMAC-SHA256 over the subscription's secret and retries
             up to max_retries times with delay·2^attempt backoff
             on a non-2xx status or network error.
Root Cause:  The delivery contract requires isolated per-subscription
             delivery and a verifiable signature so receivers can
             deduplicate an at-least-once feed themselves.
Suitability: L3 — per-subscription goroutine isolation plus
             signed retrying HTTP POST.
──────────────────────────────────────────────────────────────
*/

// Package webhook implements the gateway's outbound, HMAC-signed,
// retrying webhook delivery.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Subscription is one registered webhook endpoint.
type Subscription struct {
	ID          string
	PrincipalID string
	URL         string
	Events      map[string]bool
	Secret      string
	Active      bool
}

// Store resolves which subscriptions should receive a given event.
// The backing webhooks schema is out of scope here; a database-backed
// implementation loads its rows into this shape.
type Store interface {
	ActiveForEvent(ctx context.Context, event string) ([]Subscription, error)
}

// Config tunes Dispatcher, mirroring webhooks.{enabled, timeout,
// max_retries, retry_delay} from the configuration surface.
type Config struct {
	Enabled      bool
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// Dispatcher delivers events to subscribed webhooks.
type Dispatcher struct {
	store      Store
	client     *http.Client
	cfg        Config
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// New constructs a Dispatcher.
func New(store Store, cfg Config, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

// envelope is the exact JSON body signed and delivered to subscribers.
type envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Dispatch fires event to every active subscription, each on its own
// goroutine. Disabled mode is a no-op. Dispatch itself never blocks the
// caller past subscription lookup — it returns once delivery goroutines
// have been spawned, matching the "spawn task carrying only owned
// inputs" separate-session pattern.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data interface{}) {
	if !d.cfg.Enabled {
		return
	}

	subs, err := d.store.ActiveForEvent(ctx, event)
	if err != nil {
		d.logger.Warn().Err(err).Str("event", event).Msg("failed to load webhook subscriptions")
		return
	}

	payload := envelope{Event: event, Timestamp: time.Now().UTC(), Data: data}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn().Err(err).Str("event", event).Msg("failed to marshal webhook payload")
		return
	}

	for _, sub := range subs {
		d.wg.Add(1)
		go func(s Subscription) {
			defer d.wg.Done()
			d.deliver(s, event, body)
		}(sub)
	}
}

func (d *Dispatcher) deliver(sub Subscription, event string, body []byte) {
	signature := Sign(sub.Secret, body)

	maxRetries := d.cfg.MaxRetries
	delay := d.cfg.RetryDelay

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay * time.Duration(1<<uint(attempt-1)))
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		err := d.attempt(ctx, sub, event, signature, body)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		d.logger.Warn().
			Err(err).
			Str("subscription_id", sub.ID).
			Str("event", event).
			Int("attempt", attempt).
			Msg("webhook delivery attempt failed")
	}

	d.logger.Error().
		Err(lastErr).
		Str("subscription_id", sub.ID).
		Str("event", event).
		Msg("webhook delivery exhausted retries")
}

func (d *Dispatcher) attempt(ctx context.Context, sub Subscription, event, signature string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", event)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex-encoded HMAC-SHA256 over body using secret,
// matching the X-Webhook-Signature header a receiver verifies against.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Wait blocks until every in-flight delivery goroutine has finished,
// matching the fire-and-forget task-group "joined on graceful shutdown"
// semantics — the composition root calls this during shutdown, never on
// the request path.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// InMemoryStore is a process-local Store, the default when no database
// repository is wired in.
type InMemoryStore struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{subs: make(map[string]Subscription)}
}

// Register adds or replaces a subscription.
func (s *InMemoryStore) Register(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
}

// Remove deletes a subscription.
func (s *InMemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// List returns every registered subscription, active or not, used by the
// webhook management endpoints.
func (s *InMemoryStore) List() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *InMemoryStore) ActiveForEvent(_ context.Context, event string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscription, 0)
	for _, sub := range s.subs {
		if sub.Active && sub.Events[event] {
			out = append(out, sub)
		}
	}
	return out, nil
}
