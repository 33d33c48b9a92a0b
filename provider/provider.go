/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Provider abstraction layer: a normalised request/
             response envelope (Complete/Stream/calculate cost)
             that every connector implements, plus a registry for
             model-name → provider resolution and concurrent
             health checks.
Root Cause:  The failover manager and A/B router must treat every
             upstream identically; a single envelope keeps that
             code provider-agnostic.
Suitability: L3 model for interface design affecting every
             downstream connector.
──────────────────────────────────────────────────────────────
*/

package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Message is one normalised chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the normalised request envelope every connector
// accepts: complete(messages, model, max_tokens?, temperature?).
type CompletionRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   *int
	Temperature *float64
}

// CompletionResult is the normalised response envelope.
type CompletionResult struct {
	Completion       string  `json:"completion"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Model            string  `json:"model"`
	CostUSD          float64 `json:"cost_usd"`
	Provider         string  `json:"provider"`
}

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Delta string
}

// Stream yields StreamChunks until io.EOF.
type Stream interface {
	Next() (StreamChunk, error)
	Close() error
}

// HealthStatus represents a provider's health state.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency_ms"`
	LastCheck time.Time     `json:"last_check"`
	Error     string        `json:"error,omitempty"`
}

// Provider is the interface every LLM connector implements.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	Stream(ctx context.Context, req CompletionRequest) (Stream, error)
	Models() []string
	HealthCheck(ctx context.Context) HealthStatus
}

// Config holds connector configuration.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	Models     []string
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int
	// Pool supplies the shared http.Client each connector calls upstream
	// through. Nil falls back to a per-process default pool so a
	// connector built without one still reuses connections across
	// requests to the same provider.
	Pool *ConnectionPool
}

var defaultPool = DefaultConnectionPool()

// poolFor returns cfg.Pool, or the shared per-process default if unset.
func poolFor(cfg Config) *ConnectionPool {
	if cfg.Pool != nil {
		return cfg.Pool
	}
	return defaultPool
}

// Registry manages registered provider connectors.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	health    map[string]HealthStatus
	// modelAllowlist maps provider name to models it may be asked for by
	// failover/A-B routing (a candidate's model allowlist).
	modelAllowlist map[string][]string
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers:      make(map[string]Provider),
		health:         make(map[string]HealthStatus),
		modelAllowlist: make(map[string][]string),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider, modelAllowlist []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.modelAllowlist[p.Name()] = modelAllowlist
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// AllowsModel reports whether a provider's allowlist includes model. An
// empty allowlist means "allow any model the caller names".
func (r *Registry) AllowsModel(providerName, model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	allowed, ok := r.modelAllowlist[providerName]
	if !ok || len(allowed) == 0 {
		return true
	}
	for _, m := range allowed {
		if m == model {
			return true
		}
	}
	return false
}

// DefaultModel returns the first model in a provider's allowlist, or ""
// if it has none configured.
func (r *Registry) DefaultModel(providerName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	allowed := r.modelAllowlist[providerName]
	if len(allowed) == 0 {
		return ""
	}
	return allowed[0]
}

// GetForModel finds the appropriate provider for a given model name.
func (r *Registry) GetForModel(model string) (Provider, error) {
	providerName := DetectProvider(model)
	if providerName == "unknown" {
		return nil, fmt.Errorf("no provider found for model: %s", model)
	}
	p, ok := r.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("provider %s not registered for model: %s", providerName, model)
	}
	return p, nil
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// HealthCheckAll runs health checks on all providers concurrently.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]HealthStatus)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, p := range providers {
		wg.Add(1)
		go func(n string, prov Provider) {
			defer wg.Done()
			status := prov.HealthCheck(ctx)
			mu.Lock()
			results[n] = status
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	r.mu.Lock()
	r.health = results
	r.mu.Unlock()

	return results
}

// LastHealth returns the most recently cached health snapshot without
// issuing new health checks.
func (r *Registry) LastHealth() map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HealthStatus, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// DetectProvider maps a model name to the provider that serves it, among
// the connectors this gateway ships (openai, anthropic, google).
func DetectProvider(model string) string {
	m := strings.ToLower(model)
	patterns := map[string][]string{
		"openai":    {"gpt", "o1", "o3", "davinci", "curie", "babbage", "text-embedding", "dall-e", "whisper", "tts"},
		"anthropic": {"claude"},
		"google":    {"gemini", "palm", "bison"},
	}
	for name, prefixes := range patterns {
		for _, prefix := range prefixes {
			if strings.Contains(m, prefix) {
				return name
			}
		}
	}
	return "unknown"
}
