package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oguzhankir/ai-gateway/audit"
	"github.com/oguzhankir/ai-gateway/budget"
	"github.com/oguzhankir/ai-gateway/cache"
	"github.com/oguzhankir/ai-gateway/failover"
	"github.com/oguzhankir/ai-gateway/guardrail"
	"github.com/oguzhankir/ai-gateway/metrics"
	"github.com/oguzhankir/ai-gateway/pii"
	"github.com/oguzhankir/ai-gateway/pipeline"
	"github.com/oguzhankir/ai-gateway/provider"
	"github.com/oguzhankir/ai-gateway/ratelimit"
	"github.com/oguzhankir/ai-gateway/webhook"
	"github.com/rs/zerolog"
)

// fakeWindow is a minimal in-process sorted-set stand-in for ratelimit.Window.
type fakeWindow struct {
	mu      sync.Mutex
	members map[string][]float64
}

func newFakeWindow() *fakeWindow { return &fakeWindow{members: make(map[string][]float64)} }

func (f *fakeWindow) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.members[key] {
		if s >= min && s <= max {
			n++
		}
	}
	return n, nil
}

func (f *fakeWindow) ZAdd(_ context.Context, key string, score float64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[key] = append(f.members[key], score)
	return nil
}

func (f *fakeWindow) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.members[key][:0]
	for _, s := range f.members[key] {
		if s < min || s > max {
			kept = append(kept, s)
		}
	}
	f.members[key] = kept
	return nil
}

func (f *fakeWindow) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

// fakeMaskStore is a minimal in-process stand-in for pii.Store.
type fakeMaskStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeMaskStore() *fakeMaskStore { return &fakeMaskStore{data: make(map[string]string)} }

func (f *fakeMaskStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
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

func (f *fakeMaskStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeMaskStore) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// fakeCacheStore is a minimal in-process stand-in for cache.Store.
type fakeCacheStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCacheStore() *fakeCacheStore { return &fakeCacheStore{data: make(map[string]string)} }

func (f *fakeCacheStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCacheStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeCacheStore) ScanKeys(_ context.Context, _ string, _ int64, fn func(key string) error) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	f.mu.Unlock()
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// fakeAuditStore swallows every write, matching audit.Store's contract.
type fakeAuditStore struct{}

func (fakeAuditStore) WriteRequestBatch(context.Context, []audit.RequestLog) error     { return nil }
func (fakeAuditStore) WriteGuardrailBatch(context.Context, []audit.GuardrailLog) error { return nil }
func (fakeAuditStore) BackfillRequestID(context.Context, string, string, time.Time, time.Duration) error {
	return nil
}

// fakeWebhookStore has no active subscriptions, matching webhook.Store.
type fakeWebhookStore struct{}

func (fakeWebhookStore) ActiveForEvent(context.Context, string) ([]webhook.Subscription, error) {
	return nil, nil
}

// echoProvider echoes the last message's content back as the completion,
// used to exercise the masking round-trip: the on-wire prompt must carry
// the masking sentinel, never the original PII.
type echoProvider struct {
	name string
}

func (p *echoProvider) Name() string { return p.name }

func (p *echoProvider) Complete(_ context.Context, req provider.CompletionRequest) (*provider.CompletionResult, error) {
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	return &provider.CompletionResult{
		Completion:       last,
		PromptTokens:     10,
		CompletionTokens: 5,
		TotalTokens:      15,
		Model:            req.Model,
		CostUSD:          0.001,
		Provider:         p.name,
	}, nil
}

func (p *echoProvider) Stream(context.Context, provider.CompletionRequest) (provider.Stream, error) {
	return nil, nil
}
func (p *echoProvider) Models() []string { return []string{"echo-model"} }
func (p *echoProvider) HealthCheck(context.Context) provider.HealthStatus {
	return provider.HealthStatus{Healthy: true}
}

// failingProvider always errors, used to exercise failover.
type failingProvider struct{ name string }

func (p *failingProvider) Name() string { return p.name }
func (p *failingProvider) Complete(context.Context, provider.CompletionRequest) (*provider.CompletionResult, error) {
	return nil, &providerErr{p.name}
}
func (p *failingProvider) Stream(context.Context, provider.CompletionRequest) (provider.Stream, error) {
	return nil, nil
}
func (p *failingProvider) Models() []string { return []string{"fail-model"} }
func (p *failingProvider) HealthCheck(context.Context) provider.HealthStatus {
	return provider.HealthStatus{Healthy: false}
}

type providerErr struct{ name string }

func (e *providerErr) Error() string { return e.name + " failed" }

func newOrchestrator(t *testing.T, reg *provider.Registry) *pipeline.Orchestrator {
	t.Helper()
	logger := zerolog.Nop()

	limiter := ratelimit.New(newFakeWindow(), true, map[string]ratelimit.Tier{
		"default": {RequestsPerMinute: 1000, RequestsPerHour: 100000},
	})
	detector := pii.NewDetector(nil)
	masker := pii.NewMasker(newFakeMaskStore(), time.Minute)
	engine := &guardrail.Engine{Enabled: true, BlockOnViolation: true}
	fakeEmbed := func(_ context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 1}, nil
	}
	c := cache.New(newFakeCacheStore(), fakeEmbed, cache.Config{Enabled: true, TTL: time.Minute, SimilarityThreshold: 0.9}, logger)
	meter := budget.New(budget.NewInMemoryStore(), budget.Config{Enabled: true, DefaultLimitUSD: 100, DefaultPeriod: budget.Daily}, nil)
	fo := failover.New(reg, failover.Config{Enabled: true, Order: []string{}}, logger)
	aw := audit.New(fakeAuditStore{}, logger, 100)
	wd := webhook.New(fakeWebhookStore{}, webhook.Config{Enabled: true, Timeout: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond}, logger)
	rec := metrics.New()

	t.Cleanup(func() {
		aw.Close()
		wd.Wait()
	})

	return &pipeline.Orchestrator{
		RateLimiter: limiter,
		Detector:    detector,
		Masker:      masker,
		Guardrails:  engine,
		Cache:       c,
		Budget:      meter,
		Failover:    fo,
		Registry:    reg,
		Audit:       aw,
		Webhooks:    wd,
		Metrics:     rec,
		Logger:      logger,
		Config: pipeline.Config{
			DefaultProvider: "echo",
			DefaultModel:    "echo-model",
			MaskingEnabled:  true,
			RequestTimeout:  5 * time.Second,
		},
	}
}

func TestExecuteMaskingRoundTrip(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&echoProvider{name: "echo"}, []string{"echo-model"})
	o := newOrchestrator(t, reg)

	req := pipeline.Request{
		PrincipalID: "p1",
		Tier:        "default",
		Messages:    []pipeline.Message{{Role: "user", Content: "Call 555-123-4567"}},
	}

	resp, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Completion != "Call 555-123-4567" {
		t.Fatalf("expected unmasked completion to contain the original phone number, got %q", resp.Completion)
	}
}

func TestExecuteCacheHitSkipsBudgetAndCost(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&echoProvider{name: "echo"}, []string{"echo-model"})
	o := newOrchestrator(t, reg)

	req := pipeline.Request{
		PrincipalID: "p1",
		Tier:        "default",
		Messages:    []pipeline.Message{{Role: "user", Content: "hello there"}},
	}

	first, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	if first.CacheHit {
		t.Fatal("expected first call to miss the cache")
	}

	second, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("expected second identical call to hit the cache")
	}
	if second.CostUSD != 0 {
		t.Fatalf("expected cache hit to report zero cost, got %v", second.CostUSD)
	}
}

func TestExecuteFailoverFallsBackToSecondProvider(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&failingProvider{name: "primary"}, []string{"fail-model"})
	reg.Register(&echoProvider{name: "backup"}, []string{"echo-model"})
	o := newOrchestrator(t, reg)
	o.Config.DefaultProvider = "primary"
	o.Config.DefaultModel = "fail-model"
	o.Failover = failover.New(reg, failover.Config{Enabled: true, Order: []string{"primary", "backup"}}, zerolog.Nop())

	req := pipeline.Request{
		PrincipalID: "p2",
		Tier:        "default",
		Messages:    []pipeline.Message{{Role: "user", Content: "ping"}},
	}

	resp, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("expected failover to succeed via backup provider, got error: %v", err)
	}
	if resp.Provider != "backup" {
		t.Fatalf("expected response to be served by backup provider, got %q", resp.Provider)
	}
}

func TestExecuteBudgetExceededBlocksBeforeUpstream(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&echoProvider{name: "echo"}, []string{"echo-model"})
	o := newOrchestrator(t, reg)
	o.Budget = budget.New(budget.NewInMemoryStore(), budget.Config{Enabled: true, DefaultLimitUSD: 0, DefaultPeriod: budget.Daily}, nil)

	req := pipeline.Request{
		PrincipalID: "p3",
		Tier:        "default",
		Messages:    []pipeline.Message{{Role: "user", Content: "this should blow the budget"}},
	}

	_, err := o.Execute(context.Background(), req)
	if err == nil {
		t.Fatal("expected a budget-exceeded error")
	}
}

func TestEstimateOnlyHasNoSideEffects(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&echoProvider{name: "echo"}, []string{"echo-model"})
	o := newOrchestrator(t, reg)

	req := pipeline.Request{
		PrincipalID: "p4",
		Tier:        "default",
		Messages:    []pipeline.Message{{Role: "user", Content: "one two three four five"}},
	}

	est := o.EstimateOnly(req)
	if est.EstimatedTokens <= 0 {
		t.Fatalf("expected a positive token estimate, got %d", est.EstimatedTokens)
	}
	if est.Provider != "echo" {
		t.Fatalf("expected default provider in estimate, got %q", est.Provider)
	}

	// A second identical Execute call should still miss the cache: the
	// estimate must not have written anything.
	resp, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CacheHit {
		t.Fatal("expected EstimateOnly to have no observable side effects on the cache")
	}
}
