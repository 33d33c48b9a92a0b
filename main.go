/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Gateway entry point with graceful shutdown: wires
             config → logger → Redis → every pipeline subsystem
             (rate limiter, PII detector/masker, guardrail engine,
             semantic cache, budget meter, failover manager,
             provider registry, audit writer, webhook dispatcher,
             metrics recorder) into a single pipeline.Orchestrator,
             then mounts the httpapi composition root behind an
             http.Server with signal-triggered graceful shutdown.
Root Cause:  A single process must own the lifecycle of every
             stateful subsystem and join their background
             goroutines (audit batching, webhook delivery) on
             shutdown, not just close the listener.
Suitability: L3 model for graceful shutdown and system wiring.
──────────────────────────────────────────────────────────────
*/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oguzhankir/ai-gateway/abrouter"
	"github.com/oguzhankir/ai-gateway/audit"
	"github.com/oguzhankir/ai-gateway/budget"
	"github.com/oguzhankir/ai-gateway/cache"
	"github.com/oguzhankir/ai-gateway/config"
	"github.com/oguzhankir/ai-gateway/failover"
	"github.com/oguzhankir/ai-gateway/guardrail"
	"github.com/oguzhankir/ai-gateway/httpapi"
	"github.com/oguzhankir/ai-gateway/logger"
	"github.com/oguzhankir/ai-gateway/metrics"
	gwmw "github.com/oguzhankir/ai-gateway/middleware"
	"github.com/oguzhankir/ai-gateway/pii"
	"github.com/oguzhankir/ai-gateway/pipeline"
	"github.com/oguzhankir/ai-gateway/principal"
	"github.com/oguzhankir/ai-gateway/provider"
	"github.com/oguzhankir/ai-gateway/ratelimit"
	"github.com/oguzhankir/ai-gateway/redisclient"
	"github.com/oguzhankir/ai-gateway/webhook"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("gateway starting")

	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	if err := rc.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing, subsystems degrade per their own fail-open rules")
	} else {
		log.Info().Msg("redis connected")
	}

	connPool := provider.DefaultConnectionPool()
	registry := provider.NewRegistry()
	registerProviders(cfg, registry, connPool, log)

	rateLimiter := ratelimit.New(ratelimit.RedisWindow{Client: rc.Raw()}, cfg.RateLimiting.Enabled, toTiers(cfg.RateLimiting.Tiers))

	// No NER backend is wired by default — detailed-mode detection
	// degrades to pattern-only per pii.Detector's documented fallback.
	detector := pii.NewDetector(nil)
	masker := pii.NewMasker(pii.RedisStore{Client: rc.Raw()}, time.Duration(cfg.PII.Masking.SessionTTLSeconds)*time.Second)

	guardrails, err := guardrail.FromConfig(cfg.Guardrails)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid guardrail configuration")
	}

	semanticCache := cache.New(cache.RedisStore{Client: rc.Raw()}, embedFor(cfg, registry), cache.Config{
		Enabled:             cfg.Cache.Enabled,
		TTL:                 time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
	}, log)

	metricsRecorder := metrics.New()

	webhookStore := webhook.NewInMemoryStore()
	webhookDispatcher := webhook.New(webhookStore, webhook.Config{
		Enabled:    cfg.Webhooks.Enabled,
		Timeout:    time.Duration(cfg.Webhooks.TimeoutSec) * time.Second,
		MaxRetries: cfg.Webhooks.MaxRetries,
		RetryDelay: time.Duration(cfg.Webhooks.RetryDelayMs) * time.Millisecond,
	}, log)

	budgetMeter := budget.New(&budget.RedisStore{Client: rc.Raw(), Prefix: "budget:"}, budget.Config{
		Enabled:         cfg.Budget.Enabled,
		DefaultLimitUSD: cfg.Budget.DefaultLimitUSD,
		DefaultPeriod:   budget.Period(cfg.Budget.DefaultPeriod),
		AlertThresholds: cfg.Budget.AlertThresholds,
	}, onBudgetAlert(webhookDispatcher))

	failoverMgr := failover.New(registry, failover.Config{Enabled: cfg.Fallback.Enabled, Order: cfg.Fallback.Order}, log)

	auditStore := audit.NewInMemoryStore()
	auditWriter := audit.New(auditStore, log, 0)

	principalStore := principal.NewInMemoryStore()
	bootstrapPrincipals(principalStore, log)
	verifier := principal.New(principalStore, cfg.AdminKey)

	orchestrator := &pipeline.Orchestrator{
		RateLimiter: rateLimiter,
		Detector:    detector,
		Masker:      masker,
		Guardrails:  guardrails,
		Cache:       semanticCache,
		Budget:      budgetMeter,
		Failover:    failoverMgr,
		Registry:    registry,
		Audit:       auditWriter,
		Webhooks:    webhookDispatcher,
		Metrics:     metricsRecorder,
		Logger:      log,
		Config: pipeline.Config{
			DefaultProvider: cfg.Fallback.Order[0],
			DefaultModel:    defaultModelFor(cfg, registry),
			ABEnabled:       cfg.ABTesting.Enabled,
			ABVariants:      toVariants(cfg.ABTesting.Variants),
			MaskingEnabled:  cfg.PII.Masking.Enabled,
			RequestTimeout:  cfg.DefaultTimeout,
		},
	}

	modelSyncer := provider.NewModelSyncer(registry, log, cfg.ModelSyncInterval)

	server := &httpapi.Server{
		Orchestrator: orchestrator,
		Detector:     detector,
		Guardrails:   guardrails,
		Webhooks:     webhookDispatcher,
		WebhookStore: webhookStore,
		AuditStore:   auditStore,
		ModelSyncer:  modelSyncer,
		Logger:       log,
	}

	authMW := gwmw.NewAuthMiddleware(log, verifier, cfg.APIKeyHeader)
	timeoutMW := gwmw.NewTimeoutMiddleware(log, cfg)

	handler := httpapi.NewRouter(server, log, authMW, timeoutMW, cfg.MaxBodyBytes, metricsRecorder.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	healthPoller := provider.NewHealthPoller(registry, log, 30*time.Second)
	healthPoller.OnStatusChange(func(name string, healthy bool, status provider.HealthStatus) {
		if healthy {
			log.Info().Str("provider", name).Msg("provider recovered")
		} else {
			log.Error().Str("provider", name).Str("error", status.Error).Msg("provider degraded")
		}
	})
	healthPoller.Start()
	modelSyncer.Start()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	healthPoller.Stop()
	modelSyncer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	webhookDispatcher.Wait()
	auditWriter.Close()
	log.Info().Interface("pool_metrics", connPool.Metrics()).Msg("closing upstream connection pool")
	connPool.Close()
	log.Info().Msg("gateway stopped gracefully")
}

// registerProviders wires the connectors this gateway actually ships
// (openai, anthropic, google) — the fallback.order list in config
// names which of these participate in failover. Every connector shares
// one connPool so upstream connections are reused across providers
// instead of each connector opening its own transport.
func registerProviders(cfg *config.Config, registry *provider.Registry, connPool *provider.ConnectionPool, log zerolog.Logger) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p := provider.NewOpenAIProvider(provider.Config{Name: "openai", APIKey: key, Timeout: cfg.ProviderTimeout("openai"), Pool: connPool})
		registry.Register(p, cfg.Providers["openai"].Models)
		log.Info().Msg("registered openai provider")
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p := provider.NewAnthropicProvider(provider.Config{Name: "anthropic", APIKey: key, Timeout: cfg.ProviderTimeout("anthropic"), Pool: connPool})
		registry.Register(p, cfg.Providers["anthropic"].Models)
		log.Info().Msg("registered anthropic provider")
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		p := provider.NewGeminiProvider(provider.Config{Name: "google", APIKey: key, Timeout: cfg.ProviderTimeout("google"), Pool: connPool})
		registry.Register(p, cfg.Providers["google"].Models)
		log.Info().Msg("registered google gemini provider")
	}
	log.Info().Int("providers", len(registry.List())).Msg("provider registration complete")
}

// bootstrapPrincipals seeds per-key credentials from GATEWAY_API_KEYS, a
// comma-separated principal_id:plaintext_key list — the user/api_keys
// schema is out of scope here; a real deployment wires a database-backed
// principal.Store instead.
func bootstrapPrincipals(store *principal.InMemoryStore, log zerolog.Logger) {
	raw := os.Getenv("GATEWAY_API_KEYS")
	if raw == "" {
		return
	}
	for _, pair := range splitAndTrim(raw, ",") {
		parts := splitAndTrim(pair, ":")
		if len(parts) != 2 {
			continue
		}
		if err := store.AddKey(parts[0], parts[1]); err != nil {
			log.Warn().Err(err).Str("principal_id", parts[0]).Msg("failed to bootstrap principal")
		}
	}
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// onBudgetAlert dispatches the supplemented budget.alert webhook event
// when a principal crosses a configured spend threshold.
func onBudgetAlert(dispatcher *webhook.Dispatcher) budget.AlertFunc {
	return func(ctx context.Context, principalID string, fraction, current, limit float64) {
		dispatcher.Dispatch(ctx, "budget.alert", map[string]interface{}{
			"principal_id": principalID,
			"fraction":     fraction,
			"current":      current,
			"limit":        limit,
		})
	}
}

func toTiers(cfgTiers map[string]config.TierLimits) map[string]ratelimit.Tier {
	out := make(map[string]ratelimit.Tier, len(cfgTiers))
	for name, t := range cfgTiers {
		out[name] = ratelimit.Tier{RequestsPerMinute: t.RequestsPerMinute, RequestsPerHour: t.RequestsPerHour}
	}
	return out
}

func toVariants(cfgVariants []config.ABVariant) []abrouter.Variant {
	out := make([]abrouter.Variant, 0, len(cfgVariants))
	for _, v := range cfgVariants {
		out = append(out, abrouter.Variant{Provider: v.Provider, Model: v.Model, Percentage: v.Percentage})
	}
	return out
}

func defaultModelFor(cfg *config.Config, registry *provider.Registry) string {
	if len(cfg.Fallback.Order) == 0 {
		return ""
	}
	return registry.DefaultModel(cfg.Fallback.Order[0])
}

// embedFor resolves the embedding capability the semantic cache needs.
// The embedding model itself is out of scope here, and none of the
// registered chat connectors exposes an Embeddings call — see
// DESIGN.md's note on the cache's EmbedFunc. Until one is wired, the
// cache relies on its exact-hash fast path; this stub returns an empty
// vector, which similarity.Cosine scores 0 against every entry, so the
// similarity scan runs without erroring and never matches.
func embedFor(_ *config.Config, _ *provider.Registry) cache.EmbedFunc {
	return func(_ context.Context, _ string) ([]float32, error) {
		return []float32{}, nil
	}
}
