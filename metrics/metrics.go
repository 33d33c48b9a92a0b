/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Prometheus instrumentation for the gateway pipeline:
             requests/errors counters, cache-hit counter, PII and
             guardrail-violation counters, a request-duration
             histogram, and token/cost counters, plus a per-
             principal budget-usage gauge. Registered against a
             dedicated prometheus.Registry so tests can construct
             an isolated Recorder without colliding with the
             default global registry.
Root Cause:  The /metrics scrape endpoint format itself is out of
             core scope, but step 12 of the pipeline ("update
             metrics: request counter, duration histogram,
             token/cost histograms") is squarely in scope — the
             orchestrator must emit these regardless of who
             consumes them.
Suitability: L2 — direct client_golang CounterVec/HistogramVec/
             GaugeVec wiring, no custom exposition format needed.
──────────────────────────────────────────────────────────────
*/

// Package metrics instruments the gateway pipeline with Prometheus
// counters, histograms, and gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder wraps the gateway's Prometheus metric vectors.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	cacheHitsTotal      prometheus.Counter
	piiDetectionsTotal  *prometheus.CounterVec
	guardrailViolations *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	tokensTotal         *prometheus.CounterVec
	costTotalUSD        *prometheus.CounterVec
	budgetUsage         *prometheus.GaugeVec
}

// New constructs a Recorder registered against a fresh registry, so
// concurrent test suites never collide on Prometheus's global default.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total chat completion requests processed by the pipeline.",
		}, []string{"provider", "model", "status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Total pipeline failures by error type and provider.",
		}, []string{"error_type", "provider"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Total semantic cache hits.",
		}),
		piiDetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pii_detections_total",
			Help: "Total detected PII entities by kind.",
		}, []string{"pii_type"}),
		guardrailViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_guardrail_violations_total",
			Help: "Total guardrail rule violations by rule and severity.",
		}, []string{"rule_name", "severity"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Pipeline request duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider", "model"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Total prompt/completion tokens processed.",
		}, []string{"provider", "model", "kind"}),
		costTotalUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cost_usd_total",
			Help: "Total realised cost in USD.",
		}, []string{"provider", "model"}),
		budgetUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_budget_usage_fraction",
			Help: "Current spend as a fraction of the principal's period limit.",
		}, []string{"principal_id", "period"}),
	}

	reg.MustRegister(
		r.requestsTotal, r.errorsTotal, r.cacheHitsTotal, r.piiDetectionsTotal,
		r.guardrailViolations, r.requestDuration, r.tokensTotal, r.costTotalUSD, r.budgetUsage,
	)
	return r
}

// RecordRequest increments the request counter and observes duration for
// a completed (successful) pipeline run.
func (r *Recorder) RecordRequest(provider, model, status string, durationSeconds float64) {
	r.requestsTotal.WithLabelValues(provider, model, status).Inc()
	r.requestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordError increments the error counter for a failed pipeline run.
func (r *Recorder) RecordError(errorType, provider string) {
	r.errorsTotal.WithLabelValues(errorType, provider).Inc()
}

// RecordCacheHit increments the cache-hit counter.
func (r *Recorder) RecordCacheHit() {
	r.cacheHitsTotal.Inc()
}

// RecordPII increments the PII-detection counter for each detected kind.
func (r *Recorder) RecordPII(kind string) {
	r.piiDetectionsTotal.WithLabelValues(kind).Inc()
}

// RecordGuardrailViolation increments the guardrail-violation counter.
func (r *Recorder) RecordGuardrailViolation(ruleName, severity string) {
	r.guardrailViolations.WithLabelValues(ruleName, severity).Inc()
}

// RecordTokens increments the token counters for a completed request.
func (r *Recorder) RecordTokens(provider, model string, prompt, completion int) {
	r.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	r.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
}

// RecordCost adds realised cost to the running total.
func (r *Recorder) RecordCost(provider, model string, costUSD float64) {
	r.costTotalUSD.WithLabelValues(provider, model).Add(costUSD)
}

// SetBudgetUsage records a principal's current spend as a fraction of
// its period limit.
func (r *Recorder) SetBudgetUsage(principalID, period string, fraction float64) {
	r.budgetUsage.WithLabelValues(principalID, period).Set(fraction)
}

// Handler serves the registry in Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
