/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L4
Logic:       The request-processing pipeline orchestrator: the
             ordered gate sequence rate-limit → PII-scan → input-
             guardrail → mask → cache lookup → budget → upstream
             call with failover → cache store → output guardrail
             → unmask → meter → audit → notify, in that fixed
             order. Audit and webhook delivery run detached from
             the request's own context so a slow audit store or
             unreachable webhook endpoint can never affect the
             user-facing response latency or outcome.
Root Cause:  This is the core contract of the whole gateway: every
             ordering invariant (input guardrail before masking,
             cache lookup on raw text regardless of masking, budget
             pre-check skipped on cache hit, unmask as the final
             outgoing transformation) must hold for every request,
             success or failure.
Suitability: L4 — the single highest-stakes module in the
             repository; an ordering mistake here silently
             violates a documented invariant.
──────────────────────────────────────────────────────────────
*/

// Package pipeline implements the gateway's request-processing
// orchestrator and its streaming counterpart.
package pipeline

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oguzhankir/ai-gateway/abrouter"
	"github.com/oguzhankir/ai-gateway/audit"
	"github.com/oguzhankir/ai-gateway/budget"
	"github.com/oguzhankir/ai-gateway/cache"
	"github.com/oguzhankir/ai-gateway/failover"
	"github.com/oguzhankir/ai-gateway/guardrail"
	"github.com/oguzhankir/ai-gateway/gwerrors"
	"github.com/oguzhankir/ai-gateway/metrics"
	"github.com/oguzhankir/ai-gateway/pii"
	"github.com/oguzhankir/ai-gateway/provider"
	"github.com/oguzhankir/ai-gateway/ratelimit"
	"github.com/oguzhankir/ai-gateway/webhook"
	"github.com/rs/zerolog"
)

// Config tunes routing defaults and per-request timeout, mirroring the
// ab_testing.{enabled, variants} and timeout.default configuration
// surface.
type Config struct {
	DefaultProvider string
	DefaultModel    string
	ABEnabled       bool
	ABVariants      []abrouter.Variant
	MaskingEnabled  bool
	RequestTimeout  time.Duration
}

// Orchestrator wires every gate of the request-processing pipeline.
type Orchestrator struct {
	RateLimiter *ratelimit.Limiter
	Detector    *pii.Detector
	Masker      *pii.Masker
	Guardrails  *guardrail.Engine
	Cache       *cache.Cache
	Budget      *budget.Meter
	Failover    *failover.Manager
	Registry    *provider.Registry
	Audit       *audit.Writer
	Webhooks    *webhook.Dispatcher
	Metrics     *metrics.Recorder
	Logger      zerolog.Logger
	Config      Config
}

// Execute runs a single chat-completion request through every gate of
// the pipeline in its fixed order, returning the normalised Response or
// a typed error from the gwerrors taxonomy.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	requestID := uuid.NewString()
	providerUsed := req.Provider

	defer func() {
		duration := time.Since(start)
		if err != nil {
			o.Metrics.RecordError(gwerrors.TypeName(err), providerUsed)
			o.Audit.LogRequest(audit.RequestLog{
				RequestID:    requestID,
				PrincipalID:  req.PrincipalID,
				Provider:     providerUsed,
				Model:        req.Model,
				DurationMs:   duration.Milliseconds(),
				Status:       gwerrors.AuditStatus(err),
				ErrorMessage: err.Error(),
			})
			o.Webhooks.Dispatch(context.Background(), "request.failed", map[string]interface{}{
				"request_id":   requestID,
				"principal_id": req.PrincipalID,
				"error":        err.Error(),
			})
		}
	}()

	// 1. rate_limiter.check(principal, tier)
	if err = o.RateLimiter.Check(ctx, req.PrincipalID, req.Tier); err != nil {
		return nil, err
	}

	// 2. text = concat(messages.content, " ")
	text := concatContent(req.Messages)
	mode := req.DetectionMode
	if mode == "" {
		mode = pii.ModeFast
	}

	// 3. pii_in = pii.detect(text, mode)
	piiIn := o.Detector.Detect(ctx, text, mode)
	for _, e := range piiIn.Entities {
		o.Metrics.RecordPII(string(e.Kind))
	}

	// 4. g_in = guardrails.check(text, pii_in); block on violation
	passed, violations, shouldBlock := o.Guardrails.Check(guardrail.Input{Text: text, Entities: piiIn.Entities})
	if !passed {
		o.recordViolations(req.PrincipalID, violations)
	}
	if shouldBlock {
		err = &gwerrors.GuardrailViolation{Violations: violations}
		return nil, err
	}

	// 5. If pii_in non-empty and masking enabled, mask and rewrite the
	// final message's content to the masked text — only the last
	// message is ever rewritten, matching the source's behaviour.
	messages := append([]provider.Message(nil), toProviderMessages(req.Messages)...)
	var sessionID string
	if len(piiIn.Entities) > 0 && o.Config.MaskingEnabled && len(messages) > 0 {
		maskedText, sid, maskErr := o.Masker.Mask(ctx, text, piiIn.Entities)
		if maskErr == nil {
			messages[len(messages)-1].Content = maskedText
			sessionID = sid
		}
	}

	// 6. cached = cache.get(text) — always the original, unmasked text.
	var result *provider.CompletionResult
	cacheHit := false
	if cachedRaw, hit := o.Cache.Get(ctx, text); hit {
		var cached provider.CompletionResult
		if unmarshalErr := json.Unmarshal(cachedRaw, &cached); unmarshalErr == nil {
			cached.CostUSD = 0
			result = &cached
			cacheHit = true
		}
	}

	var primaryProvider, resolvedModel string
	if !cacheHit {
		// 7. resolve(caller_provider, caller_model, ab_router) ahead of the
		// budget pre-check, so the estimate below can price against the
		// target provider's real per-model rate instead of a flat proxy.
		primaryProvider, resolvedModel = o.resolvePrimary(req)
		providerUsed = primaryProvider

		// 8. budget pre-check, skipped on cache hit. Estimates prompt
		// tokens with the target provider's own counting ratio and prices
		// them (plus the request's max_tokens, or a default ceiling) at
		// that provider/model's real rate.
		promptTokens, estimatedOutput := provider.NewTokenCounter(primaryProvider).EstimateRequest(provider.CompletionRequest{
			Messages: messages, Model: resolvedModel, MaxTokens: req.MaxTokens,
		})
		estimate := provider.CalculateCost(promptTokens, estimatedOutput, resolvedModel)
		if estimate == 0 {
			// Unlisted or free model: the pricing table has no rate to
			// apply, so fall back to a flat per-token estimate rather than
			// silently admitting every request at zero projected cost.
			estimate = budget.EstimateCostFromTokens(promptTokens + estimatedOutput)
		}
		if err = o.Budget.Check(ctx, req.PrincipalID, estimate); err != nil {
			return nil, err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if o.Config.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, o.Config.RequestTimeout)
			defer cancel()
		}

		result, err = o.Failover.Execute(callCtx, messages, resolvedModel, primaryProvider)
		if err != nil {
			if callCtx.Err() != nil {
				err = gwerrors.ErrTimeout
			}
			return nil, err
		}
		providerUsed = result.Provider

		// 9. cache.set(text, response) — caches the pre-unmask response,
		// matching the documented ordering (cache write precedes output
		// guardrail/unmask).
		if payload, marshalErr := json.Marshal(result); marshalErr == nil {
			o.Cache.Set(ctx, text, payload)
		}
	} else {
		o.Metrics.RecordCacheHit()
	}

	// 10. pii_out detection + output guardrail on the (still masked, if
	// applicable) completion.
	piiOut := o.Detector.Detect(ctx, result.Completion, mode)
	if len(piiOut.Entities) > 0 {
		for _, e := range piiOut.Entities {
			o.Metrics.RecordPII(string(e.Kind))
		}
		outPassed, outViolations, outShouldBlock := o.Guardrails.Check(guardrail.Input{
			Text: result.Completion, Entities: piiOut.Entities, Tokens: result.TotalTokens, CostUSD: result.CostUSD,
		})
		if !outPassed {
			o.recordViolations(req.PrincipalID, outViolations)
		}
		if outShouldBlock {
			err = &gwerrors.GuardrailViolation{Violations: outViolations}
			return nil, err
		}
	}

	completion := result.Completion
	// 11. unmask is the final transformation of the outgoing completion.
	if sessionID != "" {
		completion = o.Masker.Unmask(ctx, completion, sessionID)
	}

	// 12. update metrics.
	duration := time.Since(start)
	o.Metrics.RecordRequest(result.Provider, result.Model, "completed", duration.Seconds())
	o.Metrics.RecordTokens(result.Provider, result.Model, result.PromptTokens, result.CompletionTokens)
	if !cacheHit {
		o.Metrics.RecordCost(result.Provider, result.Model, result.CostUSD)
	}

	resp = &Response{
		Completion:  completion,
		Tokens:      TokenUsage{Prompt: result.PromptTokens, Completion: result.CompletionTokens, Total: result.TotalTokens},
		CostUSD:     result.CostUSD,
		CacheHit:    cacheHit,
		PIIDetected: len(piiIn.Entities) > 0 || len(piiOut.Entities) > 0,
		PIIEntities: piiIn.Entities,
		DurationMs:  duration.Milliseconds(),
		Model:       result.Model,
		Provider:    result.Provider,
		RequestID:   requestID,
	}

	// 13. realised-cost tracking, async and best-effort, skipped on cache
	// hit (cost is already zero).
	if !cacheHit {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if trackErr := o.Budget.Track(bgCtx, req.PrincipalID, result.CostUSD); trackErr != nil {
				o.Logger.Warn().Err(trackErr).Str("principal_id", req.PrincipalID).Msg("budget track failed")
			}
		}()
	}

	// 14. audit log, async, on its own detached context (see defer above
	// for the failure path — success is logged here instead).
	o.Audit.LogRequest(audit.RequestLog{
		RequestID:        requestID,
		PrincipalID:      req.PrincipalID,
		Provider:         result.Provider,
		Model:            result.Model,
		Completion:       completion,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		CostUSD:          result.CostUSD,
		DurationMs:       duration.Milliseconds(),
		CacheHit:         cacheHit,
		PIIDetected:      resp.PIIDetected,
		Status:           "completed",
	})

	// 15. webhook notification, async.
	o.Webhooks.Dispatch(context.Background(), "request.completed", map[string]interface{}{
		"request_id":   requestID,
		"principal_id": req.PrincipalID,
		"provider":     result.Provider,
		"model":        result.Model,
		"cache_hit":    cacheHit,
		"cost":         result.CostUSD,
	})

	return resp, nil
}

func (o *Orchestrator) recordViolations(principalID string, violations []gwerrors.Violation) {
	logs := make([]audit.GuardrailLog, 0, len(violations))
	for _, v := range violations {
		o.Metrics.RecordGuardrailViolation(v.RuleName, v.Severity)
		logs = append(logs, audit.GuardrailLog{
			PrincipalID: principalID,
			RuleName:    v.RuleName,
			Severity:    v.Severity,
			Message:     v.Message,
		})
	}
	o.Audit.LogGuardrailViolations(principalID, logs)
}

// resolvePrimary picks the primary provider and model for a request:
// the caller's explicit provider/model if given, else an A/B-routed
// pick, else the configured system default.
func (o *Orchestrator) resolvePrimary(req Request) (providerName, model string) {
	if req.Provider != "" {
		return req.Provider, firstNonEmpty(req.Model, o.Registry.DefaultModel(req.Provider))
	}
	if o.Config.ABEnabled && len(o.Config.ABVariants) > 0 {
		r := rand.Float64() * 100
		p, m := abrouter.Select(o.Config.ABVariants, r, abrouter.Default{
			Provider: o.Config.DefaultProvider, Model: o.Config.DefaultModel,
		})
		return p, firstNonEmpty(req.Model, m)
	}
	return o.Config.DefaultProvider, firstNonEmpty(req.Model, o.Config.DefaultModel)
}

func concatContent(messages []Message) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, " ")
}

func toProviderMessages(messages []Message) []provider.Message {
	out := make([]provider.Message, len(messages))
	for i, m := range messages {
		out[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
