/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Streaming counterpart to Execute: the same admission
             gates (rate-limit, PII-scan, input-guardrail, mask)
             run up front, but there is no cache lookup and no
             budget pre-check. Each upstream chunk is unmasked
             individually (never buffered whole) before being
             handed to the caller's sink.
Root Cause:  The streaming path deliberately preserves the
             original service's omission of output-guardrail and
             audit logging as a known limitation rather than a bug
             to silently fix.
Suitability: L3 — the per-chunk unmask step is easy to get wrong
             if a sentinel straddles a chunk boundary.
──────────────────────────────────────────────────────────────
*/

package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/oguzhankir/ai-gateway/guardrail"
	"github.com/oguzhankir/ai-gateway/gwerrors"
	"github.com/oguzhankir/ai-gateway/pii"
	"github.com/oguzhankir/ai-gateway/provider"
)

// ChunkKind distinguishes the frames ChunkSink receives: the three SSE
// frame shapes the streaming wire contract defines.
type ChunkKind string

const (
	ChunkData  ChunkKind = "data"
	ChunkDone  ChunkKind = "done"
	ChunkError ChunkKind = "error"
)

// StreamChunk is one frame emitted to the caller's sink. The httpapi
// layer is responsible for formatting it as `data: <text>\n\n`.
type StreamChunk struct {
	Kind ChunkKind
	Text string
}

// ChunkSink receives StreamChunks as the upstream response arrives.
type ChunkSink func(StreamChunk)

// ExecuteStream runs the streaming counterpart of Execute: the same
// admission gates 1-5 (rate-limit, PII-scan, input-guardrail, mask),
// then relays the provider's stream chunk-by-chunk, unmasking each
// chunk individually before it is emitted; chunks are not accumulated
// into a buffer. It never
// consults the cache and never budget-pre-checks, matching the
// documented source behaviour. No output guardrail or audit log is
// applied on this path (see DESIGN.md's open question on streaming).
func (o *Orchestrator) ExecuteStream(ctx context.Context, req Request, sink ChunkSink) error {
	if err := o.RateLimiter.Check(ctx, req.PrincipalID, req.Tier); err != nil {
		sink(StreamChunk{Kind: ChunkError, Text: err.Error()})
		return err
	}

	text := concatContent(req.Messages)
	mode := req.DetectionMode
	if mode == "" {
		mode = pii.ModeFast
	}

	piiIn := o.Detector.Detect(ctx, text, mode)
	for _, e := range piiIn.Entities {
		o.Metrics.RecordPII(string(e.Kind))
	}

	passed, violations, shouldBlock := o.Guardrails.Check(guardrail.Input{Text: text, Entities: piiIn.Entities})
	if !passed {
		o.recordViolations(req.PrincipalID, violations)
	}
	if shouldBlock {
		err := &gwerrors.GuardrailViolation{Violations: violations}
		sink(StreamChunk{Kind: ChunkError, Text: err.Error()})
		return err
	}

	messages := toProviderMessages(req.Messages)
	var sessionID string
	if len(piiIn.Entities) > 0 && o.Config.MaskingEnabled && len(messages) > 0 {
		maskedText, sid, maskErr := o.Masker.Mask(ctx, text, piiIn.Entities)
		if maskErr == nil {
			messages[len(messages)-1].Content = maskedText
			sessionID = sid
		}
	}

	primaryProvider, resolvedModel := o.resolvePrimary(req)
	p, ok := o.Registry.Get(primaryProvider)
	if !ok {
		err := &gwerrors.ProviderError{Provider: primaryProvider, Message: "provider not registered"}
		sink(StreamChunk{Kind: ChunkError, Text: err.Error()})
		return err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if o.Config.RequestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, o.Config.RequestTimeout)
		defer cancel()
	}

	stream, err := p.Stream(callCtx, providerRequest(messages, resolvedModel, req))
	if err != nil {
		sink(StreamChunk{Kind: ChunkError, Text: err.Error()})
		return err
	}
	defer stream.Close()

	start := time.Now()
	for {
		chunk, streamErr := stream.Next()
		if streamErr != nil {
			if errors.Is(streamErr, io.EOF) {
				break
			}
			sink(StreamChunk{Kind: ChunkError, Text: streamErr.Error()})
			o.Metrics.RecordError("ProviderError", primaryProvider)
			return streamErr
		}

		out := chunk.Delta
		if sessionID != "" {
			out = o.Masker.Unmask(ctx, out, sessionID)
		}
		if out != "" {
			sink(StreamChunk{Kind: ChunkData, Text: out})
		}
	}

	sink(StreamChunk{Kind: ChunkDone})
	o.Metrics.RecordRequest(primaryProvider, resolvedModel, "completed", time.Since(start).Seconds())
	return nil
}

func providerRequest(messages []provider.Message, model string, req Request) provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages:    messages,
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}
