/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Thin HTTP handlers: decode the wire request, build a
             pipeline.Request from the authenticated principal,
             call into the C14/C15 orchestrator, and translate the
             result (or error) back onto the wire. No business
             logic lives here — every admission/processing rule
             belongs to the pipeline package.
Root Cause:  The wire contract fixes the request/response schema;
             this layer exists only to bridge chi's http.Handler
             shape to the orchestrator's Go API.
Suitability: L3 — mostly mechanical, but SSE flushing and the
             dry-run/detect-pii side paths need care.
──────────────────────────────────────────────────────────────
*/

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oguzhankir/ai-gateway/audit"
	"github.com/oguzhankir/ai-gateway/guardrail"
	gwmw "github.com/oguzhankir/ai-gateway/middleware"
	"github.com/oguzhankir/ai-gateway/pii"
	"github.com/oguzhankir/ai-gateway/pipeline"
	"github.com/oguzhankir/ai-gateway/provider"
	"github.com/oguzhankir/ai-gateway/webhook"
)

// Server holds every dependency the HTTP surface dispatches into.
type Server struct {
	Orchestrator *pipeline.Orchestrator
	Detector     *pii.Detector
	Guardrails   *guardrail.Engine
	Webhooks     *webhook.Dispatcher
	WebhookStore *webhook.InMemoryStore
	AuditStore   *audit.InMemoryStore
	ModelSyncer  *provider.ModelSyncer
	Logger       zerolog.Logger
}

// ChatCompletions handles POST /v1/chat/completions.
func (s *Server) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	if r.Header.Get("X-Gateway-DryRun") == "true" {
		estimate := s.Orchestrator.EstimateOnly(req)
		w.Header().Set("Content-Type", "application/json")
		_ = encode(w, estimate)
		return
	}

	resp, err := s.Orchestrator.Execute(r.Context(), req)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Gateway-Model", resp.Provider+"/"+resp.Model)
	_ = encode(w, resp)
}

// ChatCompletionsStream handles POST /v1/chat/completions/stream.
func (s *Server) ChatCompletionsStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported by server")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := s.Orchestrator.ExecuteStream(r.Context(), req, func(chunk pipeline.StreamChunk) {
		switch chunk.Kind {
		case pipeline.ChunkData:
			_, _ = w.Write([]byte("data: " + sseEscape(chunk.Text) + "\n\n"))
		case pipeline.ChunkDone:
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
		case pipeline.ChunkError:
			_, _ = w.Write([]byte("data: [ERROR] " + sseEscape(chunk.Text) + "\n\n"))
		}
		flusher.Flush()
	})
	if err != nil {
		s.Logger.Warn().Err(err).Msg("stream terminated with error")
	}
}

func sseEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var body chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "failed to parse request body: "+err.Error())
		return pipeline.Request{}, false
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "ValidationError", "messages field is required and must not be empty")
		return pipeline.Request{}, false
	}

	p, _ := gwmw.GetPrincipal(r.Context())

	messages := make([]pipeline.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		messages = append(messages, pipeline.Message{Role: m.Role, Content: m.Content})
	}

	mode := pii.ModeFast
	if pii.Mode(body.DetectionMode) == pii.ModeDetailed {
		mode = pii.ModeDetailed
	}

	return pipeline.Request{
		PrincipalID:   p.ID,
		Tier:          tierFor(r),
		Messages:      messages,
		Model:         body.Model,
		Provider:      body.Provider,
		DetectionMode: mode,
		MaxTokens:     body.MaxTokens,
		Temperature:   body.Temperature,
	}, true
}

// tierFor resolves the caller's rate-limit tier, a named bucket that is
// not part of the authenticated principal itself (tiers are tied to the
// rate-limiting config, not the credential).
func tierFor(r *http.Request) string {
	if t := r.Header.Get("X-Gateway-Tier"); t != "" {
		return t
	}
	return "default"
}

// DetectPII handles POST /v1/detect-pii. It runs detection directly,
// bypassing the rest of the pipeline — there is no completion to
// produce.
func (s *Server) DetectPII(w http.ResponseWriter, r *http.Request) {
	var body detectPIIRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "failed to parse request body: "+err.Error())
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "text field is required")
		return
	}

	mode := pii.ModeFast
	if pii.Mode(body.Mode) == pii.ModeDetailed {
		mode = pii.ModeDetailed
	}

	result := s.Detector.Detect(r.Context(), body.Text, mode)

	w.Header().Set("Content-Type", "application/json")
	_ = encode(w, detectPIIResponse{
		Entities:         result.Entities,
		Mode:             result.Mode,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Count:            result.Count(),
	})
}

// ListWebhooks handles GET /v1/webhooks.
func (s *Server) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs := s.WebhookStore.List()
	out := make([]webhookSubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		events := make([]string, 0, len(sub.Events))
		for e, on := range sub.Events {
			if on {
				events = append(events, e)
			}
		}
		out = append(out, webhookSubscriptionResponse{
			ID:          sub.ID,
			PrincipalID: sub.PrincipalID,
			URL:         sub.URL,
			Events:      events,
			Active:      sub.Active,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = encode(w, map[string]interface{}{"webhooks": out})
}

// CreateWebhook handles POST /v1/webhooks.
func (s *Server) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var body webhookSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "failed to parse request body: "+err.Error())
		return
	}
	if body.URL == "" || len(body.Events) == 0 {
		writeError(w, http.StatusBadRequest, "ValidationError", "url and events fields are required")
		return
	}

	p, _ := gwmw.GetPrincipal(r.Context())

	events := make(map[string]bool, len(body.Events))
	for _, e := range body.Events {
		events[e] = true
	}

	sub := webhook.Subscription{
		ID:          uuid.NewString(),
		PrincipalID: p.ID,
		URL:         body.URL,
		Events:      events,
		Secret:      body.Secret,
		Active:      true,
	}
	s.WebhookStore.Register(sub)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = encode(w, map[string]interface{}{"id": sub.ID})
}

// DeleteWebhook handles DELETE /v1/webhooks/{id}.
func (s *Server) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.WebhookStore.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// ListGuardrails handles GET /v1/guardrails.
func (s *Server) ListGuardrails(w http.ResponseWriter, r *http.Request) {
	out := make([]guardrailRuleResponse, 0, len(s.Guardrails.Rules))
	for _, rule := range s.Guardrails.Rules {
		out = append(out, guardrailRuleResponse{
			Name:      rule.Name,
			Kind:      string(rule.Kind),
			Enabled:   rule.Enabled,
			Severity:  string(rule.Severity),
			Action:    rule.Action,
			Threshold: rule.Threshold,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = encode(w, map[string]interface{}{"rules": out, "enabled": s.Guardrails.Enabled})
}

// GuardrailViolations handles GET /v1/guardrails/violations. It reads
// from the in-process audit buffer — a database-backed audit.Store
// would serve this from a real query instead.
func (s *Server) GuardrailViolations(w http.ResponseWriter, r *http.Request) {
	logs := s.AuditStore.Violations()
	out := make([]guardrailViolationResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, guardrailViolationResponse{
			ID:          l.ID,
			RequestID:   l.RequestID,
			PrincipalID: l.PrincipalID,
			RuleName:    l.RuleName,
			Severity:    l.Severity,
			Message:     l.Message,
			Timestamp:   l.Timestamp.Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = encode(w, map[string]interface{}{"violations": out})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = encode(w, map[string]interface{}{"status": "healthy"})
}

// ListModels handles GET /v1/models, serving the catalog the background
// syncer last refreshed from each registered provider rather than the
// registry's static allowlist — so a caller sees what the syncer has
// actually observed, including any drift from config.
func (s *Server) ListModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = encode(w, provider.ModelsListResponse{Object: "list", Data: s.ModelSyncer.GetAllModels()})
}
