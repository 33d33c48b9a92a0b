/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Composition-root router: CORS → security headers →
             request ID → panic recovery → request logger → body
             size limit, then a public group (health, metrics) and
             an authenticated /v1 group (auth → header
             normalization → per-provider timeout) wrapping the chat/detect-pii/webhook/
             guardrail handlers.
Root Cause:  The external HTTP surface is deliberately thinner than
             the original router since experiments/analytics/
             intelligence/policy/geo-routing are out of scope here.
Suitability: L3 — middleware ordering is easy to get subtly wrong
             (e.g. CORS after auth breaks preflight).
──────────────────────────────────────────────────────────────
*/

// Package httpapi is the gateway's HTTP composition root: it wires the
// middleware chain and routes onto the pipeline orchestrator.
package httpapi

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	gwmw "github.com/oguzhankir/ai-gateway/middleware"
)

// NewRouter builds the gateway's HTTP handler.
func NewRouter(s *Server, appLogger zerolog.Logger, authMW *gwmw.AuthMiddleware, timeoutMW *gwmw.TimeoutMiddleware, maxBodyBytes int64, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(gwmw.CORSMiddleware([]string{"*"}))
	r.Use(gwmw.SecurityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(appLogger))
	r.Use(maxBodySize(maxBodyBytes))

	r.Get("/health", s.Health)
	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	headerNorm := gwmw.NewHeaderNormalization(appLogger)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(authMW.Handler)
		v1.Use(headerNorm.Handler)
		v1.Use(timeoutMW.Handler)

		v1.Post("/chat/completions", s.ChatCompletions)
		v1.Post("/chat/completions/stream", s.ChatCompletionsStream)
		v1.Post("/detect-pii", s.DetectPII)

		v1.Get("/webhooks", s.ListWebhooks)
		v1.Post("/webhooks", s.CreateWebhook)
		v1.Delete("/webhooks/{id}", s.DeleteWebhook)

		v1.Get("/guardrails", s.ListGuardrails)
		v1.Get("/guardrails/violations", s.GuardrailViolations)

		v1.Get("/models", s.ListModels)
	})

	return r
}

func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := maxBytes
			if v := os.Getenv("GATEWAY_MAX_BODY_BYTES"); v != "" {
				if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
					max = parsed
				}
			}
			if r.ContentLength > 0 && r.ContentLength > max {
				writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
