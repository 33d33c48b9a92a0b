/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Maps a pipeline error to the gateway's status-code
             table by type-switching on the gwerrors taxonomy
             instead of string matching.
Root Cause:  Every admission/processing failure in the pipeline
             already carries a distinct type; the composition
             root's only job is to project that type onto a
             status code and a stable error code string.
Suitability: L2 — a single type switch.
──────────────────────────────────────────────────────────────
*/

package httpapi

import (
	"errors"
	"net/http"

	"github.com/oguzhankir/ai-gateway/gwerrors"
)

// StatusFor maps a pipeline error to the HTTP status it should produce:
// 429 rate-limited, 402 budget exceeded, 400 guardrail violation or
// malformed request, 502 upstream provider failure, 504 timeout, 401
// authentication failure.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var rle *gwerrors.RateLimitExceeded
	if errors.As(err, &rle) {
		return http.StatusTooManyRequests
	}
	var be *gwerrors.BudgetExceeded
	if errors.As(err, &be) {
		return http.StatusPaymentRequired
	}
	var gv *gwerrors.GuardrailViolation
	if errors.As(err, &gv) {
		return http.StatusBadRequest
	}
	var pe *gwerrors.ProviderError
	if errors.As(err, &pe) {
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(err, gwerrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, gwerrors.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, gwerrors.ErrValidation):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// errorCode names a stable, machine-readable error code for the body's
// error.type field, independent of the human-readable message.
func errorCode(err error) string {
	return gwerrors.TypeName(err)
}

// writeError writes the standard {"error":{"type","message"}} envelope.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = encode(w, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	})
}

// writePipelineError maps err to its status code, sets Retry-After for
// rate-limit failures, and writes the error envelope.
func writePipelineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	var rle *gwerrors.RateLimitExceeded
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", formatSeconds(rle.RetryAfter.Seconds()))
	}

	writeError(w, status, errorCode(err), err.Error())
}
