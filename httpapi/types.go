/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L1
Logic:       Wire DTOs for the gateway's HTTP surface, matching the
             documented request/response schemas field for field.
Suitability: L1 — plain data types and small encode helpers.
──────────────────────────────────────────────────────────────
*/

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oguzhankir/ai-gateway/pii"
)

// chatMessage mirrors one element of the caller's messages array.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the POST /v1/chat/completions body.
type chatCompletionRequest struct {
	Messages      []chatMessage `json:"messages"`
	Model         string        `json:"model,omitempty"`
	Provider      string        `json:"provider,omitempty"`
	DetectionMode string        `json:"detection_mode,omitempty"`
	MaxTokens     *int          `json:"max_tokens,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
}

// detectPIIRequest is the POST /v1/detect-pii body.
type detectPIIRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode,omitempty"`
}

// detectPIIResponse mirrors pii.DetectionResult plus its derived count.
type detectPIIResponse struct {
	Entities         []pii.Entity `json:"entities"`
	Mode             pii.Mode     `json:"mode"`
	ProcessingTimeMs float64      `json:"processing_time_ms"`
	Count            int          `json:"count"`
}

// webhookSubscriptionRequest is the POST /v1/webhooks body.
type webhookSubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// webhookSubscriptionResponse is one entry of the GET /v1/webhooks list.
type webhookSubscriptionResponse struct {
	ID          string   `json:"id"`
	PrincipalID string   `json:"principal_id"`
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Active      bool     `json:"active"`
}

// guardrailRuleResponse is one entry of the GET /v1/guardrails list.
type guardrailRuleResponse struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Enabled   bool     `json:"enabled"`
	Severity  string   `json:"severity"`
	Action    string   `json:"action"`
	Threshold float64  `json:"threshold,omitempty"`
}

// guardrailViolationResponse is one entry of the GET
// /v1/guardrails/violations list.
type guardrailViolationResponse struct {
	ID          string `json:"id"`
	RequestID   string `json:"request_id"`
	PrincipalID string `json:"principal_id"`
	RuleName    string `json:"rule_name"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
}

func encode(w http.ResponseWriter, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%d", int64(s+0.999))
}
