/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L1
Logic:       Request/response envelopes shared by the non-
             streaming and streaming orchestrators.
Suitability: L1 — plain data types.
──────────────────────────────────────────────────────────────
*/

package pipeline

import "github.com/oguzhankir/ai-gateway/pii"

// Request is the caller's normalised chat-completion request, matching
// the POST /v1/chat/completions wire body.
type Request struct {
	PrincipalID   string
	Tier          string
	Messages      []Message
	Model         string
	Provider      string
	DetectionMode pii.Mode
	MaxTokens     *int
	Temperature   *float64
}

// Message is one chat message in the caller's request.
type Message struct {
	Role    string
	Content string
}

// TokenUsage mirrors the tokens:{prompt,completion,total} response field.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Response is the normalised chat-completion result returned to the
// caller over the wire.
type Response struct {
	Completion  string      `json:"completion"`
	Tokens      TokenUsage  `json:"tokens"`
	CostUSD     float64     `json:"cost"`
	CacheHit    bool        `json:"cache_hit"`
	PIIDetected bool        `json:"pii_detected"`
	PIIEntities []pii.Entity `json:"pii_entities,omitempty"`
	DurationMs  int64       `json:"duration_ms"`
	Model       string      `json:"model"`
	Provider    string      `json:"provider"`
	RequestID   string      `json:"request_id"`
}
