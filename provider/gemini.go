/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Google Gemini connector via the Generative Language
             API. Gemini has no system role: any system message
             is folded into the first user message's text rather
             than dropped, and role names are remapped
             (assistant → model) before the request is sent.
Root Cause:  Sprint task T030 — Gemini schema diverges furthest
             from the OpenAI shape of any connector kept here.
Suitability: L2 for well-documented API with schema translation.
──────────────────────────────────────────────────────────────
*/

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider implements Provider for Google's Generative Language API.
type GeminiProvider struct {
	config Config
	client *http.Client
}

func NewGeminiProvider(cfg Config) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &GeminiProvider{
		config: cfg,
		client: poolFor(cfg).GetClient(cfg.Name, cfg.Timeout),
	}
}

func (p *GeminiProvider) Name() string { return "google" }

func (p *GeminiProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash-lite"}
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func geminiRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return role
}

// toGeminiRequest folds a system message into the first user message's
// text (Gemini has no system role) and remaps assistant → model.
func (p *GeminiProvider) toGeminiRequest(req CompletionRequest) geminiRequest {
	var system string
	var rest []Message
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}

	contents := make([]geminiContent, 0, len(rest))
	for i, msg := range rest {
		text := msg.Content
		if i == 0 && system != "" && msg.Role == "user" {
			text = system + "\n\n" + text
			system = ""
		}
		contents = append(contents, geminiContent{Role: geminiRole(msg.Role), Parts: []geminiPart{{Text: text}}})
	}
	if system != "" {
		// No user message to attach to: emit the system text as its own turn.
		contents = append([]geminiContent{{Role: "user", Parts: []geminiPart{{Text: system}}}}, contents...)
	}

	gemReq := geminiRequest{Contents: contents}
	if req.MaxTokens != nil || req.Temperature != nil {
		gemReq.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens, Temperature: req.Temperature}
	}
	return gemReq
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	return WithRetry(ctx, p.Name(), p.config.MaxRetries, time.Second, func() (*CompletionResult, int, error) {
		return p.complete(ctx, req)
	})
}

func (p *GeminiProvider) complete(ctx context.Context, req CompletionRequest) (*CompletionResult, int, error) {
	gemReq := p.toGeminiRequest(req)
	body, err := json.Marshal(gemReq)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.config.BaseURL, req.Model, p.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPErr(err), fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var gemResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gemResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gemResp.Candidates) == 0 {
		return nil, resp.StatusCode, fmt.Errorf("gemini response had no candidates")
	}

	var text strings.Builder
	for _, part := range gemResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	usage := geminiUsageMetadata{}
	if gemResp.UsageMetadata != nil {
		usage = *gemResp.UsageMetadata
	}

	return &CompletionResult{
		Completion:       text.String(),
		PromptTokens:     usage.PromptTokenCount,
		CompletionTokens: usage.CandidatesTokenCount,
		TotalTokens:      usage.TotalTokenCount,
		Model:            req.Model,
		CostUSD:          CalculateCost(usage.PromptTokenCount, usage.CandidatesTokenCount, req.Model),
		Provider:         p.Name(),
	}, resp.StatusCode, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	gemReq := p.toGeminiRequest(req)
	body, err := json.Marshal(gemReq)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s&alt=sse", p.config.BaseURL, req.Model, p.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return &geminiSSEStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

type geminiSSEStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *geminiSSEStream) Next() (StreamChunk, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		var text strings.Builder
		for _, part := range chunk.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		if chunk.Candidates[0].FinishReason != "" {
			return StreamChunk{Delta: text.String()}, io.EOF
		}
		return StreamChunk{Delta: text.String()}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return StreamChunk{}, err
	}
	return StreamChunk{}, io.EOF
}

func (s *geminiSSEStream) Close() error { return s.body.Close() }

func (p *GeminiProvider) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	url := fmt.Sprintf("%s/models?key=%s", p.config.BaseURL, p.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error(), LastCheck: time.Now()}
	}

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return HealthStatus{Healthy: false, Latency: latency, Error: err.Error(), LastCheck: time.Now()}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	errMsg := ""
	if !healthy {
		errMsg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return HealthStatus{Healthy: healthy, Latency: latency, LastCheck: time.Now(), Error: errMsg}
}
