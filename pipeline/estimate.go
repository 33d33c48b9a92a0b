/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L1
Logic:       Dry-run cost estimation, grounded on the original
             handler/proxy.go handleDryRun shape: returns an estimated
             token/cost breakdown without calling a provider or
             touching the cache, rate limiter, or budget store.
             Shares its token counting and pricing with the budget
             pre-check, so a dry-run preview and the real admission
             check never disagree about the same request.
Suitability: L1 — pure arithmetic over the target provider's own
             token counter and pricing table.
──────────────────────────────────────────────────────────────
*/

package pipeline

import (
	"github.com/oguzhankir/ai-gateway/budget"
	"github.com/oguzhankir/ai-gateway/provider"
)

// Estimate is the result of EstimateOnly: a cost projection with no side
// effects on any subsystem.
type Estimate struct {
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedCost   float64 `json:"estimated_cost"`
	Model           string  `json:"model"`
	Provider        string  `json:"provider"`
}

// EstimateOnly projects the token count and cost of a request without
// admitting it through rate limiting, PII detection, the cache, or the
// budget meter — a read-only preview a caller can use before committing
// to Execute.
func (o *Orchestrator) EstimateOnly(req Request) Estimate {
	providerName, model := o.resolvePrimary(req)
	messages := toProviderMessages(req.Messages)

	promptTokens, estimatedOutput := provider.NewTokenCounter(providerName).EstimateRequest(provider.CompletionRequest{
		Messages: messages, Model: model, MaxTokens: req.MaxTokens,
	})

	cost := provider.CalculateCost(promptTokens, estimatedOutput, model)
	if cost == 0 {
		cost = budget.EstimateCostFromTokens(promptTokens + estimatedOutput)
	}

	return Estimate{
		EstimatedTokens: promptTokens + estimatedOutput,
		EstimatedCost:   cost,
		Model:           model,
		Provider:        providerName,
	}
}
