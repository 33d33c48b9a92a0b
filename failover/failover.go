/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Builds the try-chain [primary] ++ [configured order
             minus primary, minus anything the health poller has
             last observed as unhealthy] and attempts Complete
             against each candidate in turn, re-selecting the model
             per candidate (caller's model if it's the primary or
             is in the candidate's allowlist, else the candidate's
             default). Returns on first success; raises once every
             candidate has failed. The primary is always attempted
             even if flagged unhealthy — it was the caller's
             explicit choice, not a fallback pick.
Root Cause:  A single upstream outage should not surface to the
             caller if any configured alternative can serve the
             request; a fallback candidate already known to be down
             shouldn't cost a request's worth of latency to rule
             out.
Suitability: L2 — a straightforward ordered-retry loop, but model
             re-selection per candidate is easy to get backwards.
──────────────────────────────────────────────────────────────
*/

// Package failover tries a primary provider then falls through a
// configured chain of alternates on failure.
package failover

import (
	"context"

	"github.com/oguzhankir/ai-gateway/gwerrors"
	"github.com/oguzhankir/ai-gateway/provider"
	"github.com/rs/zerolog"
)

// Manager executes a completion against a primary provider, falling
// back through a configured order on failure.
type Manager struct {
	registry *provider.Registry
	enabled  bool
	order    []string
	logger   zerolog.Logger
}

// Config tunes Manager, mirroring fallback.{enabled, order} from the
// configuration surface.
type Config struct {
	Enabled bool
	Order   []string
}

func New(registry *provider.Registry, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{registry: registry, enabled: cfg.Enabled, order: cfg.Order, logger: logger.With().Str("component", "failover").Logger()}
}

// Execute tries the primary provider, then the remaining configured
// providers in order, re-selecting the model for each candidate.
// Disabled failover short-circuits to a direct call against primary.
func (m *Manager) Execute(ctx context.Context, messages []provider.Message, model, primary string) (*provider.CompletionResult, error) {
	if !m.enabled || primary == "" {
		p, ok := m.registry.Get(primary)
		if !ok {
			return nil, &gwerrors.ProviderError{Provider: primary, Message: "provider not registered"}
		}
		return p.Complete(ctx, provider.CompletionRequest{Messages: messages, Model: m.resolveModel(primary, model, true)})
	}

	chain := buildChain(primary, m.order, m.isHealthy)

	var lastErr error
	for _, candidateName := range chain {
		candidate, ok := m.registry.Get(candidateName)
		if !ok {
			continue
		}
		isPrimary := candidateName == primary
		candidateModel := m.resolveModel(candidateName, model, isPrimary)

		m.logger.Info().Str("provider", candidateName).Str("model", candidateModel).Msg("attempting provider")
		result, err := candidate.Complete(ctx, provider.CompletionRequest{Messages: messages, Model: candidateModel})
		if err == nil {
			if !isPrimary {
				m.logger.Info().Str("provider", candidateName).Msg("fallback successful")
			}
			return result, nil
		}
		lastErr = err
		m.logger.Warn().Str("provider", candidateName).Err(err).Msg("provider failed")
	}

	return nil, &gwerrors.ProviderError{Provider: "fallback", Message: "all providers failed: " + errString(lastErr)}
}

// resolveModel picks the model to send to a candidate: the caller's
// model if this candidate is the primary or allows that model, else the
// candidate's own default.
func (m *Manager) resolveModel(candidateName, callerModel string, isPrimary bool) string {
	if isPrimary {
		if callerModel != "" {
			return callerModel
		}
		return m.registry.DefaultModel(candidateName)
	}
	if callerModel != "" && m.registry.AllowsModel(candidateName, callerModel) {
		return callerModel
	}
	return m.registry.DefaultModel(candidateName)
}

// isHealthy reports the health poller's last observed status for a
// candidate. A candidate with no recorded status yet (poller hasn't run,
// or just registered) is treated as healthy rather than excluded.
func (m *Manager) isHealthy(name string) bool {
	status, ok := m.registry.LastHealth()[name]
	return !ok || status.Healthy
}

// buildChain returns [primary] ++ [p for p in order if p != primary and
// healthy(p)]. The primary is never filtered by health — it is the
// caller's explicit choice, not a fallback candidate.
func buildChain(primary string, order []string, healthy func(string) bool) []string {
	chain := []string{primary}
	for _, p := range order {
		if p == primary {
			continue
		}
		if healthy != nil && !healthy(p) {
			continue
		}
		chain = append(chain, p)
	}
	return chain
}

func errString(err error) string {
	if err == nil {
		return "no providers attempted"
	}
	return err.Error()
}
