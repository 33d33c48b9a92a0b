package guardrail

import (
	"fmt"
	"strings"

	"github.com/oguzhankir/ai-gateway/config"
	"github.com/oguzhankir/ai-gateway/pii"
)

// FromConfig builds an Engine from the YAML-configured rule list,
// dispatching on each rule's kind string the same way the source's
// custom-rule loader distinguishes a cost threshold rule from a token
// threshold rule by name.
func FromConfig(cfg config.GuardrailsConfig) (*Engine, error) {
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		kind := Kind(strings.ToLower(rc.Kind))
		if kind == "" {
			if strings.Contains(strings.ToLower(rc.Name), "cost") {
				kind = KindMaxCost
			} else {
				kind = KindMaxTokens
			}
		}

		rule := Rule{
			Name:      rc.Name,
			Kind:      kind,
			Enabled:   rc.Enabled,
			Severity:  NormalizeSeverity(rc.Severity),
			Action:    rc.Action,
			Threshold: rc.Threshold,
		}
		for _, k := range rc.Kinds {
			rule.Kinds = append(rule.Kinds, pii.Kind(strings.ToUpper(k)))
		}
		if kind == KindContentFilter {
			compiled, err := CompilePatterns(rc.Patterns)
			if err != nil {
				return nil, fmt.Errorf("guardrail rule %q: %w", rc.Name, err)
			}
			rule.Patterns = compiled
		}
		rules = append(rules, rule)
	}

	return &Engine{
		Enabled:          cfg.Enabled,
		BlockOnViolation: cfg.BlockOnViolation,
		Rules:            rules,
	}, nil
}
