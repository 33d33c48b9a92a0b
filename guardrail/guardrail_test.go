package guardrail_test

import (
	"testing"

	"github.com/oguzhankir/ai-gateway/guardrail"
	"github.com/oguzhankir/ai-gateway/pii"
)

func TestEngineMonotoneMoreRulesNeverFewerViolations(t *testing.T) {
	input := guardrail.Input{
		Text:     "this contains a forbidden word",
		Entities: []pii.Entity{{Kind: pii.Email, Text: "a@b.com"}},
		Tokens:   500,
	}

	patterns, err := guardrail.CompilePatterns([]string{"forbidden"})
	if err != nil {
		t.Fatal(err)
	}

	base := &guardrail.Engine{
		Enabled: true,
		Rules: []guardrail.Rule{
			{Name: "max-tokens", Kind: guardrail.KindMaxTokens, Enabled: true, Severity: guardrail.SeverityWarning, Threshold: 100},
		},
	}
	_, baseViolations, _ := base.Check(input)

	expanded := &guardrail.Engine{
		Enabled: true,
		Rules: append(append([]guardrail.Rule{}, base.Rules...), []guardrail.Rule{
			{Name: "no-pii", Kind: guardrail.KindNoPII, Enabled: true, Severity: guardrail.SeverityError},
			{Name: "content", Kind: guardrail.KindContentFilter, Enabled: true, Severity: guardrail.SeverityError, Patterns: patterns},
		}...),
	}
	_, expandedViolations, _ := expanded.Check(input)

	if len(expandedViolations) < len(baseViolations) {
		t.Fatalf("enabling more rules reduced violations: base=%d expanded=%d", len(baseViolations), len(expandedViolations))
	}
}

func TestShouldBlockRequiresErrorSeverityAndEngineFlag(t *testing.T) {
	input := guardrail.Input{Tokens: 1000}

	notBlocking := &guardrail.Engine{
		Enabled:          true,
		BlockOnViolation: false,
		Rules: []guardrail.Rule{
			{Name: "max-tokens", Kind: guardrail.KindMaxTokens, Enabled: true, Severity: guardrail.SeverityError, Threshold: 100},
		},
	}
	_, _, block := notBlocking.Check(input)
	if block {
		t.Fatalf("expected no block when engine-level block_on_violation is false")
	}

	blocking := &guardrail.Engine{
		Enabled:          true,
		BlockOnViolation: true,
		Rules: []guardrail.Rule{
			{Name: "max-tokens", Kind: guardrail.KindMaxTokens, Enabled: true, Severity: guardrail.SeverityError, Threshold: 100},
		},
	}
	_, _, block = blocking.Check(input)
	if !block {
		t.Fatalf("expected block when an error-severity rule violates with block_on_violation true")
	}
}

func TestWarningSeverityNeverBlocks(t *testing.T) {
	e := &guardrail.Engine{
		Enabled:          true,
		BlockOnViolation: true,
		Rules: []guardrail.Rule{
			{Name: "max-tokens", Kind: guardrail.KindMaxTokens, Enabled: true, Severity: guardrail.SeverityWarning, Threshold: 10},
		},
	}
	passed, violations, block := e.Check(guardrail.Input{Tokens: 1000})
	if passed {
		t.Fatalf("expected passed=false when a rule violates")
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if block {
		t.Fatalf("warning severity must never set should_block")
	}
}

func TestDisabledEngineShortCircuitsToPassed(t *testing.T) {
	e := &guardrail.Engine{Enabled: false, Rules: []guardrail.Rule{
		{Name: "x", Kind: guardrail.KindMaxTokens, Enabled: true, Severity: guardrail.SeverityError, Threshold: 0},
	}}
	passed, violations, block := e.Check(guardrail.Input{Tokens: 99999})
	if !passed || violations != nil || block {
		t.Fatalf("expected disabled engine to always pass")
	}
}

func TestNoPIIEmptyAllowlistMatchesAnyKind(t *testing.T) {
	e := &guardrail.Engine{
		Enabled:          true,
		BlockOnViolation: true,
		Rules: []guardrail.Rule{
			{Name: "no-pii", Kind: guardrail.KindNoPII, Enabled: true, Severity: guardrail.SeverityError},
		},
	}
	_, violations, block := e.Check(guardrail.Input{Entities: []pii.Entity{{Kind: pii.Phone, Text: "555-1234"}}})
	if len(violations) != 1 || !block {
		t.Fatalf("expected empty allowlist to match any detected PII kind")
	}
}
