/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Ordered rule registry evaluated as a composite check.
             Every enabled rule runs even after a blocking hit, so
             a caller always sees the full violation set; only a
             severity=error violation combined with the
             engine-level block_on_violation flag sets
             should_block.
Root Cause:  Partial evaluation (stop at first violation) would
             hide lower-priority violations from audit logs,
             making post-incident review incomplete.
Suitability: L3 — rule dispatch is a small sum type, but the
             monotonicity and blocking semantics are easy to get
             backwards.
──────────────────────────────────────────────────────────────
*/

// Package guardrail implements the gateway's rule-based request/response
// guardrail engine.
package guardrail

import (
	"regexp"
	"strings"

	"github.com/oguzhankir/ai-gateway/gwerrors"
	"github.com/oguzhankir/ai-gateway/pii"
)

// Kind identifies a rule's evaluation strategy.
type Kind string

const (
	KindMaxTokens     Kind = "max_tokens"
	KindMaxCost       Kind = "max_cost"
	KindNoPII         Kind = "no_pii"
	KindContentFilter Kind = "content_filter"
)

// Severity controls whether a violation can trigger should_block.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rule is a single configured guardrail check.
type Rule struct {
	Name      string
	Kind      Kind
	Enabled   bool
	Severity  Severity
	Action    string
	Threshold float64
	Kinds     []pii.Kind // allowlist for KindNoPII; empty means "any kind"
	Patterns  []*regexp.Regexp
}

// Input bundles everything a single check() call may need; fields the
// caller doesn't have are left zero.
type Input struct {
	Text     string
	Entities []pii.Entity
	Tokens   int
	CostUSD  float64
}

// Engine evaluates an ordered set of rules as a composite check.
type Engine struct {
	Enabled          bool
	BlockOnViolation bool
	Rules            []Rule
}

// Check runs every enabled rule against input and returns the aggregate
// result. A disabled engine short-circuits to passed.
func (e *Engine) Check(input Input) (bool, []gwerrors.Violation, bool) {
	if !e.Enabled {
		return true, nil, false
	}

	var violations []gwerrors.Violation
	shouldBlock := false

	for _, r := range e.Rules {
		if !r.Enabled {
			continue
		}
		if v, violated := evaluate(r, input); violated {
			violations = append(violations, v)
			if r.Severity == SeverityError && e.BlockOnViolation {
				shouldBlock = true
			}
		}
	}

	return len(violations) == 0, violations, shouldBlock
}

func evaluate(r Rule, input Input) (gwerrors.Violation, bool) {
	switch r.Kind {
	case KindMaxTokens:
		if float64(input.Tokens) > r.Threshold {
			return violation(r, "token count exceeds threshold"), true
		}
	case KindMaxCost:
		if input.CostUSD > r.Threshold {
			return violation(r, "cost exceeds threshold"), true
		}
	case KindNoPII:
		if match, ok := matchesPII(r.Kinds, input.Entities); ok {
			return violationWithDetails(r, "disallowed PII detected", map[string]interface{}{"kind": match}), true
		}
	case KindContentFilter:
		if m, ok := matchesContent(r.Patterns, input.Text); ok {
			return violationWithDetails(r, "content matched a filtered pattern", map[string]interface{}{"pattern": m}), true
		}
	}
	return gwerrors.Violation{}, false
}

func matchesPII(allowlist []pii.Kind, entities []pii.Entity) (pii.Kind, bool) {
	if len(entities) == 0 {
		return "", false
	}
	if len(allowlist) == 0 {
		return entities[0].Kind, true
	}
	allowed := make(map[pii.Kind]bool, len(allowlist))
	for _, k := range allowlist {
		allowed[k] = true
	}
	for _, e := range entities {
		if allowed[e.Kind] {
			return e.Kind, true
		}
	}
	return "", false
}

func matchesContent(patterns []*regexp.Regexp, text string) (string, bool) {
	for _, p := range patterns {
		if p.MatchString(text) {
			return p.String(), true
		}
	}
	return "", false
}

func violation(r Rule, message string) gwerrors.Violation {
	return gwerrors.Violation{RuleName: r.Name, Severity: string(r.Severity), Message: message}
}

func violationWithDetails(r Rule, message string, details map[string]interface{}) gwerrors.Violation {
	v := violation(r, message)
	v.Details = details
	return v
}

// CompilePatterns compiles a list of raw pattern strings case-insensitively,
// matching the source's re.IGNORECASE content filter.
func CompilePatterns(raw []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// NormalizeSeverity lower-cases and trims a YAML-provided severity string.
func NormalizeSeverity(s string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(s)))
}
