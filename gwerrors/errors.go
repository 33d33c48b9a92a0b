/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Stable error taxonomy for the gateway pipeline: one
             distinct type per admission/processing failure class
             so the HTTP composition root can map each to a status
             code without string matching.
Root Cause:  Differentiated status codes (401/403/429/402/400/
             502/504) require typed errors, not a single generic
             failure.
Context:     The infrastructure categories (ErrCache, ErrStorage)
             are named here for labelling only: cache/audit/
             budget-tracking/webhook failures are swallowed at
             their call sites and never reach the caller.
Suitability: L2 — straightforward sentinel error types.
──────────────────────────────────────────────────────────────
*/

// Package gwerrors defines the gateway's stable error taxonomy.
package gwerrors

import (
	"fmt"
	"time"
)

// RateLimitExceeded is an admission failure raised by the rate limiter.
type RateLimitExceeded struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// BudgetExceeded is an admission failure raised by the budget meter.
type BudgetExceeded struct {
	Current float64
	Limit   float64
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("budget exceeded: current=%.4f limit=%.4f", e.Current, e.Limit)
}

// Violation is a single guardrail rule violation.
type Violation struct {
	RuleName string
	Severity string
	Message  string
	Details  map[string]interface{}
}

// GuardrailViolation is a pre- or post-model blocking failure.
type GuardrailViolation struct {
	Violations []Violation
}

func (e *GuardrailViolation) Error() string {
	return fmt.Sprintf("guardrail violation: %d rule(s) triggered", len(e.Violations))
}

// ProviderError is an upstream failure surviving retries and failover.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s error (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s error (status %d)", e.Provider, e.Status)
}

// sentinel is a lightweight string-backed error, following the
// metering-package convention for fixed, comparable error values.
type sentinel string

func (e sentinel) Error() string { return string(e) }

const (
	// ErrTimeout is returned when a provider call exceeds its deadline.
	ErrTimeout = sentinel("request timed out")
	// ErrAuthentication is returned on credential failure.
	ErrAuthentication = sentinel("authentication failed")
	// ErrValidation is returned for a malformed request.
	ErrValidation = sentinel("request validation failed")
	// ErrCache marks infrastructure degradation in the cache subsystem.
	ErrCache = sentinel("cache infrastructure error")
	// ErrStorage marks infrastructure degradation in a storage subsystem.
	ErrStorage = sentinel("storage infrastructure error")
)

// TypeName names the stable error category a value belongs to, for
// metrics labelling and audit status derivation — never for control flow,
// which should type-switch or errors.As directly.
func TypeName(err error) string {
	switch err.(type) {
	case *RateLimitExceeded:
		return "RateLimitExceeded"
	case *BudgetExceeded:
		return "BudgetExceeded"
	case *GuardrailViolation:
		return "GuardrailViolation"
	case *ProviderError:
		return "ProviderError"
	}
	switch err {
	case ErrTimeout:
		return "TimeoutError"
	case ErrAuthentication:
		return "AuthenticationError"
	case ErrValidation:
		return "ValidationError"
	case ErrCache:
		return "CacheError"
	case ErrStorage:
		return "StorageError"
	}
	return "UnknownError"
}

// AuditStatus maps an error to the request-log status vocabulary:
// {completed, failed, blocked, budget_exceeded}.
func AuditStatus(err error) string {
	switch err.(type) {
	case *BudgetExceeded:
		return "budget_exceeded"
	case *GuardrailViolation:
		return "blocked"
	}
	return "failed"
}
