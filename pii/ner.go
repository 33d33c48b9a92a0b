/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Named-entity extraction is modelled as an injected
             capability rather than a bundled model artefact —
             the gateway consumes whatever NER backend is wired in
             (a hosted NLP service, a local model server) and
             degrades gracefully to regex-only detection when none
             is configured.
Root Cause:  Bundling model weights in a reverse-proxy process is
             an operational anti-pattern; every real deployment of
             this kind treats NER as a pluggable sidecar call.
Suitability: L2 — small interface plus a language heuristic.
──────────────────────────────────────────────────────────────
*/

package pii

import (
	"context"
	"strings"
)

// NERLabel is a raw named-entity label as returned by an extractor,
// before it is mapped onto Kind.
type NERLabel string

// NERCandidate is a single named entity as reported by an extractor,
// prior to overlap resolution against pattern-based entities.
type NERCandidate struct {
	Label      NERLabel
	Text       string
	Start      int
	End        int
	Confidence float64
}

// ExtractFunc is the capability contract for named-entity extraction.
// Implementations are free to call out to a hosted NLP model; the
// gateway core never assumes a specific backend.
type ExtractFunc func(ctx context.Context, text, language string) ([]NERCandidate, error)

var turkishChars = "çğıöşüÇĞIİÖŞÜ"

// DetectLanguage applies a cheap heuristic: presence of any
// Turkish-specific character selects "tr", otherwise "en". This mirrors
// the source system's lightweight dispatch — it is not a general
// language identifier.
func DetectLanguage(text string) string {
	if strings.ContainsAny(text, turkishChars) {
		return "tr"
	}
	return "en"
}

// nerLabelToKind maps a raw NER label onto the gateway's Kind taxonomy.
// Labels outside this table are dropped — they don't correspond to a
// PII category the rest of the pipeline understands.
func nerLabelToKind(label NERLabel) (Kind, bool) {
	switch label {
	case "PERSON":
		return Person, true
	case "ORG":
		return Organization, true
	case "GPE", "LOC":
		return Location, true
	case "MONEY":
		return Amount, true
	case "DATE":
		return Date, true
	default:
		return "", false
	}
}

func nerConfidence(kind Kind) float64 {
	switch kind {
	case Person, Organization:
		return 0.8
	default:
		return 0.9
	}
}
