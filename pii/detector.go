/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Combines the regex/checksum pattern detector with an
             optional named-entity extractor. Fast mode is
             patterns-only; detailed mode adds language-dispatched
             NER, discarding any candidate whose span intersects an
             existing entity, then merges the combined set by start
             offset with the higher-confidence entity winning ties.
Root Cause:  Patterns alone miss free-text PII (names, addresses);
             NER alone misses checksummed structured formats
             (TCKN/IBAN/credit card) that patterns catch exactly.
Suitability: L3 — multi-source merge with explicit tie-breaking.
──────────────────────────────────────────────────────────────
*/

package pii

import (
	"context"
	"sort"
	"time"
)

// Detector runs pattern-based and (in detailed mode) NER-based PII
// detection. Extract may be nil — detailed mode then silently degrades
// to regex-only, per the fallback rule.
type Detector struct {
	Extract ExtractFunc
}

// NewDetector constructs a Detector. Passing a nil extractor is valid and
// results in detailed mode behaving like fast mode.
func NewDetector(extract ExtractFunc) *Detector {
	return &Detector{Extract: extract}
}

// Detect runs the configured mode over text.
func (d *Detector) Detect(ctx context.Context, text string, mode Mode) DetectionResult {
	start := time.Now()

	entities := DetectPatterns(text)

	if mode == ModeDetailed && d.Extract != nil {
		lang := DetectLanguage(text)
		if candidates, err := d.Extract(ctx, text, lang); err == nil {
			entities = mergeNER(entities, candidates)
		}
		// Extraction errors fall back to regex-only results, consistent
		// with the "silently degrade" rule for an absent/failing capability.
	}

	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	entities = resolveOverlaps(entities)

	return DetectionResult{
		Entities:         entities,
		Mode:             mode,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

// mergeNER appends NER candidates that don't intersect any existing
// pattern-based entity, mapping each candidate's raw label onto Kind and
// assigning the fixed per-label confidence.
func mergeNER(existing []Entity, candidates []NERCandidate) []Entity {
	merged := append([]Entity(nil), existing...)
	for _, c := range candidates {
		kind, ok := nerLabelToKind(c.Label)
		if !ok {
			continue
		}
		if overlapsAny(existing, c.Start, c.End) {
			continue
		}
		merged = append(merged, Entity{
			Kind:       kind,
			Text:       c.Text,
			Start:      c.Start,
			End:        c.End,
			Confidence: nerConfidence(kind),
		})
	}
	return merged
}

func overlapsAny(entities []Entity, start, end int) bool {
	for _, e := range entities {
		if start < e.End && e.Start < end {
			return true
		}
	}
	return false
}

// resolveOverlaps walks the start-sorted entity list and, whenever the
// next entity begins before the last kept entity ends, keeps whichever of
// the two has higher confidence.
func resolveOverlaps(entities []Entity) []Entity {
	if len(entities) == 0 {
		return entities
	}
	resolved := []Entity{entities[0]}
	for _, e := range entities[1:] {
		last := &resolved[len(resolved)-1]
		if e.Start < last.End {
			if e.Confidence > last.Confidence {
				*last = e
			}
			continue
		}
		resolved = append(resolved, e)
	}
	return resolved
}
