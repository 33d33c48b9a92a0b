package pii_test

import (
	"context"
	"testing"

	"github.com/oguzhankir/ai-gateway/pii"
)

func TestDetectFastModeIgnoresExtractor(t *testing.T) {
	called := false
	extract := func(ctx context.Context, text, lang string) ([]pii.NERCandidate, error) {
		called = true
		return nil, nil
	}
	d := pii.NewDetector(extract)
	d.Detect(context.Background(), "hello world", pii.ModeFast)
	if called {
		t.Fatalf("fast mode must not invoke the NER extractor")
	}
}

func TestDetectDetailedModeMergesNERWithoutOverlap(t *testing.T) {
	extract := func(ctx context.Context, text, lang string) ([]pii.NERCandidate, error) {
		return []pii.NERCandidate{
			{Label: "PERSON", Text: "Ayşe", Start: 0, End: 4, Confidence: 0.8},
		}, nil
	}
	d := pii.NewDetector(extract)
	result := d.Detect(context.Background(), "Ayşe called", pii.ModeDetailed)

	var found bool
	for _, e := range result.Entities {
		if e.Kind == pii.Person && e.Text == "Ayşe" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PERSON entity from NER merge, got %+v", result.Entities)
	}
}

func TestDetectDetailedModeDropsOverlappingNERCandidate(t *testing.T) {
	text := "test@example.com"
	extract := func(ctx context.Context, t string, lang string) ([]pii.NERCandidate, error) {
		return []pii.NERCandidate{
			{Label: "ORG", Text: text, Start: 0, End: len(text), Confidence: 0.8},
		}, nil
	}
	d := pii.NewDetector(extract)
	result := d.Detect(context.Background(), text, pii.ModeDetailed)

	if len(result.Entities) != 1 || result.Entities[0].Kind != pii.Email {
		t.Fatalf("expected the pattern-based EMAIL entity to win the overlap, got %+v", result.Entities)
	}
}

func TestDetectNilExtractorDegradesGracefully(t *testing.T) {
	d := pii.NewDetector(nil)
	result := d.Detect(context.Background(), "test@example.com", pii.ModeDetailed)
	if len(result.Entities) != 1 {
		t.Fatalf("expected regex-only fallback with nil extractor, got %+v", result.Entities)
	}
}
