package similarity_test

import (
	"testing"

	"github.com/oguzhankir/ai-gateway/similarity"
)

func TestCosineSelfSimilarityIsOne(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	got := similarity.Cosine(v, v)
	if got < 0.999999 || got > 1.000001 {
		t.Fatalf("expected ~1.0, got %v", got)
	}
}

func TestCosineOrthogonalIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := similarity.Cosine(a, b); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestCosineZeroNormReturnsZero(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if got := similarity.Cosine(a, b); got != 0 {
		t.Fatalf("expected 0 for zero-norm input, got %v", got)
	}
}

func TestCosineMismatchedLengthReturnsZero(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{1, 2, 3}
	if got := similarity.Cosine(a, b); got != 0 {
		t.Fatalf("expected 0 for mismatched lengths, got %v", got)
	}
}

func TestIsSimilar(t *testing.T) {
	a := []float32{1, 1}
	b := []float32{1, 1.01}
	if !similarity.IsSimilar(a, b, 0.99) {
		t.Fatalf("expected near-identical vectors to be similar")
	}
	if similarity.IsSimilar([]float32{1, 0}, []float32{0, 1}, 0.5) {
		t.Fatalf("expected orthogonal vectors not to be similar")
	}
}
