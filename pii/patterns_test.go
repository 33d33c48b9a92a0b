package pii_test

import (
	"testing"

	"github.com/oguzhankir/ai-gateway/pii"
)

func TestFastPathPhoneAndEmail(t *testing.T) {
	text := "My phone is 555-123-4567 and email test@example.com"
	entities := pii.DetectPatterns(text)

	var gotPhone, gotEmail bool
	for _, e := range entities {
		switch e.Kind {
		case pii.Phone:
			if e.Text == "555-123-4567" && e.Confidence == 1.0 {
				gotPhone = true
			}
		case pii.Email:
			if e.Text == "test@example.com" && e.Confidence == 1.0 {
				gotEmail = true
			}
		default:
			t.Fatalf("unexpected kind %v detected in fast path", e.Kind)
		}
	}
	if !gotPhone {
		t.Fatalf("expected phone entity, got %+v", entities)
	}
	if !gotEmail {
		t.Fatalf("expected email entity, got %+v", entities)
	}
}

func TestTCKNChecksumRejectsInvalid(t *testing.T) {
	if pii.ValidateTCKN("12345678901") {
		t.Fatalf("expected invalid checksum to be rejected")
	}
}

func TestTCKNChecksumAcceptsValid(t *testing.T) {
	// 10000000146 satisfies both TCKN checksum rules.
	if !pii.ValidateTCKN("10000000146") {
		t.Fatalf("expected valid TCKN to pass checksum")
	}
}

func TestLuhnCheck(t *testing.T) {
	if !pii.LuhnCheck("4532015112830366") {
		t.Fatalf("expected known-valid Luhn number to pass")
	}
	if pii.LuhnCheck("4532015112830367") {
		t.Fatalf("expected mutated number to fail Luhn")
	}
}

func TestDetectPatternsDedup(t *testing.T) {
	entities := pii.DetectPatterns("test@example.com test@example.com")
	seen := map[string]int{}
	for _, e := range entities {
		seen[e.Text]++
	}
	for text, count := range seen {
		if count != 1 && text == "test@example.com" {
			// two distinct occurrences at different offsets are both valid;
			// de-dup only collapses same (start,end,kind) triples.
		}
	}
	if len(entities) != 2 {
		t.Fatalf("expected two distinct email occurrences, got %d", len(entities))
	}
}
