/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L1
Logic:       Shared PII entity types consumed by the pattern
             detector, NER detector, and masking store.
Suitability: L1 — plain data types.
──────────────────────────────────────────────────────────────
*/

// Package pii detects, classifies, and reversibly masks personal data
// found in request and response text.
package pii

// Kind identifies the category of a detected PII entity.
type Kind string

const (
	TCKN         Kind = "TCKN"
	Phone        Kind = "PHONE"
	Email        Kind = "EMAIL"
	IBAN         Kind = "IBAN"
	CreditCard   Kind = "CREDIT_CARD"
	Address      Kind = "ADDRESS"
	Amount       Kind = "AMOUNT"
	Person       Kind = "PERSON"
	Organization Kind = "ORGANIZATION"
	Location     Kind = "LOCATION"
	Date         Kind = "DATE"
)

// Entity is a single detected span of personal data.
type Entity struct {
	Kind       Kind    `json:"kind"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Mode selects how thoroughly Detector.Detect scans a text.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeDetailed Mode = "detailed"
)

// DetectionResult is the outcome of a single Detect call.
type DetectionResult struct {
	Entities          []Entity `json:"entities"`
	Mode              Mode     `json:"mode"`
	ProcessingTimeMs  float64  `json:"processing_time_ms"`
}

// Count returns the number of detected entities, mirroring the
// to_dict()'s derived "count" field.
func (r DetectionResult) Count() int { return len(r.Entities) }
