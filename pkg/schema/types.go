// Package schema defines the validated value objects exchanged with external
// verifiers and the canonical hashing helpers shared by the archive and
// receipt layers. The structs here are consumed as opaque data: the routing
// core never interprets them beyond validation.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	SchemaVerificationV1 = "confgate.verification.v1"
	SchemaUncertaintyV1  = "confgate.uncertainty.v1"
	SchemaReceiptV1      = "confgate.receipt.v1"
	SignatureAlgEd25519  = "ed25519"
)

// EvidenceKind names what a receipt evidence reference points at.
type EvidenceKind string

const (
	EvidenceKindDecision EvidenceKind = "decision.record"
	EvidenceKindObject   EvidenceKind = "archive.object"
	EvidenceKindGate     EvidenceKind = "gate.fingerprint"
)

// === Verification ===

// VerificationResult reports an external verifier's judgment of a candidate
// answer. StepScores carries optional per-step process reward model scores.
type VerificationResult struct {
	Schema     string         `json:"schema"` // SchemaVerificationV1
	Verified   bool           `json:"verified"`
	Score      float64        `json:"score"`
	Method     string         `json:"method"`
	StepScores []float64      `json:"step_scores,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewVerification creates a verification result with the current schema
// version.
func NewVerification(verified bool, score float64, method string) *VerificationResult {
	return &VerificationResult{
		Schema:   SchemaVerificationV1,
		Verified: verified,
		Score:    score,
		Method:   method,
	}
}

func (v *VerificationResult) Validate() error {
	if v == nil {
		return fmt.Errorf("verification result is nil")
	}
	if v.Schema != SchemaVerificationV1 {
		return fmt.Errorf("verification schema must be %q", SchemaVerificationV1)
	}
	if math.IsNaN(v.Score) || v.Score < 0 || v.Score > 1 {
		return fmt.Errorf("verification score %v outside [0, 1]", v.Score)
	}
	if strings.TrimSpace(v.Method) == "" {
		return fmt.Errorf("verification method required")
	}
	for i, s := range v.StepScores {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return fmt.Errorf("step score %d: %v outside [0, 1]", i, s)
		}
	}
	return nil
}

// MinStepScore returns the weakest per-step score. The second return is false
// when no step scores are present.
func (v *VerificationResult) MinStepScore() (float64, bool) {
	if len(v.StepScores) == 0 {
		return 0, false
	}
	min := v.StepScores[0]
	for _, s := range v.StepScores[1:] {
		if s < min {
			min = s
		}
	}
	return min, true
}

// MeanStepScore returns the average per-step score. The second return is
// false when no step scores are present.
func (v *VerificationResult) MeanStepScore() (float64, bool) {
	if len(v.StepScores) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range v.StepScores {
		sum += s
	}
	return sum / float64(len(v.StepScores)), true
}

// === Uncertainty ===

// UncertaintyResult summarizes token-level uncertainty of one generation.
// Entropies are in nats and unbounded above.
type UncertaintyResult struct {
	Schema         string         `json:"schema"` // SchemaUncertaintyV1
	Mean           float64        `json:"mean"`
	Std            float64        `json:"std"`
	TokenEntropies []float64      `json:"token_entropies,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewUncertainty summarizes a sequence of per-token entropies, computing the
// mean and population standard deviation. Empty input yields zeros.
func NewUncertainty(entropies []float64) *UncertaintyResult {
	u := &UncertaintyResult{
		Schema:         SchemaUncertaintyV1,
		TokenEntropies: append([]float64(nil), entropies...),
	}
	if len(entropies) == 0 {
		return u
	}
	sum := 0.0
	for _, e := range entropies {
		sum += e
	}
	u.Mean = sum / float64(len(entropies))
	variance := 0.0
	for _, e := range entropies {
		d := e - u.Mean
		variance += d * d
	}
	u.Std = math.Sqrt(variance / float64(len(entropies)))
	return u
}

func (u *UncertaintyResult) Validate() error {
	if u == nil {
		return fmt.Errorf("uncertainty result is nil")
	}
	if u.Schema != SchemaUncertaintyV1 {
		return fmt.Errorf("uncertainty schema must be %q", SchemaUncertaintyV1)
	}
	if math.IsNaN(u.Mean) || math.IsInf(u.Mean, 0) || u.Mean < 0 {
		return fmt.Errorf("uncertainty mean %v invalid", u.Mean)
	}
	if math.IsNaN(u.Std) || math.IsInf(u.Std, 0) || u.Std < 0 {
		return fmt.Errorf("uncertainty std %v invalid", u.Std)
	}
	for i, e := range u.TokenEntropies {
		if math.IsNaN(e) || math.IsInf(e, 0) || e < 0 {
			return fmt.Errorf("token entropy %d: %v invalid", i, e)
		}
	}
	return nil
}

// === Receipt building blocks ===

// EvidenceRef points a receipt at one piece of evidence by content hash.
type EvidenceRef struct {
	Kind   string `json:"kind"` // EvidenceKind*
	SHA256 string `json:"sha256"`
}

func (e *EvidenceRef) Validate() error {
	if !isEvidenceKindAllowed(e.Kind) {
		return fmt.Errorf("evidence kind %q not allowed", e.Kind)
	}
	if !isHex64(e.SHA256) {
		return fmt.Errorf("evidence sha256 invalid")
	}
	return nil
}

// Receipt is a portable, re-verifiable summary of one archived routing
// decision. Evidence refs bind it to the decision record, the stored routing
// result, and the gate configuration that produced it; each hash can be
// recomputed from the archive later.
type Receipt struct {
	Schema     string        `json:"schema"` // SchemaReceiptV1
	ID         string        `json:"id"`
	DecisionID string        `json:"decision_id"`
	IssuedAt   time.Time     `json:"issued_at"`
	Action     string        `json:"action"`
	Evidence   []EvidenceRef `json:"evidence"`
	Signature  *Signature    `json:"signature,omitempty"`
}

func (r *Receipt) Validate() error {
	if r == nil {
		return fmt.Errorf("receipt is nil")
	}
	if r.Schema != SchemaReceiptV1 {
		return fmt.Errorf("receipt schema must be %q", SchemaReceiptV1)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("receipt id required")
	}
	if strings.TrimSpace(r.DecisionID) == "" {
		return fmt.Errorf("receipt decision_id required")
	}
	if r.IssuedAt.IsZero() {
		return fmt.Errorf("receipt issued_at required")
	}
	if len(r.Evidence) == 0 {
		return fmt.Errorf("receipt evidence required")
	}
	for i := range r.Evidence {
		if err := r.Evidence[i].Validate(); err != nil {
			return fmt.Errorf("evidence %d: %w", i, err)
		}
	}
	if r.Signature != nil {
		if err := r.Signature.Validate(); err != nil {
			return fmt.Errorf("signature: %w", err)
		}
	}
	return nil
}

// FindEvidence returns the first evidence ref of the given kind.
func (r *Receipt) FindEvidence(kind EvidenceKind) (EvidenceRef, bool) {
	for _, ref := range r.Evidence {
		if ref.Kind == string(kind) {
			return ref, true
		}
	}
	return EvidenceRef{}, false
}

// Signature carries a detached signature over a receipt's canonical JSON.
type Signature struct {
	Alg      string `json:"alg"` // SignatureAlgEd25519
	PubKeyID string `json:"pubkey_id"`
	Sig      string `json:"sig"`
}

func (s *Signature) Validate() error {
	if s.Alg != SignatureAlgEd25519 {
		return fmt.Errorf("signature alg must be %q", SignatureAlgEd25519)
	}
	if strings.TrimSpace(s.PubKeyID) == "" {
		return fmt.Errorf("signature pubkey_id required")
	}
	if strings.TrimSpace(s.Sig) == "" {
		return fmt.Errorf("signature sig required")
	}
	return nil
}

// === Canonical hashing ===

// canonicalJSON relies on encoding/json emitting map keys in sorted order,
// which keeps the encoding stable for hash computation.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ComputeSHA256 hashes the canonical JSON encoding of v and returns the
// lowercase hex digest.
func ComputeSHA256(v any) (string, error) {
	data, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

// ComputeSHA256Bytes hashes raw bytes, for callers that already hold the
// serialized form.
func ComputeSHA256Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func isEvidenceKindAllowed(kind string) bool {
	switch EvidenceKind(kind) {
	case EvidenceKindDecision, EvidenceKindObject, EvidenceKindGate:
		return true
	default:
		return false
	}
}

func isHex64(value string) bool {
	if len(value) != 64 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
