package candidate

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDefaults(t *testing.T) {
	c := New("hello")
	if c.Content != "hello" {
		t.Errorf("Content = %q, want %q", c.Content, "hello")
	}
	if c.Score != nil {
		t.Errorf("Score = %v, want nil", *c.Score)
	}
	if c.TokensUsed != nil {
		t.Errorf("TokensUsed = %v, want nil", *c.TokensUsed)
	}
	if c.Metadata == nil {
		t.Error("Metadata should be initialized")
	}
}

func TestWithHelpersCopyOnWrite(t *testing.T) {
	base := New("answer").WithMetadata("source", "mock")

	scored := base.WithScore(0.8)
	if base.Score != nil {
		t.Error("WithScore mutated the original")
	}
	if scored.Score == nil || *scored.Score != 0.8 {
		t.Errorf("scored.Score = %v, want 0.8", scored.Score)
	}

	tokened := scored.WithTokens(42)
	if scored.TokensUsed != nil {
		t.Error("WithTokens mutated the original")
	}
	if tokened.TokensUsed == nil || *tokened.TokensUsed != 42 {
		t.Errorf("tokened.TokensUsed = %v, want 42", tokened.TokensUsed)
	}

	tagged := base.WithMetadata("round", 2)
	if _, ok := base.Metadata["round"]; ok {
		t.Error("WithMetadata mutated the original metadata")
	}
	if tagged.Metadata["round"] != 2 {
		t.Errorf("tagged.Metadata[round] = %v, want 2", tagged.Metadata["round"])
	}
	if tagged.Metadata["source"] != "mock" {
		t.Error("WithMetadata dropped existing entries")
	}

	rewritten := tagged.WithContent("revised answer")
	if tagged.Content != "answer" {
		t.Error("WithContent mutated the original")
	}
	if rewritten.Content != "revised answer" {
		t.Errorf("rewritten.Content = %q, want %q", rewritten.Content, "revised answer")
	}
	if rewritten.Metadata["source"] != "mock" {
		t.Error("WithContent dropped metadata")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		candidate *Candidate
		wantErr   bool
	}{
		{"plain", New("x"), false},
		{"scored", New("x").WithScore(0.5), false},
		{"negative score allowed", New("x").WithScore(-2.5), false},
		{"zero tokens", New("x").WithTokens(0), false},
		{"negative tokens", New("x").WithTokens(-1), true},
		{"nan score", New("x").WithScore(math.NaN()), true},
		{"inf score", New("x").WithScore(math.Inf(1)), true},
		{"nil candidate", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candidate.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCandidate) {
				t.Errorf("Validate() error = %v, want ErrInvalidCandidate", err)
			}
		})
	}
}

func TestFingerprintStable(t *testing.T) {
	a := New("same content")
	b := New("same content").WithScore(0.9)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should depend on content only")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a.Fingerprint()))
	}
	if a.Fingerprint() == New("other").Fingerprint() {
		t.Error("different content should fingerprint differently")
	}
}

func TestMapRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		candidate *Candidate
	}{
		{"content only", New("just text")},
		{"scored", New("scored").WithScore(0.73)},
		{"full", New("full").WithScore(0.5).WithTokens(128).WithMetadata("model", "mock-1")},
		{"empty content", New("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMap(tt.candidate.ToMap())
			if err != nil {
				t.Fatalf("FromMap() error = %v", err)
			}
			if diff := cmp.Diff(tt.candidate, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromMapErrors(t *testing.T) {
	tests := []struct {
		name    string
		m       map[string]any
		wantErr error
	}{
		{"nil map", nil, ErrInvalidMap},
		{"content not string", map[string]any{"content": 7}, ErrInvalidCandidate},
		{"score not number", map[string]any{"content": "x", "score": "high"}, ErrInvalidCandidate},
		{"tokens fractional", map[string]any{"content": "x", "tokens_used": 1.5}, ErrInvalidCandidate},
		{"tokens negative", map[string]any{"content": "x", "tokens_used": -3}, ErrInvalidCandidate},
		{"metadata not map", map[string]any{"content": "x", "metadata": []any{"a"}}, ErrInvalidCandidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.m)
			if err == nil {
				t.Fatal("FromMap() expected error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FromMap() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromMapAbsentFieldsDefault(t *testing.T) {
	c, err := FromMap(map[string]any{})
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}
	if c.Content != "" || c.Score != nil || c.TokensUsed != nil {
		t.Errorf("absent fields should default, got %+v", c)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := New("json me").WithScore(0.42).WithTokens(17).WithMetadata("k", "v")
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Candidate
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(orig, &got); diff != "" {
		t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	var c Candidate
	err := json.Unmarshal([]byte(`{"content":"x","tokens_used":-2}`), &c)
	if !errors.Is(err, ErrInvalidCandidate) {
		t.Errorf("unmarshal error = %v, want ErrInvalidCandidate", err)
	}
}
