package candidate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidCandidate marks a malformed candidate, alone or inside a list.
	ErrInvalidCandidate = errors.New("invalid candidate")
	// ErrInvalidMap marks a malformed top-level structure during deserialization.
	ErrInvalidMap = errors.New("invalid map")
)

// Candidate is one generated answer: text content plus an optional score,
// optional token usage, and open metadata. Values are immutable after
// construction; the With* helpers return modified copies.
type Candidate struct {
	Content    string         `json:"content"`
	Score      *float64       `json:"score,omitempty"`
	TokensUsed *int           `json:"tokens_used,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// New creates a Candidate with the given content and empty metadata.
func New(content string) *Candidate {
	return &Candidate{
		Content:  content,
		Metadata: make(map[string]any),
	}
}

// WithContent returns a copy of the candidate with the content replaced.
func (c *Candidate) WithContent(content string) *Candidate {
	next := c.clone()
	next.Content = content
	return next
}

// WithScore returns a copy of the candidate with the score set.
func (c *Candidate) WithScore(score float64) *Candidate {
	next := c.clone()
	next.Score = &score
	return next
}

// WithTokens returns a copy of the candidate with the token usage set.
func (c *Candidate) WithTokens(tokens int) *Candidate {
	next := c.clone()
	next.TokensUsed = &tokens
	return next
}

// WithMetadata returns a copy of the candidate with one metadata entry added.
func (c *Candidate) WithMetadata(key string, value any) *Candidate {
	next := c.clone()
	next.Metadata[key] = value
	return next
}

// Validate reports whether the candidate satisfies its structural rules:
// a finite score when present and non-negative token usage when present.
func (c *Candidate) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil candidate", ErrInvalidCandidate)
	}
	if c.Score != nil && (math.IsNaN(*c.Score) || math.IsInf(*c.Score, 0)) {
		return fmt.Errorf("%w: score must be a finite number", ErrInvalidCandidate)
	}
	if c.TokensUsed != nil && *c.TokensUsed < 0 {
		return fmt.Errorf("%w: tokens_used must be non-negative, got %d", ErrInvalidCandidate, *c.TokensUsed)
	}
	return nil
}

// Fingerprint returns a short content hash, used to identify candidates in
// archives and receipts.
func (c *Candidate) Fingerprint() string {
	h := sha256.Sum256([]byte(c.Content))
	return hex.EncodeToString(h[:])[:16]
}

// ToMap serializes the candidate to an open string-keyed map, omitting
// absent optional fields.
func (c *Candidate) ToMap() map[string]any {
	m := map[string]any{"content": c.Content}
	if c.Score != nil {
		m["score"] = *c.Score
	}
	if c.TokensUsed != nil {
		m["tokens_used"] = *c.TokensUsed
	}
	if len(c.Metadata) > 0 {
		m["metadata"] = copyMetadata(c.Metadata)
	}
	return m
}

// FromMap reconstructs a Candidate from an open map. Absent fields default;
// present-but-mistyped fields fail with ErrInvalidCandidate.
func FromMap(m map[string]any) (*Candidate, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidMap)
	}
	c := New("")
	if raw, ok := m["content"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: content must be a string, got %T", ErrInvalidCandidate, raw)
		}
		c.Content = s
	}
	if raw, ok := m["score"]; ok && raw != nil {
		f, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: score must be a number, got %T", ErrInvalidCandidate, raw)
		}
		c.Score = &f
	}
	if raw, ok := m["tokens_used"]; ok && raw != nil {
		n, ok := asInt(raw)
		if !ok {
			return nil, fmt.Errorf("%w: tokens_used must be an integer, got %v", ErrInvalidCandidate, raw)
		}
		c.TokensUsed = &n
	}
	if raw, ok := m["metadata"]; ok && raw != nil {
		meta, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: metadata must be a map, got %T", ErrInvalidCandidate, raw)
		}
		c.Metadata = copyMetadata(meta)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalJSON serializes via ToMap so absent fields stay omitted.
func (c *Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToMap())
}

// UnmarshalJSON deserializes via FromMap so field validation always runs.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

func (c *Candidate) clone() *Candidate {
	next := &Candidate{
		Content:  c.Content,
		Metadata: copyMetadata(c.Metadata),
	}
	if c.Score != nil {
		score := *c.Score
		next.Score = &score
	}
	if c.TokensUsed != nil {
		tokens := *c.TokensUsed
		next.TokensUsed = &tokens
	}
	return next
}

func copyMetadata(m map[string]any) map[string]any {
	newM := make(map[string]any, len(m))
	for k, v := range m {
		newM[k] = v
	}
	return newM
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
