package difficulty

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Level classifies how hard a query is.
type Level string

const (
	LevelEasy   Level = "easy"
	LevelMedium Level = "medium"
	LevelHard   Level = "hard"
)

// Score thresholds for the level classifier.
const (
	easyBelow = 0.35
	hardAbove = 0.65
)

var (
	// ErrInvalidScore marks a score outside [0, 1].
	ErrInvalidScore = errors.New("invalid score")
	// ErrInvalidConfidence marks a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("invalid confidence")
	// ErrInvalidLevel marks a level outside {easy, medium, hard}, including
	// unrecognized strings during deserialization.
	ErrInvalidLevel = errors.New("invalid level")
	// ErrInvalidMap marks a malformed top-level structure during deserialization.
	ErrInvalidMap = errors.New("invalid map")
)

// ToLevel classifies a score: easy below 0.35, hard above 0.65, medium in
// between. Exposed standalone so external estimators can reuse the
// classification without constructing a full estimate.
func ToLevel(score float64) Level {
	switch {
	case score < easyBelow:
		return LevelEasy
	case score > hardAbove:
		return LevelHard
	default:
		return LevelMedium
	}
}

// ParseLevel converts a wire string into a Level. Anything outside the three
// recognized values is rejected, never coerced.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelEasy, LevelMedium, LevelHard:
		return Level(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Estimate is a validated difficulty classification. Constructed once,
// immutable thereafter.
type Estimate struct {
	Level      Level          `json:"level"`
	Score      *float64       `json:"score,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Features   map[string]any `json:"features,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Option configures one attribute during construction.
type Option func(*Estimate)

// WithLevel sets an explicit level. A caller-supplied level is trusted as
// given, even when inconsistent with the score: this allows human override.
func WithLevel(level Level) Option {
	return func(e *Estimate) { e.Level = level }
}

// WithScore sets the numeric difficulty score.
func WithScore(score float64) Option {
	return func(e *Estimate) { e.Score = &score }
}

// WithConfidence sets the estimator's confidence in its own estimate.
func WithConfidence(confidence float64) Option {
	return func(e *Estimate) { e.Confidence = &confidence }
}

// WithReasoning sets the free-text reasoning.
func WithReasoning(reasoning string) Option {
	return func(e *Estimate) { e.Reasoning = reasoning }
}

// WithFeature records one named signal that informed the estimate.
func WithFeature(name string, value any) Option {
	return func(e *Estimate) { e.Features[name] = value }
}

// WithMetadata adds one metadata entry.
func WithMetadata(key string, value any) Option {
	return func(e *Estimate) { e.Metadata[key] = value }
}

// New builds an Estimate. Score and confidence must lie in [0, 1] when
// present. When no level is supplied it is derived from the score (absent
// score means medium); a supplied level is kept as given.
func New(opts ...Option) (*Estimate, error) {
	e := &Estimate{
		Features: make(map[string]any),
		Metadata: make(map[string]any),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.Score != nil && (*e.Score < 0 || *e.Score > 1 || math.IsNaN(*e.Score)) {
		return nil, fmt.Errorf("%w: score %v out of [0,1]", ErrInvalidScore, *e.Score)
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1 || math.IsNaN(*e.Confidence)) {
		return nil, fmt.Errorf("%w: confidence %v out of [0,1]", ErrInvalidConfidence, *e.Confidence)
	}

	if e.Level == "" {
		if e.Score != nil {
			e.Level = ToLevel(*e.Score)
		} else {
			e.Level = LevelMedium
		}
	} else if _, err := ParseLevel(string(e.Level)); err != nil {
		return nil, err
	}

	return e, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(opts ...Option) *Estimate {
	e, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// ToMap serializes the estimate to an open string-keyed map, omitting absent
// optional fields. The level travels as its enumerated string.
func (e *Estimate) ToMap() map[string]any {
	m := map[string]any{"level": string(e.Level)}
	if e.Score != nil {
		m["score"] = *e.Score
	}
	if e.Confidence != nil {
		m["confidence"] = *e.Confidence
	}
	if e.Reasoning != "" {
		m["reasoning"] = e.Reasoning
	}
	if len(e.Features) > 0 {
		m["features"] = copyMap(e.Features)
	}
	if len(e.Metadata) > 0 {
		m["metadata"] = copyMap(e.Metadata)
	}
	return m
}

// FromMap reconstructs an Estimate through the normal constructor. The level
// string is checked against the closed set before anything else is parsed, so
// an unrecognized wire value can never partially construct an estimate.
func FromMap(m map[string]any) (*Estimate, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidMap)
	}

	var opts []Option
	if raw, ok := m["level"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: level must be a string, got %T", ErrInvalidLevel, raw)
		}
		level, err := ParseLevel(s)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLevel(level))
	}

	if raw, ok := m["score"]; ok && raw != nil {
		f, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: score must be a number, got %T", ErrInvalidScore, raw)
		}
		opts = append(opts, WithScore(f))
	}
	if raw, ok := m["confidence"]; ok && raw != nil {
		f, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: confidence must be a number, got %T", ErrInvalidConfidence, raw)
		}
		opts = append(opts, WithConfidence(f))
	}
	if raw, ok := m["reasoning"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: reasoning must be a string, got %T", ErrInvalidMap, raw)
		}
		opts = append(opts, WithReasoning(s))
	}
	if raw, ok := m["features"]; ok && raw != nil {
		features, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: features must be a map, got %T", ErrInvalidMap, raw)
		}
		for k, v := range features {
			opts = append(opts, WithFeature(k, v))
		}
	}
	if raw, ok := m["metadata"]; ok && raw != nil {
		meta, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: metadata must be a map, got %T", ErrInvalidMap, raw)
		}
		for k, v := range meta {
			opts = append(opts, WithMetadata(k, v))
		}
	}

	return New(opts...)
}

// MarshalJSON serializes via ToMap so absent fields stay omitted.
func (e *Estimate) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

// UnmarshalJSON deserializes via FromMap so the level whitelist always runs.
func (e *Estimate) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

func copyMap(m map[string]any) map[string]any {
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
