package confidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidScore marks a score outside [0, 1].
	ErrInvalidScore = errors.New("invalid score")
	// ErrInvalidConfidence marks a token-level confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("invalid confidence")
	// ErrInvalidMethod marks a missing or blank method identifier.
	ErrInvalidMethod = errors.New("invalid method")
	// ErrInvalidMap marks a malformed top-level structure during deserialization.
	ErrInvalidMap = errors.New("invalid map")
)

// Estimate is an externally produced confidence estimate, validated here
// before the gate consumes it. Immutable after construction.
type Estimate struct {
	Score                float64        `json:"score"`
	Method               string         `json:"method"`
	Calibration          *float64       `json:"calibration,omitempty"`
	Reasoning            string         `json:"reasoning,omitempty"`
	TokenLevelConfidence []float64      `json:"token_level_confidence,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// New creates an Estimate, validating the score range and method identifier.
func New(score float64, method string) (*Estimate, error) {
	e := &Estimate{
		Score:    score,
		Method:   method,
		Metadata: make(map[string]any),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(score float64, method string) *Estimate {
	e, err := New(score, method)
	if err != nil {
		panic(err)
	}
	return e
}

// WithCalibration returns a copy with the calibration value set.
func (e *Estimate) WithCalibration(calibration float64) *Estimate {
	next := e.clone()
	next.Calibration = &calibration
	return next
}

// WithReasoning returns a copy with the reasoning text set.
func (e *Estimate) WithReasoning(reasoning string) *Estimate {
	next := e.clone()
	next.Reasoning = reasoning
	return next
}

// WithTokenConfidence returns a copy with per-token confidences attached,
// validating that every entry lies in [0, 1].
func (e *Estimate) WithTokenConfidence(scores []float64) (*Estimate, error) {
	for i, s := range scores {
		if s < 0 || s > 1 || math.IsNaN(s) {
			return nil, fmt.Errorf("%w: token_level_confidence[%d] = %v out of [0,1]", ErrInvalidConfidence, i, s)
		}
	}
	next := e.clone()
	next.TokenLevelConfidence = append([]float64(nil), scores...)
	return next, nil
}

// WithMetadata returns a copy with one metadata entry added.
func (e *Estimate) WithMetadata(key string, value any) *Estimate {
	next := e.clone()
	next.Metadata[key] = value
	return next
}

// Validate checks the full estimate: score in [0, 1], method present, and
// every token-level entry in [0, 1].
func (e *Estimate) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil estimate", ErrInvalidConfidence)
	}
	if e.Score < 0 || e.Score > 1 || math.IsNaN(e.Score) {
		return fmt.Errorf("%w: score %v out of [0,1]", ErrInvalidScore, e.Score)
	}
	if strings.TrimSpace(e.Method) == "" {
		return fmt.Errorf("%w: method is required", ErrInvalidMethod)
	}
	if e.Calibration != nil && (math.IsNaN(*e.Calibration) || math.IsInf(*e.Calibration, 0)) {
		return fmt.Errorf("%w: calibration must be a finite number", ErrInvalidConfidence)
	}
	for i, s := range e.TokenLevelConfidence {
		if s < 0 || s > 1 || math.IsNaN(s) {
			return fmt.Errorf("%w: token_level_confidence[%d] = %v out of [0,1]", ErrInvalidConfidence, i, s)
		}
	}
	return nil
}

// ToMap serializes the estimate to an open string-keyed map, omitting
// absent optional fields.
func (e *Estimate) ToMap() map[string]any {
	m := map[string]any{
		"score":  e.Score,
		"method": e.Method,
	}
	if e.Calibration != nil {
		m["calibration"] = *e.Calibration
	}
	if e.Reasoning != "" {
		m["reasoning"] = e.Reasoning
	}
	if len(e.TokenLevelConfidence) > 0 {
		m["token_level_confidence"] = append([]float64(nil), e.TokenLevelConfidence...)
	}
	if len(e.Metadata) > 0 {
		m["metadata"] = copyMetadata(e.Metadata)
	}
	return m
}

// FromMap reconstructs an Estimate from an open map, re-running full
// validation. Absent optional fields default; a missing score or method is
// an error because both are required.
func FromMap(m map[string]any) (*Estimate, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidMap)
	}
	e := &Estimate{Metadata: make(map[string]any)}

	raw, ok := m["score"]
	if !ok {
		return nil, fmt.Errorf("%w: score is required", ErrInvalidScore)
	}
	score, ok := asFloat(raw)
	if !ok {
		return nil, fmt.Errorf("%w: score must be a number, got %T", ErrInvalidScore, raw)
	}
	e.Score = score

	method, ok := m["method"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: method must be a string", ErrInvalidMethod)
	}
	e.Method = method

	if raw, ok := m["calibration"]; ok && raw != nil {
		c, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: calibration must be a number, got %T", ErrInvalidConfidence, raw)
		}
		e.Calibration = &c
	}
	if raw, ok := m["reasoning"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: reasoning must be a string, got %T", ErrInvalidMap, raw)
		}
		e.Reasoning = s
	}
	if raw, ok := m["token_level_confidence"]; ok && raw != nil {
		scores, err := asFloatSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: token_level_confidence: %v", ErrInvalidConfidence, err)
		}
		e.TokenLevelConfidence = scores
	}
	if raw, ok := m["metadata"]; ok && raw != nil {
		meta, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: metadata must be a map, got %T", ErrInvalidMap, raw)
		}
		e.Metadata = copyMetadata(meta)
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// MarshalJSON serializes via ToMap so absent fields stay omitted.
func (e *Estimate) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

// UnmarshalJSON deserializes via FromMap so validation always runs.
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

func (e *Estimate) clone() *Estimate {
	next := &Estimate{
		Score:     e.Score,
		Method:    e.Method,
		Reasoning: e.Reasoning,
		Metadata:  copyMetadata(e.Metadata),
	}
	if e.Calibration != nil {
		c := *e.Calibration
		next.Calibration = &c
	}
	if e.TokenLevelConfidence != nil {
		next.TokenLevelConfidence = append([]float64(nil), e.TokenLevelConfidence...)
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

func asFloatSlice(v any) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return append([]float64(nil), s...), nil
	case []any:
		out := make([]float64, len(s))
		for i, item := range s {
			f, ok := asFloat(item)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not a number", i, item)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of numbers, got %T", v)
}
