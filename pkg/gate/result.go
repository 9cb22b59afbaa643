package gate

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/agentjido/confgate/pkg/candidate"
)

// RoutingResult is the externally visible outcome of one Route call.
type RoutingResult struct {
	Action          Action
	Candidate       *candidate.Candidate
	OriginalScore   float64
	ConfidenceLevel Level
	Reasoning       string
	Metadata        map[string]any
}

// Validate checks that the result carries a known action and level and a
// score in [0, 1]. Deserialization is lenient about the enum fields, so
// callers reading untrusted maps should validate before acting on them.
func (r *RoutingResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidMap)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidAction, r.Action)
	}
	if !r.ConfidenceLevel.Valid() {
		return fmt.Errorf("%w: unknown confidence level %q", ErrInvalidMap, r.ConfidenceLevel)
	}
	if math.IsNaN(r.OriginalScore) || r.OriginalScore < 0 || r.OriginalScore > 1 {
		return fmt.Errorf("%w: original score %v outside [0, 1]", ErrInvalidScore, r.OriginalScore)
	}
	return nil
}

// ToMap renders the result as a plain map for serialization. A missing
// candidate serializes as an explicit nil.
func (r *RoutingResult) ToMap() map[string]any {
	m := map[string]any{
		"action":           string(r.Action),
		"original_score":   r.OriginalScore,
		"confidence_level": string(r.ConfidenceLevel),
	}
	if r.Candidate != nil {
		m["candidate"] = r.Candidate.ToMap()
	} else {
		m["candidate"] = nil
	}
	if r.Reasoning != "" {
		m["reasoning"] = r.Reasoning
	}
	if len(r.Metadata) > 0 {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		m["metadata"] = meta
	}
	return m
}

// ResultFromMap rebuilds a RoutingResult from its map form. The action and
// confidence level fields are preserved as-is even when unrecognized; use
// Validate to reject them. The score and the embedded candidate are checked
// strictly.
func ResultFromMap(m map[string]any) (*RoutingResult, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidMap)
	}

	r := &RoutingResult{}

	if v, ok := m["action"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: action must be a string, got %T", ErrInvalidMap, v)
		}
		r.Action = Action(s)
	}
	if v, ok := m["confidence_level"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: confidence_level must be a string, got %T", ErrInvalidMap, v)
		}
		r.ConfidenceLevel = Level(s)
	}

	if v, ok := m["original_score"]; ok {
		score, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: original_score must be a number, got %T", ErrInvalidMap, v)
		}
		if math.IsNaN(score) || score < 0 || score > 1 {
			return nil, fmt.Errorf("%w: original score %v outside [0, 1]", ErrInvalidScore, score)
		}
		r.OriginalScore = score
	}

	if v, ok := m["candidate"]; ok && v != nil {
		cm, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: candidate must be a map, got %T", ErrInvalidMap, v)
		}
		c, err := candidate.FromMap(cm)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate: %v", ErrInvalidMap, err)
		}
		r.Candidate = c
	}

	if v, ok := m["reasoning"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: reasoning must be a string, got %T", ErrInvalidMap, v)
		}
		r.Reasoning = s
	}
	if v, ok := m["metadata"]; ok && v != nil {
		meta, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: metadata must be a map, got %T", ErrInvalidMap, v)
		}
		r.Metadata = meta
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}

	return r, nil
}

// MarshalJSON serializes via ToMap.
func (r *RoutingResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON deserializes via ResultFromMap.
func (r *RoutingResult) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	parsed, err := ResultFromMap(m)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// asFloat accepts the numeric types JSON decoding or in-process construction
// can produce.
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
	default:
		return 0, false
	}
}
