package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/agentjido/confgate/pkg/gate"
	"github.com/agentjido/confgate/pkg/schema"
)

// Decision is the archived record of one routing decision. The full
// RoutingResult lives in the object store; the record carries the fields
// needed to browse and re-verify it.
type Decision struct {
	ID              string             `json:"id"`
	RoutedAt        time.Time          `json:"routed_at"`
	Query           string             `json:"query,omitempty"`
	Preset          string             `json:"preset,omitempty"`
	Action          string             `json:"action"`
	ConfidenceLevel string             `json:"confidence_level"`
	OriginalScore   float64            `json:"original_score"`
	ContentHash     string             `json:"content_hash"`
	GateFingerprint string             `json:"gate_fingerprint,omitempty"`
	ObjectRef       schema.EvidenceRef `json:"object_ref"`
}

// DecisionMeta carries the caller-supplied context for a stored decision. An
// empty ID gets a generated UUID.
type DecisionMeta struct {
	ID              string
	Query           string
	Preset          string
	GateFingerprint string
}

// StoreDecision archives the routing result as a content-addressed object,
// writes the decision record, and inserts it into the history index when one
// is attached.
func (s *Store) StoreDecision(result *gate.RoutingResult, meta DecisionMeta) (*Decision, error) {
	if result == nil {
		return nil, fmt.Errorf("routing result is nil")
	}

	ref, err := s.StoreObject(result.ToMap(), schema.EvidenceKindObject)
	if err != nil {
		return nil, fmt.Errorf("store routing result: %w", err)
	}

	content := ""
	if result.Candidate != nil {
		content = result.Candidate.Content
	}

	d := &Decision{
		ID:              meta.ID,
		RoutedAt:        time.Now().UTC(),
		Query:           meta.Query,
		Preset:          meta.Preset,
		Action:          string(result.Action),
		ConfidenceLevel: string(result.ConfidenceLevel),
		OriginalScore:   result.OriginalScore,
		ContentHash:     schema.ComputeSHA256Bytes([]byte(content)),
		GateFingerprint: meta.GateFingerprint,
		ObjectRef:       ref,
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	if err := s.writeDecision(d); err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.Insert(d); err != nil {
			return nil, fmt.Errorf("index decision: %w", err)
		}
	}

	return d, nil
}

// writeDecision renders the record as indented JSON under
// decisions/<timestamp>__<id>.json.
func (s *Store) writeDecision(d *Decision) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("%s__%s.json", d.RoutedAt.Format("20060102150405"), d.ID)
	path := filepath.Join(s.BasePath, "decisions", filename)
	return os.WriteFile(path, data, 0644)
}

// LoadDecision finds a decision record by id.
func (s *Store) LoadDecision(id string) (*Decision, error) {
	pattern := filepath.Join(s.BasePath, "decisions", "*__"+id+".json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: decision %s", ErrNotFound, id)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	d := &Decision{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse decision %s: %w", id, err)
	}
	return d, nil
}

// LoadResult reads the archived routing result a decision points at.
func (s *Store) LoadResult(d *Decision) (*gate.RoutingResult, error) {
	data, err := s.ReadObject(d.ObjectRef.SHA256)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse routing result %s: %w", d.ObjectRef.SHA256, err)
	}
	return gate.ResultFromMap(m)
}
