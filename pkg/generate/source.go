// Package generate defines the contract for candidate producers. Actual
// generation (model invocation, sampling, temperature control) happens
// outside this repository; the sources here exist for tests and file-driven
// CLI runs.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentjido/confgate/pkg/candidate"
)

// Source produces candidate answers for a query.
type Source interface {
	// Generate returns up to n candidates for the query. A non-positive n
	// leaves the count to the source.
	Generate(ctx context.Context, query string, n int) ([]*candidate.Candidate, error)

	// Name returns the source identifier.
	Name() string
}

// FileSource reads candidates from a JSON file holding an array of candidate
// maps. The query is ignored and the file is re-read on every call.
type FileSource struct {
	path string
}

// NewFileSource creates a source backed by the given file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the source identifier.
func (s *FileSource) Name() string {
	return "file"
}

// Generate loads the file and returns up to n candidates in file order.
func (s *FileSource) Generate(_ context.Context, _ string, n int) ([]*candidate.Candidate, error) {
	candidates, err := LoadFile(s.path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// LoadFile parses a JSON array of candidate maps from disk.
func LoadFile(path string) ([]*candidate.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of candidate maps, validating each entry.
func Parse(data []byte) ([]*candidate.Candidate, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse candidates: %w", err)
	}
	out := make([]*candidate.Candidate, len(raw))
	for i, m := range raw {
		c, err := candidate.FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}
