package generate

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentjido/confgate/pkg/candidate"
)

// MockSource returns deterministic candidates for local runs and tests.
type MockSource struct {
	mu              sync.Mutex
	responses       map[string][]*candidate.Candidate
	defaultResponse string
	err             error
}

// NewMockSource creates a mock source with a default response prefix.
func NewMockSource() *MockSource {
	return &MockSource{
		responses:       make(map[string][]*candidate.Candidate),
		defaultResponse: "mock response:",
	}
}

// NewMockSourceWithResponses creates a mock source with predefined candidate
// sets per query.
func NewMockSourceWithResponses(responses map[string][]*candidate.Candidate, defaultResponse string) *MockSource {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockSource{responses: responses, defaultResponse: defaultResponse}
}

// Name returns the source identifier.
func (s *MockSource) Name() string {
	return "mock"
}

// SetResponse registers a canned candidate set for one query.
func (s *MockSource) SetResponse(query string, candidates []*candidate.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[query] = candidates
}

// SetError makes every subsequent Generate call fail with err.
func (s *MockSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Generate returns the canned candidates for the query, truncated to n when
// n is positive. Unregistered queries synthesize n deterministic candidates,
// defaulting to one.
func (s *MockSource) Generate(_ context.Context, query string, n int) ([]*candidate.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	if canned, ok := s.responses[query]; ok {
		if n > 0 && len(canned) > n {
			canned = canned[:n]
		}
		return append([]*candidate.Candidate(nil), canned...), nil
	}

	if n < 1 {
		n = 1
	}
	out := make([]*candidate.Candidate, n)
	for i := range out {
		content := fmt.Sprintf("%s\n%s", s.defaultResponse, query)
		out[i] = candidate.New(content).WithMetadata("sample", i)
	}
	return out, nil
}
