package critique

import (
	"context"
	"sync"

	"github.com/agentjido/confgate/pkg/candidate"
)

// Mock returns canned critiques for tests and local runs. Responses are keyed
// by candidate content.
type Mock struct {
	mu        sync.Mutex
	responses map[string]*Result
	fallback  *Result
	err       error
	calls     []string
}

// NewMock creates a mock critic that rates everything 0.5 with neutral
// feedback.
func NewMock() *Mock {
	return &Mock{
		responses: make(map[string]*Result),
		fallback:  MustNew(0.5, "no concerns identified"),
	}
}

// SetResponse registers a canned critique for one candidate content.
func (m *Mock) SetResponse(content string, r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[content] = r
}

// SetFallback replaces the critique returned for unregistered content.
func (m *Mock) SetFallback(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = r
}

// SetError makes every subsequent Critique call fail with err.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Critique records the call and returns the canned critique for the
// candidate's content, or the fallback.
func (m *Mock) Critique(_ context.Context, _ string, c *candidate.Candidate) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content := ""
	if c != nil {
		content = c.Content
	}
	m.calls = append(m.calls, content)
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.responses[content]; ok {
		return r, nil
	}
	return m.fallback, nil
}

// Calls returns the candidate contents seen so far, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
