package difficulty

import (
	"context"
	"sync"
)

// Mock returns canned estimates for tests and local runs.
type Mock struct {
	mu        sync.Mutex
	responses map[string]*Estimate
	fallback  *Estimate
	err       error
	calls     []string
}

// NewMock creates a mock estimator that answers medium for everything.
func NewMock() *Mock {
	return &Mock{
		responses: make(map[string]*Estimate),
		fallback:  MustNew(WithLevel(LevelMedium)),
	}
}

// SetResponse registers a canned estimate for one query.
func (m *Mock) SetResponse(query string, est *Estimate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[query] = est
}

// SetFallback replaces the estimate returned for unregistered queries.
func (m *Mock) SetFallback(est *Estimate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = est
}

// SetError makes every subsequent Estimate call fail with err.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Estimate records the call and returns the canned estimate for the query,
// or the fallback.
func (m *Mock) Estimate(_ context.Context, query string) (*Estimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, query)
	if m.err != nil {
		return nil, m.err
	}
	if est, ok := m.responses[query]; ok {
		return est, nil
	}
	return m.fallback, nil
}

// Calls returns the queries seen so far, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
