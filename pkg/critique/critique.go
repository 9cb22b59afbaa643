// Package critique defines the strategy contract for answer critics. The
// routing core never computes critiques itself; it only calls through the
// Critic interface and treats the results as structured judgments.
package critique

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/agentjido/confgate/pkg/candidate"
)

// ErrInvalidResult marks critique results that fail validation.
var ErrInvalidResult = errors.New("invalid critique result")

// Result is one critic's structured judgment of a candidate answer. Score is
// in [0, 1], higher meaning a better answer.
type Result struct {
	Score    float64
	Feedback string
	Issues   []string
	Metadata map[string]any
}

// New creates a validated critique result.
func New(score float64, feedback string) (*Result, error) {
	r := &Result{
		Score:    score,
		Feedback: feedback,
		Metadata: make(map[string]any),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is New for static values; it panics on error.
func MustNew(score float64, feedback string) *Result {
	r, err := New(score, feedback)
	if err != nil {
		panic(err)
	}
	return r
}

// WithIssue returns a copy with one more issue appended.
func (r *Result) WithIssue(issue string) *Result {
	next := r.clone()
	next.Issues = append(next.Issues, issue)
	return next
}

// WithMetadata returns a copy with one metadata entry added.
func (r *Result) WithMetadata(key string, value any) *Result {
	next := r.clone()
	next.Metadata[key] = value
	return next
}

func (r *Result) clone() *Result {
	next := &Result{
		Score:    r.Score,
		Feedback: r.Feedback,
		Issues:   append([]string(nil), r.Issues...),
		Metadata: make(map[string]any, len(r.Metadata)),
	}
	for k, v := range r.Metadata {
		next.Metadata[k] = v
	}
	return next
}

// Validate checks the score range.
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidResult)
	}
	if math.IsNaN(r.Score) || r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("%w: score %v outside [0, 1]", ErrInvalidResult, r.Score)
	}
	return nil
}

// Critic judges one candidate answer in the context of the query that
// produced it. Implementations must be safe for concurrent use.
type Critic interface {
	Critique(ctx context.Context, query string, c *candidate.Candidate) (*Result, error)
}

// BatchCritic is implemented by critics with a native batch path. Critics
// without one get a sequential pass from Batch.
type BatchCritic interface {
	CritiqueBatch(ctx context.Context, query string, candidates []*candidate.Candidate) ([]*Result, error)
}

// Batch critiques every candidate in order. When the critic implements
// BatchCritic its native method is used; otherwise the candidates are mapped
// sequentially over Critique. Output index i always corresponds to input
// index i.
func Batch(ctx context.Context, critic Critic, query string, candidates []*candidate.Candidate) ([]*Result, error) {
	if bc, ok := critic.(BatchCritic); ok {
		return bc.CritiqueBatch(ctx, query, candidates)
	}

	out := make([]*Result, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := critic.Critique(ctx, query, c)
		if err != nil {
			return nil, fmt.Errorf("critique candidate %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}
