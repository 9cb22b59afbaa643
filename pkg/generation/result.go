// Package generation aggregates generated candidates and selects one of them.
//
// Majority vote groups candidates by exact content equality: near-duplicate
// answers that differ in whitespace or phrasing form distinct groups. Fuzzy
// grouping via pkg/similarity is a known gap.
package generation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentjido/confgate/pkg/candidate"
)

var (
	// ErrInvalidCandidates marks a malformed candidate inside a list.
	ErrInvalidCandidates = errors.New("invalid candidates")
	// ErrInvalidMap marks a malformed top-level structure during deserialization.
	ErrInvalidMap = errors.New("invalid map")
	// ErrInvalidStrategy marks a strategy string outside the known set.
	ErrInvalidStrategy = errors.New("invalid strategy")
)

// AggregationMethod tags how a result's candidates were (or will be)
// combined. Free-form: unknown wire values coerce to none rather than fail.
type AggregationMethod string

const (
	AggregationNone         AggregationMethod = "none"
	AggregationBestOfN      AggregationMethod = "best_of_n"
	AggregationMajorityVote AggregationMethod = "majority_vote"
)

// Strategy names a selection rule for SelectByStrategy.
type Strategy string

const (
	StrategyBest  Strategy = "best"
	StrategyFirst Strategy = "first"
	StrategyLast  Strategy = "last"
	StrategyVote  Strategy = "vote"
)

// ParseStrategy converts a wire string into a Strategy, rejecting anything
// outside the known set. SelectByStrategy itself coerces unknown strategies
// to best; this is the strict boundary for configuration and manifests.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyBest, StrategyFirst, StrategyLast, StrategyVote:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// Result owns an ordered candidate sequence plus aggregates derived from it.
// Values are immutable: AddCandidate returns a new Result, and the candidate
// sequence and both caches only ever change together.
type Result struct {
	candidates  []*candidate.Candidate
	totalTokens int
	best        *candidate.Candidate
	method      AggregationMethod
	metadata    map[string]any
}

// Option configures optional Result attributes during construction.
type Option func(*Result)

// WithAggregationMethod tags the result with an aggregation method.
func WithAggregationMethod(method AggregationMethod) Option {
	return func(r *Result) { r.method = method }
}

// WithMetadata adds one metadata entry.
func WithMetadata(key string, value any) Option {
	return func(r *Result) { r.metadata[key] = value }
}

// New creates a Result from an initial (possibly empty) candidate sequence,
// computing total tokens and the best candidate once. Any invalid candidate
// fails the whole construction.
func New(candidates []*candidate.Candidate, opts ...Option) (*Result, error) {
	r := &Result{
		candidates: make([]*candidate.Candidate, 0, len(candidates)),
		method:     AggregationNone,
		metadata:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", ErrInvalidCandidates, i, err)
		}
		r.candidates = append(r.candidates, c)
	}

	r.recompute()
	return r, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(candidates []*candidate.Candidate, opts ...Option) *Result {
	r, err := New(candidates, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// AddCandidate returns a new Result with the candidate appended and both
// aggregates recomputed from the updated sequence. The receiver is unchanged.
func (r *Result) AddCandidate(c *candidate.Candidate) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidates, err)
	}

	next := &Result{
		candidates: make([]*candidate.Candidate, 0, len(r.candidates)+1),
		method:     r.method,
		metadata:   copyMetadata(r.metadata),
	}
	next.candidates = append(next.candidates, r.candidates...)
	next.candidates = append(next.candidates, c)
	next.recompute()
	return next, nil
}

// Candidates returns the candidate sequence in insertion order.
func (r *Result) Candidates() []*candidate.Candidate {
	return append([]*candidate.Candidate(nil), r.candidates...)
}

// Len returns the number of candidates.
func (r *Result) Len() int {
	return len(r.candidates)
}

// TotalTokens returns the cached sum of candidate token usage, counting
// missing usage as zero.
func (r *Result) TotalTokens() int {
	return r.totalTokens
}

// BestCandidate returns the maximum-score candidate, ties going to the first
// occurrence in insertion order. Candidates without a score are excluded;
// nil when none has one.
func (r *Result) BestCandidate() *candidate.Candidate {
	return r.best
}

// AggregationMethod returns the result's aggregation tag.
func (r *Result) AggregationMethod() AggregationMethod {
	return r.method
}

// Metadata returns a copy of the result's metadata.
func (r *Result) Metadata() map[string]any {
	return copyMetadata(r.metadata)
}

// SelectByStrategy picks one candidate: best, first, or last by insertion
// order, or vote for the most frequent exact content. Unknown strategies
// fall back to best rather than failing. Nil when the result is empty (or,
// for best, when no candidate is scored).
func (r *Result) SelectByStrategy(strategy Strategy) *candidate.Candidate {
	switch strategy {
	case StrategyFirst:
		if len(r.candidates) == 0 {
			return nil
		}
		return r.candidates[0]
	case StrategyLast:
		if len(r.candidates) == 0 {
			return nil
		}
		return r.candidates[len(r.candidates)-1]
	case StrategyVote:
		return r.majorityVote()
	case StrategyBest:
		return r.best
	default:
		return r.best
	}
}

// majorityVote groups candidates by exact content equality and returns the
// first member of the largest group. Equal-size groups go to the one whose
// first member appears earliest.
func (r *Result) majorityVote() *candidate.Candidate {
	if len(r.candidates) == 0 {
		return nil
	}

	counts := make(map[string]int, len(r.candidates))
	first := make(map[string]*candidate.Candidate, len(r.candidates))
	order := make([]string, 0, len(r.candidates))

	for _, c := range r.candidates {
		if _, seen := counts[c.Content]; !seen {
			first[c.Content] = c
			order = append(order, c.Content)
		}
		counts[c.Content]++
	}

	winner := order[0]
	for _, content := range order[1:] {
		if counts[content] > counts[winner] {
			winner = content
		}
	}
	return first[winner]
}

// recompute rebuilds both cached aggregates from the candidate sequence.
func (r *Result) recompute() {
	total := 0
	var best *candidate.Candidate
	for _, c := range r.candidates {
		if c.TokensUsed != nil {
			total += *c.TokensUsed
		}
		if c.Score == nil {
			continue
		}
		if best == nil || *c.Score > *best.Score {
			best = c
		}
	}
	r.totalTokens = total
	r.best = best
}

// ToMap serializes the result to an open string-keyed map. The cached
// aggregates travel with it for consumers, but FromMap never trusts them.
func (r *Result) ToMap() map[string]any {
	candidates := make([]map[string]any, len(r.candidates))
	for i, c := range r.candidates {
		candidates[i] = c.ToMap()
	}

	m := map[string]any{
		"candidates":         candidates,
		"total_tokens":       r.totalTokens,
		"aggregation_method": string(r.method),
	}
	if r.best != nil {
		m["best_candidate"] = r.best.ToMap()
	} else {
		m["best_candidate"] = nil
	}
	if len(r.metadata) > 0 {
		m["metadata"] = copyMetadata(r.metadata)
	}
	return m
}

// FromMap reconstructs a Result through the normal constructor, recomputing
// the aggregates from the deserialized candidates. Cached aggregate fields
// found in the map are ignored, so tampering with them cannot desynchronize
// a result from its candidate list.
func FromMap(m map[string]any) (*Result, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidMap)
	}

	var candidates []*candidate.Candidate
	if raw, ok := m["candidates"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: candidates must be a list, got %T", ErrInvalidMap, raw)
		}
		candidates = make([]*candidate.Candidate, 0, len(list))
		for i, item := range list {
			cm, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: candidate %d must be a map, got %T", ErrInvalidCandidates, i, item)
			}
			c, err := candidate.FromMap(cm)
			if err != nil {
				return nil, fmt.Errorf("%w: candidate %d: %v", ErrInvalidCandidates, i, err)
			}
			candidates = append(candidates, c)
		}
	}

	opts := []Option{WithAggregationMethod(parseAggregationMethod(m["aggregation_method"]))}
	if raw, ok := m["metadata"]; ok && raw != nil {
		meta, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: metadata must be a map, got %T", ErrInvalidMap, raw)
		}
		for k, v := range meta {
			opts = append(opts, WithMetadata(k, v))
		}
	}

	return New(candidates, opts...)
}

// parseAggregationMethod coerces a wire value to a known method, defaulting
// unknown or missing values to none. The method is a tag, not an enum: this
// lenience is intentional and differs from difficulty level parsing.
func parseAggregationMethod(raw any) AggregationMethod {
	s, ok := raw.(string)
	if !ok {
		return AggregationNone
	}
	switch AggregationMethod(s) {
	case AggregationNone, AggregationBestOfN, AggregationMajorityVote:
		return AggregationMethod(s)
	default:
		return AggregationNone
	}
}

// MarshalJSON serializes via ToMap.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON deserializes via FromMap so aggregates are always recomputed.
func (r *Result) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

func copyMetadata(m map[string]any) map[string]any {
	newM := make(map[string]any, len(m))
	for k, v := range m {
		newM[k] = v
	}
	return newM
}
