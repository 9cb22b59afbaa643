package difficulty

import (
	"context"
	"fmt"
	"strings"
)

// Heuristic estimates difficulty from surface signals of the query text:
// trigger-phrase matches, length, and structural cues. It makes no model
// calls and is safe for concurrent use.
type Heuristic struct {
	hardTriggers []string
	easyTriggers []string
}

// Default trigger tables. Hard triggers mark analysis/derivation work; easy
// triggers mark lookup-style questions.
var (
	defaultHardTriggers = []string{
		"prove", "derive", "optimize", "trade-off", "tradeoffs", "compare",
		"explain why", "step by step", "walk through", "design", "refactor",
		"debug", "reconcile", "synthesize", "counterexample",
	}
	defaultEasyTriggers = []string{
		"what is", "what are", "who is", "who was", "when was", "when did",
		"where is", "define", "list", "name", "spell", "capital of",
	}
)

// HeuristicOption configures a Heuristic.
type HeuristicOption func(*Heuristic)

// WithHardTriggers replaces the hard trigger table.
func WithHardTriggers(triggers []string) HeuristicOption {
	return func(h *Heuristic) { h.hardTriggers = triggers }
}

// WithEasyTriggers replaces the easy trigger table.
func WithEasyTriggers(triggers []string) HeuristicOption {
	return func(h *Heuristic) { h.easyTriggers = triggers }
}

// NewHeuristic creates a heuristic estimator with the default trigger tables.
func NewHeuristic(opts ...HeuristicOption) *Heuristic {
	h := &Heuristic{
		hardTriggers: defaultHardTriggers,
		easyTriggers: defaultEasyTriggers,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Estimate scores the query and derives the level from the score. The named
// signals that produced the score are recorded in Features.
func (h *Heuristic) Estimate(_ context.Context, query string) (*Estimate, error) {
	queryLower := strings.ToLower(query)
	words := strings.Fields(queryLower)

	hardMatched := matchTriggers(queryLower, h.hardTriggers)
	easyMatched := matchTriggers(queryLower, h.easyTriggers)

	// Base difficulty from length: 40+ words saturates the signal.
	lengthSignal := float64(len(words)) / 40.0
	if lengthSignal > 1.0 {
		lengthSignal = 1.0
	}

	// Structural cues: multi-part questions and enumerated constraints.
	structure := 0.0
	if strings.Count(query, "?") > 1 {
		structure += 0.5
	}
	if strings.Count(queryLower, " and ")+strings.Count(query, ";") >= 2 {
		structure += 0.5
	}
	if structure > 1.0 {
		structure = 1.0
	}

	// Trigger delta in [-1, 1]: negative pulls toward easy, positive toward
	// hard; zero when no trigger fires.
	triggerDelta := 0.0
	if total := len(hardMatched) + len(easyMatched); total > 0 {
		triggerDelta = float64(len(hardMatched)-len(easyMatched)) / float64(total)
	}

	score := clamp01(0.5 + 0.3*triggerDelta + 0.2*(lengthSignal-0.5) + 0.1*structure)

	// Margin-style confidence: strong trigger separation means high
	// confidence, no triggers at all means we are guessing from shape.
	confidence := 0.5
	if total := len(hardMatched) + len(easyMatched); total > 0 {
		margin := float64(absInt(len(hardMatched)-len(easyMatched))) / float64(total)
		strength := float64(minInt(total, 5)) / 5.0
		confidence = clamp01(0.5 + 0.35*margin + 0.15*strength)
	}

	reasoning := fmt.Sprintf("hard_triggers=%d easy_triggers=%d words=%d", len(hardMatched), len(easyMatched), len(words))

	return New(
		WithScore(score),
		WithConfidence(confidence),
		WithReasoning(reasoning),
		WithFeature("hard_triggers", hardMatched),
		WithFeature("easy_triggers", easyMatched),
		WithFeature("word_count", len(words)),
		WithFeature("length_signal", lengthSignal),
		WithFeature("structure_signal", structure),
	)
}

func matchTriggers(queryLower string, triggers []string) []string {
	var matched []string
	for _, trigger := range triggers {
		if containsTrigger(queryLower, strings.ToLower(trigger)) {
			matched = append(matched, trigger)
		}
	}
	return matched
}

// containsTrigger checks whether the query contains the trigger phrase on
// word boundaries.
func containsTrigger(query, trigger string) bool {
	idx := strings.Index(query, trigger)
	if idx == -1 {
		return false
	}
	if idx > 0 && isWordChar(query[idx-1]) {
		return false
	}
	endIdx := idx + len(trigger)
	if endIdx < len(query) && isWordChar(query[endIdx]) {
		return false
	}
	return true
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
