package difficulty

import (
	"context"
	"strings"
	"testing"
)

func TestHeuristicLevels(t *testing.T) {
	h := NewHeuristic()

	tests := []struct {
		name  string
		query string
		want  Level
	}{
		{"lookup question", "What is the capital of France", LevelEasy},
		{"definition", "Define osmosis", LevelEasy},
		{
			"derivation",
			"Prove that the algorithm terminates and derive its worst-case bound; compare the trade-off against the naive approach and explain why the amortized analysis still holds",
			LevelHard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := h.Estimate(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Estimate() error = %v", err)
			}
			if est.Level != tt.want {
				t.Errorf("Estimate(%q).Level = %v (score %v), want %v", tt.query, est.Level, *est.Score, tt.want)
			}
		})
	}
}

func TestHeuristicNoTriggers(t *testing.T) {
	est, err := NewHeuristic().Estimate(context.Background(), "the cat sat on the mat")
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if est.Level != LevelMedium {
		t.Errorf("triggerless query level = %v, want medium", est.Level)
	}
	if est.Confidence == nil || *est.Confidence != 0.5 {
		t.Errorf("triggerless confidence = %v, want 0.5", est.Confidence)
	}
}

func TestHeuristicBounds(t *testing.T) {
	h := NewHeuristic()
	queries := []string{
		"",
		"?",
		"what is what is what is",
		strings.Repeat("prove derive optimize ", 30),
		"Explain why; and compare; and design a refactor?",
	}

	for _, q := range queries {
		est, err := h.Estimate(context.Background(), q)
		if err != nil {
			t.Fatalf("Estimate(%q) error = %v", q, err)
		}
		if *est.Score < 0 || *est.Score > 1 {
			t.Errorf("Estimate(%q).Score = %v, out of [0,1]", q, *est.Score)
		}
		if *est.Confidence < 0 || *est.Confidence > 1 {
			t.Errorf("Estimate(%q).Confidence = %v, out of [0,1]", q, *est.Confidence)
		}
	}
}

func TestHeuristicRecordsFeatures(t *testing.T) {
	est, err := NewHeuristic().Estimate(context.Background(), "Compare quicksort and mergesort")
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	for _, feature := range []string{"hard_triggers", "easy_triggers", "word_count", "length_signal", "structure_signal"} {
		if _, ok := est.Features[feature]; !ok {
			t.Errorf("Features missing %q", feature)
		}
	}
	hard, ok := est.Features["hard_triggers"].([]string)
	if !ok || len(hard) == 0 {
		t.Errorf("hard_triggers = %v, want compare matched", est.Features["hard_triggers"])
	}
}

func TestHeuristicWordBoundaries(t *testing.T) {
	h := NewHeuristic()

	// "prove" inside "improve" must not match.
	est, err := h.Estimate(context.Background(), "improve the wording")
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if hard, ok := est.Features["hard_triggers"].([]string); ok && len(hard) > 0 {
		t.Errorf("hard_triggers = %v, want no match inside larger word", hard)
	}
}

func TestHeuristicCustomTriggers(t *testing.T) {
	h := NewHeuristic(
		WithHardTriggers([]string{"integrate"}),
		WithEasyTriggers([]string{"hello"}),
	)

	est, err := h.Estimate(context.Background(), "integrate the flux across the manifold")
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	hard, _ := est.Features["hard_triggers"].([]string)
	if len(hard) != 1 || hard[0] != "integrate" {
		t.Errorf("hard_triggers = %v, want [integrate]", hard)
	}
}
