package gate

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/agentjido/confgate/pkg/candidate"
	"github.com/agentjido/confgate/pkg/confidence"
	"github.com/agentjido/confgate/pkg/telemetry"
)

func mustRoute(t *testing.T, g *Gate, c *candidate.Candidate, score float64) *RoutingResult {
	t.Helper()
	result, err := g.Route(c, confidence.MustNew(score, "logprobs"))
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	return result
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		high    float64
		low     float64
		opts    []Option
		wantErr error
	}{
		{"defaults", 0.7, 0.4, nil, nil},
		{"citations at low", 0.5, 0.2, []Option{WithLowAction(ActionWithCitations)}, nil},
		{"escalate at low", 0.9, 0.6, []Option{WithLowAction(ActionEscalate)}, nil},
		{"direct at medium", 0.7, 0.4, []Option{WithMediumAction(ActionDirect)}, nil},
		{"equal thresholds", 0.5, 0.5, nil, ErrInvalidThresholds},
		{"inverted thresholds", 0.4, 0.7, nil, ErrInvalidThresholds},
		{"separation below epsilon", 0.50005, 0.5, nil, ErrInvalidThresholds},
		{"separation exactly epsilon", 0.5001, 0.5, nil, ErrInvalidThresholds},
		{"nan high", math.NaN(), 0.4, nil, ErrInvalidThresholds},
		{"nan low", 0.7, math.NaN(), nil, ErrInvalidThresholds},
		{"unknown medium action", 0.7, 0.4, []Option{WithMediumAction("retry")}, ErrInvalidAction},
		{"unknown low action", 0.7, 0.4, []Option{WithLowAction("")}, ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.high, tt.low, tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if g.HighThreshold() != tt.high || g.LowThreshold() != tt.low {
				t.Errorf("thresholds = (%v, %v), want (%v, %v)",
					g.HighThreshold(), g.LowThreshold(), tt.high, tt.low)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	g, err := New(0.7, 0.4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if g.MediumAction() != ActionWithVerification {
		t.Errorf("MediumAction() = %q, want %q", g.MediumAction(), ActionWithVerification)
	}
	if g.LowAction() != ActionAbstain {
		t.Errorf("LowAction() = %q, want %q", g.LowAction(), ActionAbstain)
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew with equal thresholds did not panic")
		}
	}()
	MustNew(0.5, 0.5)
}

func TestConfidenceLevelBoundaries(t *testing.T) {
	g := MustNew(0.7, 0.4)

	tests := []struct {
		score float64
		want  Level
	}{
		{1.0, LevelHigh},
		{0.7, LevelHigh},
		{0.699, LevelMedium},
		{0.4, LevelMedium},
		{0.399, LevelLow},
		{0.0, LevelLow},
	}

	for _, tt := range tests {
		if got := g.ConfidenceLevel(tt.score); got != tt.want {
			t.Errorf("ConfidenceLevel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestShouldRoute(t *testing.T) {
	g := MustNew(0.7, 0.4)

	if g.ShouldRoute(0.7) {
		t.Error("ShouldRoute(0.7) = true, want false at the high threshold")
	}
	if g.ShouldRoute(0.95) {
		t.Error("ShouldRoute(0.95) = true, want false")
	}
	if !g.ShouldRoute(0.699) {
		t.Error("ShouldRoute(0.699) = false, want true")
	}
	if !g.ShouldRoute(0.1) {
		t.Error("ShouldRoute(0.1) = false, want true")
	}
}

func TestRouteDirect(t *testing.T) {
	g := MustNew(0.7, 0.4, WithoutTelemetry())
	c := candidate.New("Paris is the capital of France.").WithScore(0.97).WithTokens(12)

	result := mustRoute(t, g, c, 0.85)

	if result.Action != ActionDirect {
		t.Fatalf("Action = %q, want %q", result.Action, ActionDirect)
	}
	if result.ConfidenceLevel != LevelHigh {
		t.Errorf("ConfidenceLevel = %q, want %q", result.ConfidenceLevel, LevelHigh)
	}
	if result.Candidate.Content != c.Content {
		t.Errorf("Content = %q, want original unchanged", result.Candidate.Content)
	}
	if result.Candidate.Score == nil || *result.Candidate.Score != 0.97 {
		t.Errorf("Score = %v, want 0.97 preserved", result.Candidate.Score)
	}
	if result.OriginalScore != 0.85 {
		t.Errorf("OriginalScore = %v, want 0.85", result.OriginalScore)
	}
	if !strings.Contains(result.Reasoning, "0.850") {
		t.Errorf("Reasoning = %q, want the score at three decimals", result.Reasoning)
	}
}

func TestRouteWithVerification(t *testing.T) {
	g := MustNew(0.7, 0.4, WithoutTelemetry())
	c := candidate.New("The boiling point is 100C.").WithScore(0.6).WithMetadata("source", "mock")

	result := mustRoute(t, g, c, 0.55)

	if result.Action != ActionWithVerification {
		t.Fatalf("Action = %q, want %q", result.Action, ActionWithVerification)
	}
	want := c.Content + VerificationNotice
	if result.Candidate.Content != want {
		t.Errorf("Content = %q, want original plus notice", result.Candidate.Content)
	}
	if len(result.Candidate.Content) <= len(c.Content) {
		t.Error("annotated content is not strictly longer than the original")
	}
	if result.Candidate.Score == nil || *result.Candidate.Score != 0.6 {
		t.Errorf("Score = %v, want preserved", result.Candidate.Score)
	}
	if result.Candidate.Metadata["source"] != "mock" {
		t.Error("metadata was not preserved")
	}
	if c.Content != "The boiling point is 100C." {
		t.Error("Route mutated the input candidate")
	}
}

func TestRouteWithCitations(t *testing.T) {
	g := MustNew(0.7, 0.4, WithMediumAction(ActionWithCitations), WithoutTelemetry())
	c := candidate.New("Einstein published in 1905.")

	result := mustRoute(t, g, c, 0.5)

	if result.Action != ActionWithCitations {
		t.Fatalf("Action = %q, want %q", result.Action, ActionWithCitations)
	}
	if !strings.HasSuffix(result.Candidate.Content, CitationNotice) {
		t.Errorf("Content = %q, want citation notice suffix", result.Candidate.Content)
	}
	if !strings.HasPrefix(result.Candidate.Content, c.Content) {
		t.Errorf("Content = %q, want original prefix", result.Candidate.Content)
	}
}

func TestRouteEmptyContentSkipsNotice(t *testing.T) {
	g := MustNew(0.7, 0.4, WithoutTelemetry())

	result := mustRoute(t, g, candidate.New(""), 0.5)

	if result.Action != ActionWithVerification {
		t.Fatalf("Action = %q, want %q", result.Action, ActionWithVerification)
	}
	if result.Candidate.Content != "" {
		t.Errorf("Content = %q, want empty content left alone", result.Candidate.Content)
	}
}

func TestRouteAbstain(t *testing.T) {
	g := MustNew(0.7, 0.4, WithoutTelemetry())
	c := candidate.New("A wild guess.").WithScore(0.2)

	result := mustRoute(t, g, c, 0.15)

	if result.Action != ActionAbstain {
		t.Fatalf("Action = %q, want %q", result.Action, ActionAbstain)
	}
	if result.ConfidenceLevel != LevelLow {
		t.Errorf("ConfidenceLevel = %q, want %q", result.ConfidenceLevel, LevelLow)
	}
	if result.Candidate.Content != AbstainMessage {
		t.Errorf("Content = %q, want the abstention message", result.Candidate.Content)
	}
	if result.Candidate.Score != nil {
		t.Errorf("Score = %v, want nil on the synthesized candidate", *result.Candidate.Score)
	}
	if result.Candidate.Metadata["abstained"] != true {
		t.Error("metadata missing abstained = true")
	}
	if result.Candidate.Metadata["original_confidence"] != 0.15 {
		t.Errorf("original_confidence = %v, want 0.15", result.Candidate.Metadata["original_confidence"])
	}
	if c.Content != "A wild guess." || c.Score == nil {
		t.Error("Route mutated the input candidate")
	}
}

func TestRouteEscalate(t *testing.T) {
	g := MustNew(0.7, 0.4, WithLowAction(ActionEscalate), WithoutTelemetry())
	c := candidate.New("The answer is 42")

	result := mustRoute(t, g, c, 0.35)

	if result.Action != ActionEscalate {
		t.Fatalf("Action = %q, want %q", result.Action, ActionEscalate)
	}
	if result.ConfidenceLevel != LevelLow {
		t.Errorf("ConfidenceLevel = %q, want %q", result.ConfidenceLevel, LevelLow)
	}
	if result.Candidate.Content != EscalateMessage {
		t.Errorf("Content = %q, want the escalation message", result.Candidate.Content)
	}
	if strings.Contains(result.Candidate.Content, "42") {
		t.Error("escalated content leaked the original answer")
	}
	if result.Candidate.Score != nil {
		t.Error("Score should be nil on the synthesized candidate")
	}
	if result.Candidate.Metadata["escalated"] != true {
		t.Error("metadata missing escalated = true")
	}
	if result.Candidate.Metadata["original_confidence"] != 0.35 {
		t.Errorf("original_confidence = %v, want 0.35", result.Candidate.Metadata["original_confidence"])
	}
	if result.OriginalScore != 0.35 {
		t.Errorf("OriginalScore = %v, want 0.35", result.OriginalScore)
	}
}

func TestRouteRejectsBadInputs(t *testing.T) {
	g := MustNew(0.7, 0.4, WithoutTelemetry())

	if _, err := g.Route(nil, confidence.MustNew(0.5, "logprobs")); err == nil {
		t.Error("Route(nil candidate) did not fail")
	}
	if _, err := g.Route(candidate.New("x"), nil); err == nil {
		t.Error("Route(nil estimate) did not fail")
	}

	bad := &confidence.Estimate{Score: 1.5, Method: "logprobs"}
	if _, err := g.Route(candidate.New("x"), bad); !errors.Is(err, confidence.ErrInvalidScore) {
		t.Errorf("Route(score 1.5) error = %v, want ErrInvalidScore", err)
	}
}

func TestRouteEmitsTelemetry(t *testing.T) {
	sink := telemetry.NewMemorySink()
	g := MustNew(0.7, 0.4, WithLowAction(ActionEscalate), WithTelemetry(sink))

	mustRoute(t, g, candidate.New("The answer is 42"), 0.35)

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Name != RouteEventName {
		t.Errorf("Name = %q, want %q", ev.Name, RouteEventName)
	}
	if ev.Tags["action"] != "escalate" {
		t.Errorf("action tag = %q, want escalate", ev.Tags["action"])
	}
	if ev.Tags["confidence_level"] != "low" {
		t.Errorf("confidence_level tag = %q, want low", ev.Tags["confidence_level"])
	}
	if ev.Tags["score"] != "0.35" {
		t.Errorf("score tag = %q, want 0.35", ev.Tags["score"])
	}
	if ev.ID == "" {
		t.Error("event id is empty")
	}
}

type panicSink struct{}

func (panicSink) Emit(telemetry.Event) error { panic("sink exploded") }

func TestRouteSurvivesSinkFailures(t *testing.T) {
	quiet := MustNew(0.7, 0.4, WithoutTelemetry())
	noisy := MustNew(0.7, 0.4, WithTelemetry(panicSink{}))
	c := candidate.New("stable output").WithScore(0.9)

	want := mustRoute(t, quiet, c, 0.8)
	got := mustRoute(t, noisy, c, 0.8)

	if got.Action != want.Action || got.Candidate.Content != want.Candidate.Content {
		t.Errorf("routing with a panicking sink diverged: got %q/%q, want %q/%q",
			got.Action, got.Candidate.Content, want.Action, want.Candidate.Content)
	}

	failing := telemetry.NewMemorySink()
	failing.SetError(errors.New("disk full"))
	g := MustNew(0.7, 0.4, WithTelemetry(failing))
	if result := mustRoute(t, g, c, 0.8); result.Action != ActionDirect {
		t.Errorf("Action = %q, want direct despite sink error", result.Action)
	}
}

func TestRouteCustomMediumDirect(t *testing.T) {
	g := MustNew(0.7, 0.4, WithMediumAction(ActionDirect), WithoutTelemetry())
	c := candidate.New("verbatim")

	result := mustRoute(t, g, c, 0.5)

	if result.Action != ActionDirect {
		t.Fatalf("Action = %q, want %q", result.Action, ActionDirect)
	}
	if result.ConfidenceLevel != LevelMedium {
		t.Errorf("ConfidenceLevel = %q, want medium", result.ConfidenceLevel)
	}
	if result.Candidate.Content != "verbatim" {
		t.Errorf("Content = %q, want unchanged", result.Candidate.Content)
	}
}

func TestFingerprint(t *testing.T) {
	a := MustNew(0.7, 0.4)
	b := MustNew(0.7, 0.4)
	c := MustNew(0.7, 0.4, WithLowAction(ActionEscalate))

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical configurations produced different fingerprints")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different low actions produced the same fingerprint")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("Fingerprint length = %d, want 16", len(a.Fingerprint()))
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions() {
		got, err := ParseAction(string(a))
		if err != nil || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAction("retry"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("ParseAction(retry) error = %v, want ErrInvalidAction", err)
	}
}
