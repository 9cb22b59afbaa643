// Package gate routes answer candidates by calibrated confidence. A score is
// classified against two thresholds into a high, medium, or low band, the
// band picks one of five actions, and the action may transform or replace the
// candidate before it reaches the caller.
package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/agentjido/confgate/pkg/candidate"
	"github.com/agentjido/confgate/pkg/confidence"
	"github.com/agentjido/confgate/pkg/telemetry"
)

// thresholdEpsilon is the minimum separation between the two thresholds.
// Pairs closer than this are indistinguishable once floating-point noise is
// accounted for.
const thresholdEpsilon = 1e-4

// RouteEventName is the telemetry event emitted once per Route call.
const RouteEventName = "accuracy.calibration.route"

var (
	ErrInvalidThresholds = errors.New("invalid thresholds")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidScore      = errors.New("invalid score")
	ErrInvalidMap        = errors.New("invalid routing result map")
)

// Gate holds immutable routing configuration. It carries no per-call state,
// so a single instance may serve concurrent Route calls.
type Gate struct {
	highThreshold float64
	lowThreshold  float64
	mediumAction  Action
	lowAction     Action
	emitTelemetry bool
	sink          telemetry.Sink
}

// Option adjusts gate construction.
type Option func(*Gate)

// WithMediumAction overrides the action applied in the medium band.
func WithMediumAction(action Action) Option {
	return func(g *Gate) { g.mediumAction = action }
}

// WithLowAction overrides the action applied in the low band.
func WithLowAction(action Action) Option {
	return func(g *Gate) { g.lowAction = action }
}

// WithTelemetry directs routing events to the given sink.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(g *Gate) {
		g.sink = sink
		g.emitTelemetry = true
	}
}

// WithoutTelemetry disables routing events entirely.
func WithoutTelemetry() Option {
	return func(g *Gate) { g.emitTelemetry = false }
}

// New builds a gate from a high and a low threshold. The high threshold must
// exceed the low one by more than thresholdEpsilon. Without options the
// medium band routes with verification and the low band abstains.
func New(highThreshold, lowThreshold float64, opts ...Option) (*Gate, error) {
	g := &Gate{
		highThreshold: highThreshold,
		lowThreshold:  lowThreshold,
		mediumAction:  ActionWithVerification,
		lowAction:     ActionAbstain,
		emitTelemetry: true,
	}
	for _, opt := range opts {
		opt(g)
	}

	// The negated form also rejects NaN thresholds.
	if !(highThreshold-lowThreshold > thresholdEpsilon) {
		return nil, fmt.Errorf("%w: high %v must exceed low %v by more than %v",
			ErrInvalidThresholds, highThreshold, lowThreshold, thresholdEpsilon)
	}
	if !g.mediumAction.Valid() {
		return nil, fmt.Errorf("%w: medium action %q", ErrInvalidAction, g.mediumAction)
	}
	if !g.lowAction.Valid() {
		return nil, fmt.Errorf("%w: low action %q", ErrInvalidAction, g.lowAction)
	}
	return g, nil
}

// MustNew is New for static configuration; it panics on error.
func MustNew(highThreshold, lowThreshold float64, opts ...Option) *Gate {
	g, err := New(highThreshold, lowThreshold, opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// HighThreshold returns the boundary of the high band.
func (g *Gate) HighThreshold() float64 { return g.highThreshold }

// LowThreshold returns the boundary of the medium band.
func (g *Gate) LowThreshold() float64 { return g.lowThreshold }

// MediumAction returns the action applied in the medium band.
func (g *Gate) MediumAction() Action { return g.mediumAction }

// LowAction returns the action applied in the low band.
func (g *Gate) LowAction() Action { return g.lowAction }

// Fingerprint returns a short stable hash of the gate configuration. Decision
// receipts embed it so a verifier can tell which policy produced a record.
func (g *Gate) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s",
		strconv.FormatFloat(g.highThreshold, 'f', -1, 64),
		strconv.FormatFloat(g.lowThreshold, 'f', -1, 64),
		g.mediumAction, g.lowAction)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ConfidenceLevel classifies a score against the thresholds. Boundary values
// belong to the higher band: a score equal to the high threshold is high, a
// score equal to the low threshold is medium.
func (g *Gate) ConfidenceLevel(score float64) Level {
	switch {
	case score >= g.highThreshold:
		return LevelHigh
	case score >= g.lowThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ShouldRoute reports whether routing the score would do anything beyond
// returning the candidate unchanged. Every score below the high threshold
// routes.
func (g *Gate) ShouldRoute(score float64) bool {
	return g.ConfidenceLevel(score) != LevelHigh
}

// Route classifies the estimate's score and applies the band's action to the
// candidate. The input candidate is never mutated: transformations operate on
// copies, and abstain or escalate discard it in favor of a synthesized
// replacement. A telemetry event is emitted per call unless disabled.
func (g *Gate) Route(c *candidate.Candidate, estimate *confidence.Estimate) (*RoutingResult, error) {
	start := time.Now()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := estimate.Validate(); err != nil {
		return nil, err
	}

	score := estimate.Score
	level := g.ConfidenceLevel(score)

	var action Action
	switch level {
	case LevelHigh:
		action = ActionDirect
	case LevelMedium:
		action = g.mediumAction
	default:
		action = g.lowAction
	}

	result := &RoutingResult{
		Action:          action,
		Candidate:       g.applyAction(action, c, score),
		OriginalScore:   score,
		ConfidenceLevel: level,
		Reasoning:       g.reasoning(level, action, score),
		Metadata:        map[string]any{},
	}

	if g.emitTelemetry {
		telemetry.Publish(g.sink, telemetry.NewEvent(RouteEventName, time.Since(start), map[string]string{
			"action":           string(action),
			"confidence_level": string(level),
			"score":            strconv.FormatFloat(score, 'f', -1, 64),
		}))
	}

	return result, nil
}

// applyAction produces the outgoing candidate for one routing decision.
func (g *Gate) applyAction(action Action, c *candidate.Candidate, score float64) *candidate.Candidate {
	switch action {
	case ActionWithVerification:
		if c.Content == "" {
			return c
		}
		return c.WithContent(c.Content + VerificationNotice)
	case ActionWithCitations:
		if c.Content == "" {
			return c
		}
		return c.WithContent(c.Content + CitationNotice)
	case ActionAbstain:
		return candidate.New(AbstainMessage).
			WithMetadata("abstained", true).
			WithMetadata("original_confidence", score)
	case ActionEscalate:
		return candidate.New(EscalateMessage).
			WithMetadata("escalated", true).
			WithMetadata("original_confidence", score)
	default:
		return c
	}
}

// reasoning renders a one-line explanation of the decision. Scores are shown
// at three decimals.
func (g *Gate) reasoning(level Level, action Action, score float64) string {
	switch level {
	case LevelHigh:
		return fmt.Sprintf("confidence %.3f at or above high threshold %.3f: returning answer directly", score, g.highThreshold)
	case LevelMedium:
		return fmt.Sprintf("confidence %.3f between thresholds %.3f and %.3f: applying %s", score, g.lowThreshold, g.highThreshold, action)
	default:
		return fmt.Sprintf("confidence %.3f below low threshold %.3f: applying %s", score, g.lowThreshold, action)
	}
}
