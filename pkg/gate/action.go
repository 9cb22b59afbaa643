package gate

import "fmt"

// Action is what the gate does with a routed candidate.
type Action string

const (
	// ActionDirect returns the candidate unchanged.
	ActionDirect Action = "direct"

	// ActionWithVerification appends a verification notice to the content.
	ActionWithVerification Action = "with_verification"

	// ActionWithCitations appends a citation notice to the content.
	ActionWithCitations Action = "with_citations"

	// ActionAbstain replaces the candidate with an abstention message.
	ActionAbstain Action = "abstain"

	// ActionEscalate replaces the candidate with an escalation notice.
	ActionEscalate Action = "escalate"
)

// Actions returns the full action set in routing-strength order, strongest
// confidence first.
func Actions() []Action {
	return []Action{
		ActionDirect,
		ActionWithVerification,
		ActionWithCitations,
		ActionAbstain,
		ActionEscalate,
	}
}

// Valid reports whether the action is a member of the action set.
func (a Action) Valid() bool {
	switch a {
	case ActionDirect, ActionWithVerification, ActionWithCitations, ActionAbstain, ActionEscalate:
		return true
	default:
		return false
	}
}

// ParseAction converts a wire string into an Action. Unknown strings are
// rejected with ErrInvalidAction.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidAction, s)
	}
	return a, nil
}

// Level is a confidence band relative to the gate thresholds.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Valid reports whether the level is one of the three bands.
func (l Level) Valid() bool {
	switch l {
	case LevelHigh, LevelMedium, LevelLow:
		return true
	default:
		return false
	}
}

// Canned text used by the candidate transformations. Exposed so callers can
// recognize gate-authored content.
const (
	// VerificationNotice is appended to medium-confidence answers routed
	// with verification.
	VerificationNotice = "\n\nNote: this answer was generated with moderate confidence. Independent verification is recommended before relying on it."

	// CitationNotice is appended to answers routed with citations.
	CitationNotice = "\n\nNote: this answer was generated with moderate confidence. Supporting citations were not verified; consult primary sources."

	// AbstainMessage replaces the answer when the gate abstains.
	AbstainMessage = "I am not confident enough in the generated answer to return it. The question may be ambiguous, may fall outside reliable knowledge, or the candidate answers may disagree with each other. Try rephrasing the question or adding context."

	// EscalateMessage replaces the answer when the gate escalates.
	EscalateMessage = "This query has been forwarded for human review: the generated answer did not reach the confidence required to respond automatically."
)
