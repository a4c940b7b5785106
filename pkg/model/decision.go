package model

// DecisionKind is the planner's verdict for the next dialogue step.
type DecisionKind string

const (
	// DecisionAskDomain means the planner picked an uncovered domain to
	// probe with one more follow-up question.
	DecisionAskDomain DecisionKind = "ask_domain"

	// DecisionConclude means every domain is covered or the turn bound
	// is reached, and the dialogue ends with a summary.
	DecisionConclude DecisionKind = "conclude"
)

// IntakeDecision is computed on demand from conversation state and is
// never persisted. Exactly one of Question or Summary carries rendered
// text, depending on Kind.
type IntakeDecision struct {
	Kind     DecisionKind `json:"kind"`
	Domain   DomainID     `json:"domain,omitempty"`
	Question string       `json:"question,omitempty"`
	Summary  string       `json:"summary,omitempty"`

	// Generation records how the rendered text was produced, including
	// any degraded-mode diagnostics from the generation layer.
	Generation *GenerationResult `json:"generation,omitempty"`
}

// Text returns the rendered output regardless of kind.
func (d *IntakeDecision) Text() string {
	if d.Kind == DecisionConclude {
		return d.Summary
	}
	return d.Question
}
