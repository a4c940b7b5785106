package intake

import (
	"github.com/m-kurata/intake/pkg/catalog"
	"github.com/m-kurata/intake/pkg/model"
)

const defaultMaxTurns = 10

// Planner decides the next step of an intake conversation: which
// uncovered domain to ask about, or whether to conclude.
type Planner struct {
	catalog  *catalog.Catalog
	maxTurns int
}

type PlannerOption func(*Planner)

// WithMaxTurns caps the number of assistant turns before the planner
// concludes regardless of coverage. Zero or negative restores the default.
func WithMaxTurns(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.maxTurns = n
		}
	}
}

func NewPlanner(c *catalog.Catalog, opts ...PlannerOption) *Planner {
	if c == nil {
		c = catalog.Default()
	}
	p := &Planner{
		catalog:  c,
		maxTurns: defaultMaxTurns,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan recomputes coverage from the patient messages and returns the
// next decision. Coverage is derived from the full transcript on every
// call, so a single answer can cover several domains at once.
func (p *Planner) Plan(conv *model.Conversation) *model.IntakeDecision {
	lines := conv.PatientMessages()
	coverage := p.catalog.Coverage(lines)

	if conv.AssistantTurns() >= p.maxTurns {
		return &model.IntakeDecision{Kind: model.DecisionConclude}
	}

	next, ok := p.catalog.NextUncovered(coverage)
	if !ok {
		return &model.IntakeDecision{Kind: model.DecisionConclude}
	}

	return &model.IntakeDecision{
		Kind:   model.DecisionAskDomain,
		Domain: next.ID,
	}
}

// Covered returns the IDs of domains already covered by the transcript,
// in catalog priority order.
func (p *Planner) Covered(conv *model.Conversation) []model.DomainID {
	return p.catalog.CoveredIDs(p.catalog.Coverage(conv.PatientMessages()))
}
