package ai

import (
	"fmt"
	"strings"

	"github.com/m-kurata/intake/pkg/catalog"
	"github.com/m-kurata/intake/pkg/model"
)

// Fallback is the deterministic, network-free generator used when no
// external provider is configured or the external path fails. It trades
// clinical nuance for offline availability and testability.
type Fallback struct {
	catalog *catalog.Catalog
}

// NewFallback creates a fallback generator over the given catalog.
func NewFallback(c *catalog.Catalog) *Fallback {
	if c == nil {
		c = catalog.Default()
	}
	return &Fallback{catalog: c}
}

// FollowUp renders the canned question template for the target domain,
// parameterized with the symptom phrase extracted from the transcript.
func (f *Fallback) FollowUp(req *model.GenerationRequest) string {
	target := req.TargetDomain
	domain, ok := f.catalog.Lookup(target)
	if !ok {
		domain = f.catalog.Domains()[0]
	}

	q := domain.Question
	if strings.Contains(q, "%s") {
		q = fmt.Sprintf(q, f.catalog.SymptomPhrase(patientLines(req.Turns)))
	}
	return q
}

// Summarize builds a structured plain-text note from the transcript
// using the same keyword matchers the planner uses for coverage.
// Sections with no extracted content are omitted; the result is never
// empty.
func (f *Fallback) Summarize(req *model.GenerationRequest) string {
	var b strings.Builder

	b.WriteString("Patient Intake Summary\n")
	if req.ConversationID != "" {
		fmt.Fprintf(&b, "Conversation ID: %s\n", req.ConversationID)
	}
	if req.PatientID != "" {
		fmt.Fprintf(&b, "Patient ID: %s\n", req.PatientID)
	}

	findings := f.catalog.Findings(patientLines(req.Turns))
	if len(findings) == 0 {
		b.WriteString("\nNo structured findings could be extracted from the conversation.\n")
		return b.String()
	}

	for _, finding := range findings {
		fmt.Fprintf(&b, "\n%s:\n", finding.Domain.Label)
		for _, line := range finding.Lines {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return b.String()
}

func patientLines(turns []model.Turn) []string {
	var out []string
	for _, t := range turns {
		if t.Role == model.RolePatient && t.Content != "" {
			out = append(out, t.Content)
		}
	}
	return out
}
