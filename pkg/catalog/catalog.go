// Package catalog defines the ordered list of intake topics and the
// keyword heuristics used to detect topic coverage in patient text.
package catalog

import (
	"strings"

	"github.com/m-kurata/intake/pkg/model"
)

const (
	ChiefComplaint     model.DomainID = "chief_complaint"
	Duration           model.DomainID = "duration"
	Severity           model.DomainID = "severity"
	AssociatedSymptoms model.DomainID = "associated_symptoms"
	MedicalHistory     model.DomainID = "medical_history"
	Medications        model.DomainID = "medications"
	Allergies          model.DomainID = "allergies"
)

// Domain is one intake topic. Keywords are matched case-insensitively
// as substrings of the patient's statements. Question is the canned
// fallback follow-up; a "%s" slot receives the symptom phrase extracted
// from the transcript.
type Domain struct {
	ID       model.DomainID
	Label    string
	Keywords []string
	Question string
}

// Catalog is the fixed, ordered list of domains. Order is priority
// order: the planner probes the first uncovered domain.
type Catalog struct {
	domains []Domain
}

// Default returns the standard intake catalog. The keyword vocabulary
// is intentionally approximate; coverage detection is a heuristic, not
// language understanding.
func Default() *Catalog {
	return &Catalog{domains: []Domain{
		{
			ID:    ChiefComplaint,
			Label: "Chief Complaint",
			Keywords: []string{
				"pain", "ache", "hurt", "fever", "cough", "nausea", "headache",
				"dizzy", "rash", "fatigue", "sore", "vomit", "swelling", "bleed",
				"breath", "problem", "symptom", "sick",
			},
			Question: "What would you say is the main problem that brought you in today?",
		},
		{
			ID:    Duration,
			Label: "Duration",
			Keywords: []string{
				"hour", "day", "week", "month", "year", "since", "started",
				"began", "ago",
			},
			Question: "How long have you been experiencing %s?",
		},
		{
			ID:    Severity,
			Label: "Severity",
			Keywords: []string{
				"mild", "moderate", "severe", "worse", "worsening", "improving",
				"out of 10", "/10", "scale", "unbearable", "intense",
			},
			Question: "On a scale from 1 to 10, how severe is %s right now?",
		},
		{
			ID:    AssociatedSymptoms,
			Label: "Associated Symptoms",
			Keywords: []string{
				"also", "along with", "as well", "additionally", "chills",
				"sweat", "appetite", "no other symptom",
			},
			Question: "Have you noticed any other symptoms along with %s?",
		},
		{
			ID:    MedicalHistory,
			Label: "Medical History",
			Keywords: []string{
				"history", "diagnosed", "condition", "surgery", "chronic",
				"diabetes", "hypertension", "asthma", "previous illness",
			},
			Question: "Do you have any past medical conditions, surgeries, or ongoing health issues?",
		},
		{
			ID:    Medications,
			Label: "Medications",
			Keywords: []string{
				"medication", "medicine", "drug", "pill", "tablet", "dose",
				"prescription", "ibuprofen", "acetaminophen", "paracetamol",
				"antibiotic", "not taking anything",
			},
			Question: "Are you currently taking any medications, including over-the-counter ones?",
		},
		{
			ID:    Allergies,
			Label: "Allergies",
			Keywords: []string{
				"allerg", // allergy, allergies, allergic
			},
			Question: "Do you have any known allergies to medications, foods, or anything else?",
		},
	}}
}

// Domains returns the catalog entries in priority order.
func (c *Catalog) Domains() []Domain {
	return c.domains
}

// Lookup returns the domain with the given ID.
func (c *Catalog) Lookup(id model.DomainID) (Domain, bool) {
	for _, d := range c.domains {
		if d.ID == id {
			return d, true
		}
	}
	return Domain{}, false
}

// Coverage is the set of domains addressed by a transcript.
type Coverage map[model.DomainID]bool

// Has reports whether the domain is covered.
func (cov Coverage) Has(id model.DomainID) bool {
	return cov[id]
}

// Coverage scans the full patient transcript and marks every domain
// with at least one keyword hit. The scan always runs over the whole
// history, so coverage is monotonic under message append.
func (c *Catalog) Coverage(patientLines []string) Coverage {
	cov := Coverage{}
	for _, line := range patientLines {
		low := strings.ToLower(line)
		for _, d := range c.domains {
			if cov[d.ID] {
				continue
			}
			if matchAny(low, d.Keywords) {
				cov[d.ID] = true
			}
		}
	}
	return cov
}

// CoveredIDs returns the covered domains in catalog priority order.
func (c *Catalog) CoveredIDs(cov Coverage) []model.DomainID {
	var out []model.DomainID
	for _, d := range c.domains {
		if cov[d.ID] {
			out = append(out, d.ID)
		}
	}
	return out
}

// NextUncovered returns the first domain in priority order that the
// transcript has not addressed.
func (c *Catalog) NextUncovered(cov Coverage) (Domain, bool) {
	for _, d := range c.domains {
		if !cov[d.ID] {
			return d, true
		}
	}
	return Domain{}, false
}

// Finding is the set of patient statements matched to one domain.
type Finding struct {
	Domain Domain
	Lines  []string
}

// Findings groups patient statements by the domains their keywords hit.
// A statement can contribute to several domains. Domains with no hits
// are omitted.
func (c *Catalog) Findings(patientLines []string) []Finding {
	byID := map[model.DomainID][]string{}
	for _, line := range patientLines {
		low := strings.ToLower(line)
		for _, d := range c.domains {
			if matchAny(low, d.Keywords) {
				byID[d.ID] = append(byID[d.ID], strings.TrimSpace(line))
			}
		}
	}

	var out []Finding
	for _, d := range c.domains {
		if lines := byID[d.ID]; len(lines) > 0 {
			out = append(out, Finding{Domain: d, Lines: lines})
		}
	}
	return out
}

// SymptomPhrase extracts the first chief-complaint keyword mentioned by
// the patient, for parameterizing fallback question templates. Returns
// "your symptoms" when nothing matched.
func (c *Catalog) SymptomPhrase(patientLines []string) string {
	chief, ok := c.Lookup(ChiefComplaint)
	if !ok {
		return "your symptoms"
	}
	for _, line := range patientLines {
		low := strings.ToLower(line)
		// Longest hit wins so "ache" cannot shadow "headache".
		best := ""
		for _, kw := range chief.Keywords {
			if kw == "problem" || kw == "symptom" || kw == "sick" {
				continue // too generic to echo back
			}
			if strings.Contains(low, kw) && len(kw) > len(best) {
				best = kw
			}
		}
		if best != "" {
			return "your " + best
		}
	}
	return "your symptoms"
}

func matchAny(low string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}
