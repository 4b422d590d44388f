package core

import (
	"fmt"
	"time"
)

// Limits on plan cardinality, mirrored in Validate.
const (
	MaxInvestigationPoints = 10
	MaxSearchQueries       = 20
)

// ResearchPlan is the structured investigation plan produced on first entry
// to the plan/route stage. Immutable once set except through an explicit
// replan.
type ResearchPlan struct {
	Theme               string    `json:"theme"`
	InvestigationPoints []string  `json:"investigation_points"`
	SearchQueries       []string  `json:"search_queries"`
	Narrative           string    `json:"narrative"`
	CreatedAt           time.Time `json:"created_at"`
}

// Validate checks the plan cardinality bounds.
func (p *ResearchPlan) Validate() error {
	if p.Theme == "" {
		return fmt.Errorf("plan theme is empty")
	}
	if n := len(p.InvestigationPoints); n < 1 || n > MaxInvestigationPoints {
		return fmt.Errorf("plan has %d investigation points, want 1..%d", n, MaxInvestigationPoints)
	}
	if n := len(p.SearchQueries); n < 1 || n > MaxSearchQueries {
		return fmt.Errorf("plan has %d search queries, want 1..%d", n, MaxSearchQueries)
	}
	return nil
}

// Clone returns a deep copy of the plan.
func (p *ResearchPlan) Clone() *ResearchPlan {
	clone := *p
	clone.InvestigationPoints = make([]string, len(p.InvestigationPoints))
	copy(clone.InvestigationPoints, p.InvestigationPoints)
	clone.SearchQueries = make([]string, len(p.SearchQueries))
	copy(clone.SearchQueries, p.SearchQueries)
	return &clone
}

// FallbackPlan builds a deterministic template plan from the topic string.
// It is the degradation target when the completion capability returns
// malformed plan output, so the workflow never stalls on a parse failure.
func FallbackPlan(theme string) *ResearchPlan {
	return &ResearchPlan{
		Theme: theme,
		InvestigationPoints: []string{
			fmt.Sprintf("Background and fundamentals of %s", theme),
			fmt.Sprintf("Use cases and applications of %s", theme),
			fmt.Sprintf("Key characteristics of %s", theme),
		},
		SearchQueries: []string{
			theme,
			fmt.Sprintf("%s use cases", theme),
			fmt.Sprintf("%s features", theme),
		},
		Narrative: fmt.Sprintf("Comprehensive investigation of %s.", theme),
		CreatedAt: time.Now().UTC(),
	}
}
