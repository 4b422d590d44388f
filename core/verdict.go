package core

// Verdict is the structured outcome of a draft review.
type Verdict struct {
	Approved        bool               `json:"approved"`
	OverallScore    float64            `json:"overall_score"`
	ComponentScores map[string]float64 `json:"component_scores,omitempty"`
	Feedback        string             `json:"feedback,omitempty"`
	SuggestedStage  Stage              `json:"suggested_next_stage"`
	Issues          []string           `json:"issues,omitempty"`
}

// Thresholds is the caller-supplied approval policy applied on top of the
// reviewer's own verdict. A draft passes only when the verdict is approved
// and both score floors hold.
type Thresholds struct {
	// Overall is the minimum overall score.
	Overall float64
	// Component names the designated component score, e.g. "fact_check".
	Component string
	// ComponentMin is the minimum for the designated component. Ignored
	// when Component is empty.
	ComponentMin float64
}

// DefaultThresholds matches the production quality bar: overall >= 0.8 and
// fact checking >= 0.9.
func DefaultThresholds() Thresholds {
	return Thresholds{Overall: 0.8, Component: "fact_check", ComponentMin: 0.9}
}

// Approves reports whether the verdict clears the thresholds.
func (t Thresholds) Approves(v Verdict) bool {
	if !v.Approved || v.OverallScore < t.Overall {
		return false
	}
	if t.Component != "" {
		if v.ComponentScores[t.Component] < t.ComponentMin {
			return false
		}
	}
	return true
}

// NeutralVerdict is the fallback when reviewer output cannot be parsed: not
// approved, mid scores, and a rewrite suggestion so the loop continues
// instead of silently terminating.
func NeutralVerdict() Verdict {
	return Verdict{
		Approved:     false,
		OverallScore: 0.5,
		ComponentScores: map[string]float64{
			"fact_check":   0.5,
			"completeness": 0.5,
			"logic":        0.5,
			"format":       0.5,
		},
		Feedback:       "The review could not be parsed; the draft needs another pass.",
		SuggestedStage: StageWrite,
	}
}
