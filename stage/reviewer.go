package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/textutil"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

// ReviewerOptions configure the review stage.
type ReviewerOptions struct {
	Thresholds core.Thresholds
	Logger     logging.Logger
}

// Reviewer is the review stage: it scores the draft against the evidence and
// the plan, approving it or returning structured feedback with a suggested
// next stage.
type Reviewer struct {
	completer  model.Completer
	thresholds core.Thresholds
	logger     logging.Logger
}

var _ Stage = (*Reviewer)(nil)

// NewReviewer creates a new review stage.
func NewReviewer(completer model.Completer, optFns ...func(o *ReviewerOptions)) *Reviewer {
	opts := ReviewerOptions{
		Thresholds: core.DefaultThresholds(),
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Reviewer{completer: completer, thresholds: opts.Thresholds, logger: opts.Logger}
}

// Name implements Stage.
func (r *Reviewer) Name() string { return "review" }

// Execute implements Stage. A verdict that cannot be obtained or parsed
// degrades to the neutral non-approved verdict so the loop continues rather
// than silently terminating on a parse error.
func (r *Reviewer) Execute(ctx context.Context, state *core.ResearchState) error {
	if !state.HasDraft() {
		state.AppendMessage(core.RoleAssistant, "Error: no draft available to review, returning to writing.")
		state.NextStage = core.StageWrite
		r.logger.Error("review entered without a draft")
		return nil
	}

	verdict := r.evaluate(ctx, state)
	state.IterationCount++

	if r.thresholds.Approves(verdict) {
		state.Feedback = ""
		state.NextStage = core.StageEnd
		state.AppendMessage(core.RoleAssistant, fmt.Sprintf("Review complete: draft approved (overall score %.2f).", verdict.OverallScore))
		r.logger.Info("draft approved", "overall_score", verdict.OverallScore)
		return nil
	}

	next := verdict.SuggestedStage
	switch next {
	case core.StageGather, core.StageWrite, core.StageEnd:
	default:
		next = core.StageWrite
	}
	state.Feedback = verdict.Feedback
	state.NextStage = next
	state.AppendMessage(core.RoleAssistant, fmt.Sprintf("Review result: needs improvement (overall score %.2f). Feedback: %s", verdict.OverallScore, verdict.Feedback))

	r.logger.Info("draft rejected", "overall_score", verdict.OverallScore, "suggested_stage", string(next))
	return nil
}

func (r *Reviewer) evaluate(ctx context.Context, state *core.ResearchState) core.Verdict {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Investigation plan:\n%s\n\n", planDigest(state.Plan))
	fmt.Fprintf(&sb, "Evidence:\n%s\n", reviewEvidenceDigest(state.Evidence))
	fmt.Fprintf(&sb, "Draft to review:\n%s\n", state.Draft)

	text, err := r.completer.Complete(ctx, reviewerSystemPrompt, sb.String())
	if err != nil {
		r.logger.Warn("review call failed, using neutral verdict", "error", err)
		return core.NeutralVerdict()
	}

	var verdict core.Verdict
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &verdict); err != nil {
		r.logger.Warn("verdict output not parseable, using neutral verdict", "error", err)
		return core.NeutralVerdict()
	}
	return verdict
}

func planDigest(plan *core.ResearchPlan) string {
	if plan == nil {
		return "No plan recorded."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Theme: %s\n", plan.Theme)
	sb.WriteString("Investigation points:\n")
	for _, point := range plan.InvestigationPoints {
		fmt.Fprintf(&sb, "  - %s\n", point)
	}
	fmt.Fprintf(&sb, "Search queries: %s", strings.Join(plan.SearchQueries, ", "))
	return sb.String()
}

func reviewEvidenceDigest(evidence []core.SearchResult) string {
	var sb strings.Builder
	for i, r := range evidence {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", r.URL)
		fmt.Fprintf(&sb, "   Summary: %s\n", textutil.Truncate(r.Summary, 200))
	}
	return sb.String()
}
