package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/textutil"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

// MinEvidenceForDraft is the evidence floor below which routing always
// returns to gathering.
const MinEvidenceForDraft = 5

const maxHumanInputChars = 2000

// PlannerOptions configure the plan/route stage.
type PlannerOptions struct {
	MaxIterations int
	MinEvidence   int
	Logger        logging.Logger
}

// Planner is the plan/route stage. On first entry it derives the topic from
// the message log and produces an investigation plan. On later entries it
// evaluates progress and decides the next stage.
type Planner struct {
	completer     model.Completer
	maxIterations int
	minEvidence   int
	logger        logging.Logger
}

var _ Stage = (*Planner)(nil)

// NewPlanner creates a new plan/route stage.
func NewPlanner(completer model.Completer, optFns ...func(o *PlannerOptions)) *Planner {
	opts := PlannerOptions{
		MaxIterations: 5,
		MinEvidence:   MinEvidenceForDraft,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Planner{
		completer:     completer,
		maxIterations: opts.MaxIterations,
		minEvidence:   opts.MinEvidence,
		logger:        opts.Logger,
	}
}

// Name implements Stage.
func (p *Planner) Name() string { return "plan" }

// Execute implements Stage. Pending human input is consumed by whichever
// branch runs and cleared before returning.
func (p *Planner) Execute(ctx context.Context, state *core.ResearchState) error {
	theme := state.Topic()

	if state.Plan == nil {
		plan := p.generatePlan(ctx, theme, state.PendingHumanInput, state.Feedback)
		state.Plan = plan
		p.logger.Info("research plan created", "theme", plan.Theme, "points", len(plan.InvestigationPoints), "queries", len(plan.SearchQueries))
	}

	next, reason := p.route(ctx, state)
	state.AppendMessage(core.RoleAssistant, fmt.Sprintf("Next stage: %s. %s", next, reason))
	state.NextStage = next
	state.PendingHumanInput = ""

	p.logger.Info("routing decided", "next_stage", string(next), "iteration", state.IterationCount)
	return nil
}

// Replan regenerates the plan from human input, used by the resume path.
// Topic precedence: recovered from the message log, then the stored plan's
// theme, then the caller supplied fallback. Feedback is cleared so the next
// draft starts from the new plan rather than stale critique.
func (p *Planner) Replan(ctx context.Context, state *core.ResearchState, themeFallback string) error {
	theme := state.Topic()
	if theme == "" && state.Plan != nil {
		theme = state.Plan.Theme
	}
	if theme == "" {
		theme = themeFallback
	}
	if theme == "" {
		return fmt.Errorf("replan: no topic recoverable from state")
	}

	plan := p.generatePlan(ctx, theme, state.PendingHumanInput, "")
	state.Plan = plan
	state.Feedback = ""
	state.PendingHumanInput = ""
	state.AppendMessage(core.RoleAssistant, fmt.Sprintf("Plan revised for theme %q.", plan.Theme))

	p.logger.Info("research plan revised", "theme", plan.Theme)
	return nil
}

// generatePlan asks the model for a structured plan and falls back to the
// deterministic template on malformed output.
func (p *Planner) generatePlan(ctx context.Context, theme, humanInput, feedback string) *core.ResearchPlan {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Theme: %s", theme)
	if humanInput = strings.TrimSpace(humanInput); humanInput != "" {
		fmt.Fprintf(&sb, "\n\nAdditional instructions from the user:\n%s", textutil.Truncate(humanInput, maxHumanInputChars))
	}
	if feedback = strings.TrimSpace(feedback); feedback != "" {
		fmt.Fprintf(&sb, "\n\nFeedback from a previous review to take into account:\n%s", textutil.Truncate(feedback, maxHumanInputChars))
	}

	text, err := p.completer.Complete(ctx, planningSystemPrompt, sb.String())
	if err != nil {
		p.logger.Warn("plan generation failed, using fallback plan", "error", err)
		return core.FallbackPlan(theme)
	}

	var plan core.ResearchPlan
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &plan); err != nil {
		p.logger.Warn("plan output not parseable, using fallback plan", "error", err)
		return core.FallbackPlan(theme)
	}
	if plan.Theme == "" {
		plan.Theme = theme
	}
	plan.CreatedAt = time.Now().UTC()
	if err := plan.Validate(); err != nil {
		p.logger.Warn("plan output invalid, using fallback plan", "error", err)
		return core.FallbackPlan(theme)
	}
	return &plan
}

// route applies the decision ladder. The first three rungs are deterministic
// so the workflow terminates even when the delegated decision is unreliable.
func (p *Planner) route(ctx context.Context, state *core.ResearchState) (core.Stage, string) {
	if state.IterationCount >= p.maxIterations {
		return core.StageEnd, fmt.Sprintf("Iteration budget of %d reached.", p.maxIterations)
	}

	progress := state.Progress()
	if progress.EvidenceCount < p.minEvidence {
		return core.StageGather, fmt.Sprintf("Evidence is thin (%d of %d minimum).", progress.EvidenceCount, p.minEvidence)
	}
	if !state.HasDraft() {
		return core.StageWrite, fmt.Sprintf("Sufficient evidence collected (%d entries), drafting the report.", progress.EvidenceCount)
	}

	return p.delegateRoute(ctx, state, progress)
}

type routingDecision struct {
	NextStage core.Stage `json:"next_stage"`
	Reasoning string     `json:"reasoning"`
}

func (p *Planner) delegateRoute(ctx context.Context, state *core.ResearchState, progress core.Progress) (core.Stage, string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current progress:\n")
	fmt.Fprintf(&sb, "- evidence count: %d\n", progress.EvidenceCount)
	fmt.Fprintf(&sb, "- mean relevance: %.2f\n", progress.MeanRelevance)
	fmt.Fprintf(&sb, "- coverage: %.2f\n", progress.Coverage)
	fmt.Fprintf(&sb, "- iteration: %d of %d\n", state.IterationCount, p.maxIterations)
	fmt.Fprintf(&sb, "- draft present: %t\n", state.HasDraft())
	if input := strings.TrimSpace(state.PendingHumanInput); input != "" {
		fmt.Fprintf(&sb, "\nInstructions from the user:\n%s\n", textutil.Truncate(input, 500))
	}

	text, err := p.completer.Complete(ctx, routingSystemPrompt, sb.String())
	if err != nil {
		p.logger.Warn("delegated routing failed, defaulting to gather", "error", err)
		return core.StageGather, "Routing call failed, gathering more evidence."
	}

	var decision routingDecision
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &decision); err != nil {
		p.logger.Warn("routing output not parseable, defaulting to gather", "error", err)
		return core.StageGather, "Routing output was malformed, gathering more evidence."
	}

	switch decision.NextStage {
	case core.StageGather, core.StageWrite, core.StageEnd:
	default:
		return core.StageGather, "Routing suggested an unknown stage, gathering more evidence."
	}
	reason := decision.Reasoning
	if reason == "" {
		reason = "Delegated routing decision."
	}
	return decision.NextStage, reason
}
