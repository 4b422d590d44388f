package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/textutil"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
)

// Character budgets for the prompt payload. The degraded attempt shrinks
// every digest so the retry payload is strictly smaller than the first.
const (
	maxEvidenceChars        = 15000
	maxPointsChars          = 2000
	maxFeedbackChars        = 1000
	degradedEvidenceChars   = 8000
	degradedPointsChars     = 1000
	degradedFeedbackChars   = 500
	fallbackEvidencePreview = 2000
)

// WriterOptions configure the write stage.
type WriterOptions struct {
	Logger logging.Logger
}

// Writer is the write stage: it synthesizes a Markdown report from the
// accumulated evidence plus any critique feedback.
type Writer struct {
	completer model.Completer
	logger    logging.Logger
}

var _ Stage = (*Writer)(nil)

// NewWriter creates a new write stage.
func NewWriter(completer model.Completer, optFns ...func(o *WriterOptions)) *Writer {
	opts := WriterOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Writer{completer: completer, logger: opts.Logger}
}

// Name implements Stage.
func (w *Writer) Name() string { return "write" }

// Execute implements Stage. On failure it degrades in order: a rate limit
// routes back to gather as a natural backoff pause, an oversized payload is
// retried once with halved evidence, and anything else produces a minimal
// fallback report routed to review so the workflow still yields an artifact.
func (w *Writer) Execute(ctx context.Context, state *core.ResearchState) error {
	if state.Plan == nil {
		state.AppendMessage(core.RoleAssistant, "Warning: no research plan is set, returning to gathering.")
		state.NextStage = core.StageGather
		w.logger.Warn("write entered without a plan")
		return nil
	}
	if len(state.Evidence) == 0 {
		state.AppendMessage(core.RoleAssistant, "Warning: no evidence collected yet, returning to gathering.")
		state.NextStage = core.StageGather
		w.logger.Warn("write entered without evidence")
		return nil
	}

	evidenceText := evidenceDigest(state.Evidence, maxEvidenceChars)
	pointsText := textutil.Truncate(investigationPointsText(state.Plan), maxPointsChars)
	feedbackText := w.feedbackDigest(state, maxFeedbackChars)

	draft, err := w.generate(ctx, state.Plan.Theme, pointsText, evidenceText, feedbackText)
	if err == nil {
		w.acceptDraft(state, draft, "Draft generated (%d characters).")
		return nil
	}
	w.logger.Warn("draft generation failed", "error", err)

	if core.IsRateLimited(err) {
		state.AppendMessage(core.RoleAssistant, "Rate limit reached while drafting, returning to gathering before retrying.")
		state.NextStage = core.StageGather
		return nil
	}

	// An oversized payload gets one retry with the evidence halved and
	// every digest shrunk, so the retry payload is strictly smaller.
	if core.IsPayloadTooLarge(err) {
		reduced := state.Evidence
		if len(reduced) > 1 {
			reduced = reduced[:len(reduced)/2]
		}
		draft, retryErr := w.generate(ctx, state.Plan.Theme,
			textutil.Truncate(pointsText, degradedPointsChars),
			evidenceDigest(reduced, degradedEvidenceChars),
			textutil.Truncate(feedbackText, degradedFeedbackChars))
		if retryErr == nil {
			w.acceptDraft(state, draft, "Draft generated from reduced evidence (%d characters).")
			return nil
		}
		w.logger.Warn("degraded draft generation failed, using fallback report", "error", retryErr)
	}

	state.Draft = fallbackReport(state.Plan.Theme, evidenceDigest(state.Evidence, degradedEvidenceChars), err)
	state.AppendMessage(core.RoleAssistant, "Draft generation failed repeatedly; a summary fallback report was produced.")
	state.NextStage = core.StageReview
	return nil
}

func (w *Writer) generate(ctx context.Context, theme, points, evidence, feedback string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Theme: %s\n\n", theme)
	fmt.Fprintf(&sb, "Investigation points:\n%s\n\n", points)
	fmt.Fprintf(&sb, "Evidence:\n%s", evidence)
	if feedback != "" {
		fmt.Fprintf(&sb, "\n%s", feedback)
	}

	text, err := w.completer.Complete(ctx, writerSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}
	draft := extractMarkdown(text)
	if draft == "" {
		return "", fmt.Errorf("empty draft returned")
	}
	return draft, nil
}

func (w *Writer) acceptDraft(state *core.ResearchState, draft, msgFormat string) {
	state.Draft = draft
	state.IterationCount++
	state.PendingHumanInput = ""
	state.AppendMessage(core.RoleAssistant, fmt.Sprintf(msgFormat, len(draft)))
	state.NextStage = core.StageReview
	w.logger.Info("draft generated", "length", len(draft))
}

// feedbackDigest combines critique feedback and pending human input into one
// bounded block.
func (w *Writer) feedbackDigest(state *core.ResearchState, maxChars int) string {
	var sb strings.Builder
	if fb := strings.TrimSpace(state.Feedback); fb != "" {
		fmt.Fprintf(&sb, "\nFeedback from the previous review:\n%s\nAddress this feedback in the new draft.\n", textutil.Truncate(fb, maxChars))
	}
	if input := strings.TrimSpace(state.PendingHumanInput); input != "" {
		fmt.Fprintf(&sb, "\nAdditional instructions from the user:\n%s\nThese instructions must be reflected in the draft.\n", textutil.Truncate(input, maxChars))
	}
	return sb.String()
}

func investigationPointsText(plan *core.ResearchPlan) string {
	var sb strings.Builder
	for _, point := range plan.InvestigationPoints {
		fmt.Fprintf(&sb, "- %s\n", point)
	}
	return sb.String()
}

// evidenceDigest renders evidence as numbered source blocks under a hard
// character cap. When the cap cuts the list short, a note records how many
// sources were omitted.
func evidenceDigest(evidence []core.SearchResult, maxChars int) string {
	var sb strings.Builder
	for i, r := range evidence {
		var item strings.Builder
		fmt.Fprintf(&item, "[Source %d]\n", i+1)
		fmt.Fprintf(&item, "Title: %s\n", r.Title)
		fmt.Fprintf(&item, "URL: %s\n", r.URL)
		fmt.Fprintf(&item, "Summary: %s\n", textutil.Truncate(r.Summary, 500))
		if r.RelevanceScore != nil {
			fmt.Fprintf(&item, "Relevance: %.2f\n", *r.RelevanceScore)
		}
		item.WriteString("\n")

		if sb.Len()+item.Len() > maxChars {
			fmt.Fprintf(&sb, "[Note: %d more sources omitted for length]\n", len(evidence)-i)
			break
		}
		sb.WriteString(item.String())
	}
	return sb.String()
}

// fallbackReport is the last rung of the degradation ladder: a minimal
// report that documents the degradation so downstream consumers are not
// misled into treating it as a full quality result.
func fallbackReport(theme, evidenceText string, cause error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", theme)
	sb.WriteString("## Note\n\nAutomatic report generation failed; this is a reduced summary of the collected evidence.\n\n")
	fmt.Fprintf(&sb, "## Collected evidence (summary)\n\n%s\n", textutil.Truncate(evidenceText, fallbackEvidencePreview))
	fmt.Fprintf(&sb, "\n## Error details\n\n%s\n", textutil.Truncate(cause.Error(), 500))
	return sb.String()
}
