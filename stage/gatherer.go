package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/textutil"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
)

// GathererOptions configure the gather stage.
type GathererOptions struct {
	// MaxResultsPerQuery caps results requested per search call.
	MaxResultsPerQuery int
	// SearchConcurrency caps in-flight search calls.
	SearchConcurrency int
	// SummaryConcurrency caps in-flight summarization calls. Independent
	// from SearchConcurrency so the two external APIs are throttled
	// separately.
	SummaryConcurrency int
	// SummaryMaxChars bounds the fallback summary taken from raw content
	// when summarization fails.
	SummaryMaxChars int
	Logger          logging.Logger
}

// Gatherer is the gather stage: it fans the plan's queries out to the search
// capability, deduplicates results by URL and summarizes each new result.
type Gatherer struct {
	searcher           search.Searcher
	completer          model.Completer
	maxResultsPerQuery int
	searchConcurrency  int
	summaryConcurrency int
	summaryMaxChars    int
	logger             logging.Logger
}

var _ Stage = (*Gatherer)(nil)

// NewGatherer creates a new gather stage.
func NewGatherer(searcher search.Searcher, completer model.Completer, optFns ...func(o *GathererOptions)) *Gatherer {
	opts := GathererOptions{
		MaxResultsPerQuery: 5,
		SearchConcurrency:  5,
		SummaryConcurrency: 5,
		SummaryMaxChars:    2000,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gatherer{
		searcher:           searcher,
		completer:          completer,
		maxResultsPerQuery: opts.MaxResultsPerQuery,
		searchConcurrency:  opts.SearchConcurrency,
		summaryConcurrency: opts.SummaryConcurrency,
		summaryMaxChars:    opts.SummaryMaxChars,
		logger:             opts.Logger,
	}
}

// Name implements Stage.
func (g *Gatherer) Name() string { return "gather" }

// Execute implements Stage. A failing query yields no results for that query
// but never fails the stage; one failing summarization falls back to a
// truncated prefix of the raw content so no candidate is dropped.
func (g *Gatherer) Execute(ctx context.Context, state *core.ResearchState) error {
	if state.Plan == nil {
		state.AppendMessage(core.RoleAssistant, "Error: no research plan is set, ending the workflow.")
		state.NextStage = core.StageEnd
		g.logger.Error("gather entered without a plan")
		return nil
	}

	queries := state.Plan.SearchQueries
	batches, err := g.runSearches(ctx, queries)
	if err != nil {
		// Missing credentials cannot heal through another pass.
		state.AppendMessage(core.RoleAssistant, "Error: search credentials are not configured, ending the workflow.")
		state.NextStage = core.StageEnd
		g.logger.Error("search backend unusable", "error", err)
		return nil
	}

	// Dedupe against both existing evidence and the new batch, first seen
	// wins. Batch order here is query order so dedupe is deterministic.
	seen := state.EvidenceURLs()
	var candidates []core.SearchResult
	for _, batch := range batches {
		for _, r := range batch {
			if r.URL == "" {
				continue
			}
			if _, ok := seen[r.URL]; ok {
				continue
			}
			seen[r.URL] = struct{}{}
			candidates = append(candidates, r)
		}
	}

	summarized := g.summarizeAll(ctx, candidates)

	added := state.AddEvidence(summarized...)
	state.IterationCount++
	total := len(state.Evidence)
	state.AppendMessage(core.RoleAssistant, fmt.Sprintf("Search complete: %d new results added (%d total).", added, total))

	g.logger.Info("gather complete", "queries", len(queries), "new_results", added, "total_results", total)
	return nil
}

// runSearches executes all queries with bounded parallelism and returns one
// result batch per query, empty on failure. Only a missing-credentials error
// surfaces; transient failures are isolated per query.
func (g *Gatherer) runSearches(ctx context.Context, queries []string) ([][]core.SearchResult, error) {
	batches := make([][]core.SearchResult, len(queries))

	var group errgroup.Group
	limit := g.searchConcurrency
	if len(queries) < limit {
		limit = len(queries)
	}
	if limit < 1 {
		limit = 1
	}
	group.SetLimit(limit)

	for i, query := range queries {
		group.Go(func() error {
			results, err := g.searcher.Search(ctx, query, g.maxResultsPerQuery)
			if err != nil {
				if errors.Is(err, core.ErrMissingAPIKey) {
					return err
				}
				g.logger.Warn("search query failed", "query", query, "error", err)
				return nil
			}
			batches[i] = results
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return batches, nil
}

// summarizeAll produces a summary per candidate with bounded parallelism.
// Results keep their slot order so output is stable for equal input.
func (g *Gatherer) summarizeAll(ctx context.Context, candidates []core.SearchResult) []core.SearchResult {
	if len(candidates) == 0 {
		return nil
	}

	out := make([]core.SearchResult, len(candidates))

	var group errgroup.Group
	group.SetLimit(g.summaryConcurrency)

	for i, candidate := range candidates {
		group.Go(func() error {
			// Each worker writes its own slot, no shared state.
			out[i] = candidate
			out[i].Summary = g.summarize(ctx, candidate)
			return nil
		})
	}
	_ = group.Wait()

	return out
}

func (g *Gatherer) summarize(ctx context.Context, candidate core.SearchResult) string {
	raw := strings.TrimSpace(candidate.Summary)
	if raw == "" {
		return ""
	}

	prompt := fmt.Sprintf("Title: %s\nURL: %s\n\nContent:\n%s", candidate.Title, candidate.URL, textutil.Truncate(raw, 8000))
	summary, err := g.completer.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			g.logger.Warn("summarization failed, keeping truncated content", "url", candidate.URL, "error", err)
		}
		return textutil.Truncate(raw, g.summaryMaxChars)
	}
	return strings.TrimSpace(summary)
}
