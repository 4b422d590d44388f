package metrics

import (
	"context"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
)

// InstrumentedCompleter counts completion calls on the wrapped Completer.
type InstrumentedCompleter struct {
	next model.Completer
}

// InstrumentCompleter wraps next with call counting.
func InstrumentCompleter(next model.Completer) *InstrumentedCompleter {
	return &InstrumentedCompleter{next: next}
}

// Complete implements model.Completer.
func (c *InstrumentedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	text, err := c.next.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		CompletionCalls.WithLabelValues("error").Inc()
		return "", err
	}
	CompletionCalls.WithLabelValues("success").Inc()
	return text, nil
}

// InstrumentedSearcher counts search calls on the wrapped Searcher.
type InstrumentedSearcher struct {
	next search.Searcher
}

// InstrumentSearcher wraps next with call counting.
func InstrumentSearcher(next search.Searcher) *InstrumentedSearcher {
	return &InstrumentedSearcher{next: next}
}

// Search implements search.Searcher.
func (s *InstrumentedSearcher) Search(ctx context.Context, query string, maxResults int) ([]core.SearchResult, error) {
	results, err := s.next.Search(ctx, query, maxResults)
	if err != nil {
		SearchCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	SearchCalls.WithLabelValues("success").Inc()
	return results, nil
}
