// Package search defines the web search abstraction used during evidence
// gathering, plus a mock implementation for tests.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/researchmesh/core"
)

// DefaultMaxResults is used when a caller passes a non-positive limit.
const DefaultMaxResults = 5

// Searcher executes a single web search query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]core.SearchResult, error)
}

// MockSearcher is a scripted Searcher for tests. Rules are matched against
// the query by substring, in registration order.
type MockSearcher struct {
	mu    sync.Mutex
	rules []mockSearchRule
	calls int
}

type mockSearchRule struct {
	match   string
	results []core.SearchResult
	err     error
}

// NewMockSearcher creates a new MockSearcher.
func NewMockSearcher() *MockSearcher {
	return &MockSearcher{}
}

// Respond registers results for queries containing match.
func (m *MockSearcher) Respond(match string, results ...core.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockSearchRule{match: match, results: results})
}

// RespondErr registers an error for queries containing match.
func (m *MockSearcher) RespondErr(match string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockSearchRule{match: match, err: err})
}

// Calls returns the number of Search invocations.
func (m *MockSearcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Search implements Searcher. Unmatched queries produce a single synthetic
// result derived from the query.
func (m *MockSearcher) Search(_ context.Context, query string, maxResults int) ([]core.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	for _, rule := range m.rules {
		if strings.Contains(query, rule.match) {
			if rule.err != nil {
				return nil, rule.err
			}
			if len(rule.results) > maxResults {
				return rule.results[:maxResults], nil
			}
			return rule.results, nil
		}
	}
	return []core.SearchResult{
		{
			Title:   fmt.Sprintf("Result for %s", query),
			Summary: fmt.Sprintf("Mock search result for query %q.", query),
			URL:     fmt.Sprintf("https://example.com/%s", strings.ReplaceAll(query, " ", "-")),
			Source:  "mock",
		},
	}, nil
}
