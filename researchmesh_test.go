package researchmesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/config"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/session"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Model.Provider = "mock"
	cfg.Search.Provider = "mock"
	return cfg
}

func TestNewWiresMockProviders(t *testing.T) {
	mesh, err := New(mockConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mesh.Close() })

	assert.NotNil(t, mesh.Manager())
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	cfg := mockConfig()
	cfg.Model.Provider = "cohere"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = mockConfig()
	cfg.Search.Provider = "bing"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = mockConfig()
	cfg.Store.Backend = "redis"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNewWithFileStore(t *testing.T) {
	cfg := mockConfig()
	cfg.Store.Backend = "file"
	cfg.Store.Path = t.TempDir()

	mesh, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mesh.Close() })

	assert.NotNil(t, mesh.Manager())
}

func TestSessionRunsThroughFacadeWiring(t *testing.T) {
	completer := model.NewMockCompleter()
	completer.Respond("research planning assistant", `{
		"theme": "tidal energy",
		"investigation_points": ["turbines", "grids", "costs"],
		"search_queries": ["tidal turbines", "tidal grids", "tidal costs"],
		"narrative": "An overview."
	}`)
	completer.Respond("summarize web search results", "A summary.")
	completer.Respond("research report writer", "# Tidal Energy\n\nReport.")
	completer.Respond("research report reviewer", `{
		"approved": true,
		"overall_score": 0.9,
		"component_scores": {"fact_check": 0.95},
		"suggested_next_stage": "end"
	}`)

	searcher := search.NewMockSearcher()
	searcher.Respond("turbines",
		core.SearchResult{Title: "a", URL: "https://example.com/a", Summary: "raw"},
		core.SearchResult{Title: "b", URL: "https://example.com/b", Summary: "raw"},
	)
	searcher.Respond("grids",
		core.SearchResult{Title: "c", URL: "https://example.com/c", Summary: "raw"},
		core.SearchResult{Title: "d", URL: "https://example.com/d", Summary: "raw"},
	)
	searcher.Respond("costs",
		core.SearchResult{Title: "e", URL: "https://example.com/e", Summary: "raw"},
		core.SearchResult{Title: "f", URL: "https://example.com/f", Summary: "raw"},
	)

	mesh, err := New(mockConfig(), func(o *Options) {
		o.Completer = completer
		o.Searcher = searcher
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mesh.Close() })

	id, err := mesh.Manager().Create("tidal energy", 5, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, err := mesh.Manager().GetStatus(id)
		return err == nil && snapshot.Status == session.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	result, err := mesh.Manager().GetResult(id)
	require.NoError(t, err)
	assert.Contains(t, result.Draft, "# Tidal Energy")
}
