// Package researchmesh provides a high-level façade over the research
// workflow engine and session manager. Most applications interact with this
// package by:
//  1. Loading a config.Config (file plus environment overrides)
//  2. Creating a ResearchMesh via New(), which wires the model provider,
//     search backend and session store described by the config
//  3. Driving sessions through Manager() or serving them over httpapi
//
// All defaults are safe for local development: an in-memory store, mock
// providers when configured, and a no-op logger unless one is supplied.
package researchmesh

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"

	"github.com/hupe1980/researchmesh/config"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/model/anthropic"
	"github.com/hupe1980/researchmesh/model/openai"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/search/tavily"
	"github.com/hupe1980/researchmesh/session"
	"github.com/hupe1980/researchmesh/store"
)

// Options configure the ResearchMesh instance beyond what the config file
// carries.
type Options struct {
	// Logger defaults to a no-op logger if nil.
	Logger logging.Logger
	// Completer overrides the provider selected by the config. Used by
	// tests and embedders that bring their own model client.
	Completer model.Completer
	// Searcher overrides the search backend selected by the config.
	Searcher search.Searcher
	// Store overrides the persistence backend selected by the config.
	Store store.Store
}

// ResearchMesh aggregates the wired session manager and the resources that
// need explicit teardown.
type ResearchMesh struct {
	manager *session.Manager
	logger  logging.Logger
	closers []func() error
}

// New wires a ResearchMesh from the given config.
func New(cfg *config.Config, optFns ...func(o *Options)) (*ResearchMesh, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	mesh := &ResearchMesh{logger: opts.Logger}

	completer := opts.Completer
	if completer == nil {
		var err error
		if completer, err = buildCompleter(cfg); err != nil {
			return nil, err
		}
	}
	completer = model.NewRetryingCompleter(completer)
	completer = metrics.InstrumentCompleter(completer)

	searcher := opts.Searcher
	if searcher == nil {
		var err error
		if searcher, err = buildSearcher(cfg); err != nil {
			return nil, err
		}
	}
	searcher = metrics.InstrumentSearcher(searcher)

	backing := opts.Store
	if backing == nil {
		var err error
		if backing, err = mesh.buildStore(cfg); err != nil {
			return nil, err
		}
	}

	mesh.manager = session.NewManager(completer, searcher, func(o *session.Options) {
		o.Store = backing
		o.DefaultMaxIterations = cfg.Workflow.MaxIterations
		o.MinEvidence = cfg.Workflow.MinEvidence
		o.MaxResultsPerQuery = cfg.Search.MaxResultsPerQuery
		o.SummaryMaxChars = cfg.Search.SummaryMaxChars
		o.Thresholds = core.Thresholds{
			Overall:      cfg.Review.OverallThreshold,
			Component:    "fact_check",
			ComponentMin: cfg.Review.FactCheckThreshold,
		}
		o.Logger = opts.Logger
	})
	return mesh, nil
}

// Manager returns the wired session manager.
func (m *ResearchMesh) Manager() *session.Manager {
	return m.manager
}

// Close releases resources held by the wired backends.
func (m *ResearchMesh) Close() error {
	var firstErr error
	for _, close := range m.closers {
		if err := close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildCompleter(cfg *config.Config) (model.Completer, error) {
	switch cfg.Model.Provider {
	case "openai":
		return openai.NewCompleter(func(o *openai.Options) {
			o.APIKey = cfg.Model.APIKey
			if cfg.Model.Name != "" {
				o.Model = openaisdk.ChatModel(cfg.Model.Name)
			}
			o.Temperature = cfg.Model.Temperature
		}), nil
	case "anthropic":
		return anthropic.NewCompleter(func(o *anthropic.Options) {
			o.APIKey = cfg.Model.APIKey
			if cfg.Model.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Model.Name)
			}
			o.Temperature = cfg.Model.Temperature
		})
	case "mock":
		return model.NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

func buildSearcher(cfg *config.Config) (search.Searcher, error) {
	var backend search.Searcher
	switch cfg.Search.Provider {
	case "tavily":
		searcher, err := tavily.NewSearcher(func(o *tavily.Options) {
			o.APIKey = cfg.Search.APIKey
		})
		if err != nil {
			return nil, err
		}
		backend = searcher
	case "mock":
		backend = search.NewMockSearcher()
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Search.Provider)
	}

	return search.NewCachingSearcher(backend, func(o *search.CachingOptions) {
		o.TTL = cfg.Search.CacheTTL()
		o.MaxEntries = cfg.Search.CacheMaxEntries
	}), nil
}

func (m *ResearchMesh) buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewInMemoryStore(), nil
	case "file":
		return store.NewFileStore(cfg.Store.Path)
	case "sqlite":
		sqlite, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, sqlite.Close)
		return sqlite, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
