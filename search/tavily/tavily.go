// Package tavily provides a search.Searcher backed by the Tavily Search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/search"
)

const defaultEndpoint = "https://api.tavily.com/search"

// Options configure the Tavily searcher.
type Options struct {
	APIKey      string
	Endpoint    string
	SearchDepth string
	HTTPClient  *http.Client
	RetryPolicy core.RetryPolicy
}

// Searcher calls the Tavily Search API over HTTP.
type Searcher struct {
	apiKey      string
	endpoint    string
	searchDepth string
	httpClient  *http.Client
	policy      core.RetryPolicy
}

var _ search.Searcher = (*Searcher)(nil)

// NewSearcher creates a new Tavily searcher. The API key is taken from
// Options or, if unset, from the TAVILY_API_KEY environment variable.
func NewSearcher(optFns ...func(o *Options)) (*Searcher, error) {
	opts := Options{
		Endpoint:    defaultEndpoint,
		SearchDepth: "basic",
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		RetryPolicy: core.SearchRetryPolicy(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("TAVILY_API_KEY")
	}
	if opts.APIKey == "" {
		return nil, core.ErrMissingAPIKey
	}
	return &Searcher{
		apiKey:      opts.APIKey,
		endpoint:    opts.Endpoint,
		searchDepth: opts.SearchDepth,
		httpClient:  opts.HTTPClient,
		policy:      opts.RetryPolicy,
	}, nil
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		Title         string   `json:"title"`
		URL           string   `json:"url"`
		Content       string   `json:"content"`
		Score         *float64 `json:"score,omitempty"`
		PublishedDate string   `json:"published_date,omitempty"`
	} `json:"results"`
}

// Search implements search.Searcher. Empty queries are rejected without
// calling the API. Transient HTTP failures are retried per the search
// retry policy.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) ([]core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}
	if maxResults > 20 {
		maxResults = 20
	}

	var results []core.SearchResult
	err := s.policy.Do(ctx, func() error {
		found, err := s.searchOnce(ctx, query, maxResults)
		if err != nil {
			return err
		}
		results = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Searcher) searchOnce(ctx context.Context, query string, maxResults int) ([]core.SearchResult, error) {
	body, err := json.Marshal(searchRequest{
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: s.searchDepth,
	})
	if err != nil {
		return nil, core.Permanent(fmt.Errorf("marshal search request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.Permanent(fmt.Errorf("build search request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily api error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("tavily api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, core.Permanent(err)
		}
		return nil, err
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]core.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, core.SearchResult{
			Title:          r.Title,
			Summary:        r.Content,
			URL:            r.URL,
			Source:         "tavily",
			PublishedDate:  r.PublishedDate,
			RelevanceScore: r.Score,
		})
	}
	return results, nil
}
