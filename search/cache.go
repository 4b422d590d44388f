package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// CachingOptions configure a CachingSearcher.
type CachingOptions struct {
	TTL        time.Duration
	MaxEntries int
}

// CachingSearcher memoizes search results per query with a TTL, so repeated
// gather iterations do not re-issue identical queries.
type CachingSearcher struct {
	next    Searcher
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	results  []core.SearchResult
	storedAt time.Time
}

// NewCachingSearcher wraps next with an in-memory result cache.
func NewCachingSearcher(next Searcher, optFns ...func(o *CachingOptions)) *CachingSearcher {
	opts := CachingOptions{
		TTL:        time.Hour,
		MaxEntries: 256,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &CachingSearcher{
		next:    next,
		ttl:     opts.TTL,
		maxSize: opts.MaxEntries,
		entries: make(map[string]cacheEntry),
	}
}

// Search implements Searcher. Errors are never cached.
func (c *CachingSearcher) Search(ctx context.Context, query string, maxResults int) ([]core.SearchResult, error) {
	key := cacheKey(query, maxResults)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if time.Since(entry.storedAt) <= c.ttl {
			results := make([]core.SearchResult, len(entry.results))
			copy(results, entry.results)
			c.mu.Unlock()
			return results, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	results, err := c.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{results: results, storedAt: time.Now()}
	c.mu.Unlock()

	return results, nil
}

func (c *CachingSearcher) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cacheKey(query string, maxResults int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", query, maxResults)))
	return hex.EncodeToString(sum[:])
}
