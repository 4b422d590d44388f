// Package store provides durable persistence for research sessions: a JSON
// file store, a SQLite store and a volatile in-memory store for tests. All
// implementations key records by session id and are safe for concurrent use.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// Record is the serialized form of a session, written when a session reaches
// a terminal state or suspends at a gate. Datetime fields round-trip through
// RFC 3339.
type Record struct {
	ID               string              `json:"id"`
	Theme            string              `json:"theme"`
	Status           string              `json:"status"`
	MaxIterations    int                 `json:"max_iterations"`
	HumanLoopEnabled bool                `json:"human_loop_enabled"`
	CreatedAt        time.Time           `json:"created_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	Error            string              `json:"error,omitempty"`
	State            *core.ResearchState `json:"state,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := *r
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		clone.CompletedAt = &completed
	}
	if r.State != nil {
		clone.State = r.State.Clone()
	}
	return &clone
}

// Store persists session records.
type Store interface {
	// Put writes or replaces the record for its id.
	Put(record *Record) error

	// Get returns the record for id or core.ErrSessionNotFound.
	Get(id string) (*Record, error)

	// List returns all records, newest first.
	List() ([]*Record, error)

	// Delete removes the record for id. Deleting an absent id is not an
	// error.
	Delete(id string) error
}

// InMemoryStore is a volatile Store backed by a process local map, suited
// for tests and ephemeral demo servers. Records are cloned on the way in and
// out to prevent external mutation.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

// Put implements Store.
func (s *InMemoryStore) Put(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return record.Clone(), nil
}

// List implements Store.
func (s *InMemoryStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	sortNewestFirst(records)
	return records, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func sortNewestFirst(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
