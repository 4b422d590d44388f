package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/store"
)

func planJSON() string {
	return `{
		"theme": "edge computing",
		"investigation_points": ["architecture", "latency", "security"],
		"search_queries": ["edge computing architecture", "edge computing latency", "edge computing security"],
		"narrative": "A survey."
	}`
}

func happyPathDeps() (*model.MockCompleter, *search.MockSearcher) {
	completer := model.NewMockCompleter()
	completer.Respond("research planning assistant", planJSON())
	completer.Respond("summarize web search results", "A summary.")
	completer.Respond("research report writer", "# Edge Computing\n\nReport body.")
	completer.Respond("research report reviewer", `{
		"approved": true,
		"overall_score": 0.9,
		"component_scores": {"fact_check": 0.95},
		"suggested_next_stage": "end"
	}`)

	searcher := search.NewMockSearcher()
	for i, query := range []string{"architecture", "latency", "security"} {
		searcher.Respond(query,
			core.SearchResult{Title: query, URL: fmt.Sprintf("https://example.com/%d/a", i), Summary: "raw"},
			core.SearchResult{Title: query, URL: fmt.Sprintf("https://example.com/%d/b", i), Summary: "raw"},
		)
	}
	return completer, searcher
}

func newTestManager(t *testing.T, humanLoop bool) (*Manager, string) {
	t.Helper()
	completer, searcher := happyPathDeps()
	m := NewManager(completer, searcher, func(o *Options) {
		o.Store = store.NewInMemoryStore()
	})

	id, err := m.Create("edge computing", 5, humanLoop)
	require.NoError(t, err)
	return m, id
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		snapshot, err := m.GetStatus(id)
		return err == nil && snapshot.Status == want
	}, 5*time.Second, 5*time.Millisecond, "session never reached status %s", want)
}

func TestManagerRunsSessionToCompletion(t *testing.T) {
	m, id := newTestManager(t, false)
	waitForStatus(t, m, id, StatusCompleted)

	result, err := m.GetResult(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Contains(t, result.Draft, "# Edge Computing")
	assert.Equal(t, 6, result.EvidenceCount)
	assert.NotNil(t, result.CompletedAt)
}

func TestManagerStatusWhileRunning(t *testing.T) {
	m, id := newTestManager(t, false)

	snapshot, err := m.GetStatus(id)
	require.NoError(t, err)
	assert.Contains(t, []Status{StatusStarted, StatusRunning, StatusCompleted}, snapshot.Status)
	assert.Equal(t, "edge computing", snapshot.Theme)
}

func TestManagerResultWhileRunningIsRejected(t *testing.T) {
	completer := model.NewMockCompleter()
	block := make(chan struct{})
	completer.Respond("research planning assistant", planJSON())
	completer.OnComplete(func() { <-block })
	t.Cleanup(func() { close(block) })

	m := NewManager(completer, search.NewMockSearcher())
	id, err := m.Create("slow theme", 5, false)
	require.NoError(t, err)

	waitForStatus(t, m, id, StatusRunning)
	_, err = m.GetResult(id)
	assert.ErrorIs(t, err, core.ErrSessionRunning)
}

func TestManagerUnknownSessionNotFound(t *testing.T) {
	m, _ := newTestManager(t, false)

	_, err := m.GetStatus("no-such-id")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = m.GetResult("no-such-id")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	err = m.Delete("no-such-id")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestManagerInterruptAndResume(t *testing.T) {
	m, id := newTestManager(t, true)
	waitForStatus(t, m, id, StatusInterrupted)

	snapshot, err := m.GetStatus(id)
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot.Gate)

	require.NoError(t, m.Resume(context.Background(), id, "focus on latency", ActionResume))

	// Second gate before write, then completion.
	waitForStatus(t, m, id, StatusInterrupted)
	require.NoError(t, m.Resume(context.Background(), id, "", ActionResume))
	waitForStatus(t, m, id, StatusCompleted)

	result, err := m.GetResult(id)
	require.NoError(t, err)
	assert.True(t, result.State.HasDraft())
}

func TestManagerResumeRejectedWhenNotInterrupted(t *testing.T) {
	m, id := newTestManager(t, false)
	waitForStatus(t, m, id, StatusCompleted)

	before, err := m.GetResult(id)
	require.NoError(t, err)

	err = m.Resume(context.Background(), id, "input", ActionResume)
	assert.ErrorIs(t, err, core.ErrNotInterrupted)

	// No state mutation on rejected resume.
	after, err := m.GetResult(id)
	require.NoError(t, err)
	assert.Equal(t, before.IterationCount, after.IterationCount)
	assert.Equal(t, before.Draft, after.Draft)
}

func TestManagerConcurrentResumeAcceptsExactlyOne(t *testing.T) {
	completer, searcher := happyPathDeps()
	m := NewManager(completer, searcher, func(o *Options) {
		o.Store = store.NewInMemoryStore()
	})
	id, err := m.Create("edge computing", 5, true)
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusInterrupted)

	// Block the first completion after the gate so the winning resume
	// keeps the session in running while the other calls race it.
	block := make(chan struct{})
	completer.OnComplete(func() { <-block })

	const callers = 4
	var wg sync.WaitGroup
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- m.Resume(context.Background(), id, "focus on latency", ActionResume)
		}()
	}
	wg.Wait()
	close(errCh)
	close(block)

	accepted := 0
	for err := range errCh {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, core.ErrNotInterrupted)
		}
	}
	assert.Equal(t, 1, accepted)

	// The winner continues to the write gate and on to completion; the
	// losing calls never mark the session failed.
	waitForStatus(t, m, id, StatusInterrupted)
	require.NoError(t, m.Resume(context.Background(), id, "", ActionResume))
	waitForStatus(t, m, id, StatusCompleted)

	result, err := m.GetResult(id)
	require.NoError(t, err)
	assert.Empty(t, result.Error)
}

func TestManagerReplanKeepsSessionInterrupted(t *testing.T) {
	m, id := newTestManager(t, true)
	waitForStatus(t, m, id, StatusInterrupted)

	require.NoError(t, m.Resume(context.Background(), id, "narrow to security", ActionReplan))

	snapshot, err := m.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, snapshot.Status)

	// The replanned session can still be resumed to completion.
	require.NoError(t, m.Resume(context.Background(), id, "", ActionResume))
	waitForStatus(t, m, id, StatusInterrupted)
	require.NoError(t, m.Resume(context.Background(), id, "", ActionResume))
	waitForStatus(t, m, id, StatusCompleted)
}

func TestManagerDeleteRemovesEverywhere(t *testing.T) {
	backing := store.NewInMemoryStore()
	completer, searcher := happyPathDeps()
	m := NewManager(completer, searcher, func(o *Options) {
		o.Store = backing
	})

	id, err := m.Create("edge computing", 5, false)
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusCompleted)
	require.Eventually(t, func() bool {
		_, err := backing.Get(id)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Delete(id))

	_, err = m.GetStatus(id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	snapshots, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, snapshots)

	_, err = backing.Get(id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

// gatedStore holds back Put until its gate closes, so a test can order a
// Delete ahead of an in-flight persist.
type gatedStore struct {
	store.Store
	gate chan struct{}
	put  chan struct{}
}

func (s *gatedStore) Put(record *store.Record) error {
	<-s.gate
	err := s.Store.Put(record)
	close(s.put)
	return err
}

func TestManagerDeleteDuringPersistLeavesNoRecord(t *testing.T) {
	backing := store.NewInMemoryStore()
	gated := &gatedStore{Store: backing, gate: make(chan struct{}), put: make(chan struct{})}
	completer, searcher := happyPathDeps()
	m := NewManager(completer, searcher, func(o *Options) {
		o.Store = gated
	})

	id, err := m.Create("edge computing", 5, false)
	require.NoError(t, err)

	// Completed status is set before the record write, so the session can
	// be deleted while its persist is still in flight.
	waitForStatus(t, m, id, StatusCompleted)
	require.NoError(t, m.Delete(id))
	close(gated.gate)
	<-gated.put

	require.Eventually(t, func() bool {
		_, err := backing.Get(id)
		return errors.Is(err, core.ErrSessionNotFound)
	}, 5*time.Second, 5*time.Millisecond, "deleted session record resurfaced in the store")
}

func TestManagerPersistsCompletedSessions(t *testing.T) {
	backing := store.NewInMemoryStore()
	completer, searcher := happyPathDeps()
	m := NewManager(completer, searcher, func(o *Options) {
		o.Store = backing
	})

	id, err := m.Create("edge computing", 5, false)
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusCompleted)

	require.Eventually(t, func() bool {
		_, err := backing.Get(id)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)

	record, err := backing.Get(id)
	require.NoError(t, err)
	assert.Equal(t, string(StatusCompleted), record.Status)
	require.NotNil(t, record.State)
	assert.True(t, record.State.HasDraft())

	// A second manager over the same store sees the completed session.
	m2 := NewManager(model.NewMockCompleter(), search.NewMockSearcher(), func(o *Options) {
		o.Store = backing
	})
	snapshot, err := m2.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snapshot.Status)

	snapshots, err := m2.List()
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, id, snapshots[0].ID)
}

func TestManagerListMergesNewestFirst(t *testing.T) {
	backing := store.NewInMemoryStore()
	require.NoError(t, backing.Put(&store.Record{
		ID:        "old-persisted",
		Theme:     "old theme",
		Status:    string(StatusCompleted),
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	completer, searcher := happyPathDeps()
	m := NewManager(completer, searcher, func(o *Options) {
		o.Store = backing
	})

	id, err := m.Create("edge computing", 5, false)
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusCompleted)

	snapshots, err := m.List()
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, id, snapshots[0].ID)
	assert.Equal(t, "old-persisted", snapshots[1].ID)
}

func TestManagerCreateRejectsEmptyTheme(t *testing.T) {
	m := NewManager(model.NewMockCompleter(), search.NewMockSearcher())
	_, err := m.Create("", 5, false)
	assert.Error(t, err)
}
