package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/engine"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/store"
)

// ResumeAction selects how an interrupted session continues.
type ResumeAction string

const (
	// ActionResume injects human input and unblocks the gate.
	ActionResume ResumeAction = "resume"
	// ActionReplan regenerates the plan from human input and re-arms the
	// planning gate.
	ActionReplan ResumeAction = "replan"
)

// StatusSnapshot is the non-blocking status view of a session.
type StatusSnapshot struct {
	ID             string      `json:"id"`
	Theme          string      `json:"theme"`
	Status         Status      `json:"status"`
	CurrentStage   string      `json:"current_stage,omitempty"`
	Gate           engine.Gate `json:"gate,omitempty"`
	IterationCount int         `json:"iteration_count"`
	EvidenceCount  int         `json:"evidence_count"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Result is the final output view of a session.
type Result struct {
	ID             string              `json:"id"`
	Theme          string              `json:"theme"`
	Status         Status              `json:"status"`
	Draft          string              `json:"draft,omitempty"`
	IterationCount int                 `json:"iteration_count"`
	EvidenceCount  int                 `json:"evidence_count"`
	CreatedAt      time.Time           `json:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	Error          string              `json:"error,omitempty"`
	State          *core.ResearchState `json:"state,omitempty"`
}

// Options configure a Manager.
type Options struct {
	// Store receives terminal and interrupted session records.
	Store store.Store
	// DefaultMaxIterations applies when Create is called with a
	// non-positive value.
	DefaultMaxIterations int
	// Thresholds gate report approval during review.
	Thresholds core.Thresholds
	// MaxResultsPerQuery bounds each search query; zero keeps the stage
	// default.
	MaxResultsPerQuery int
	// MinEvidence is the routing evidence floor; zero keeps the stage
	// default.
	MinEvidence int
	// SummaryMaxChars bounds fallback summaries; zero keeps the stage
	// default.
	SummaryMaxChars int
	Logger          logging.Logger
}

// Manager owns the registry of running sessions. All public methods are safe
// for concurrent use.
type Manager struct {
	completer model.Completer
	searcher  search.Searcher
	store     store.Store
	logger    logging.Logger

	defaultMaxIterations int
	thresholds           core.Thresholds
	maxResultsPerQuery   int
	minEvidence          int
	summaryMaxChars      int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager over the given capabilities.
func NewManager(completer model.Completer, searcher search.Searcher, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Store:                store.NewInMemoryStore(),
		DefaultMaxIterations: 5,
		Thresholds:           core.DefaultThresholds(),
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		completer:            completer,
		searcher:             searcher,
		store:                opts.Store,
		logger:               opts.Logger,
		defaultMaxIterations: opts.DefaultMaxIterations,
		thresholds:           opts.Thresholds,
		maxResultsPerQuery:   opts.MaxResultsPerQuery,
		minEvidence:          opts.MinEvidence,
		summaryMaxChars:      opts.SummaryMaxChars,
		sessions:             make(map[string]*Session),
	}
}

// Create allocates a session, starts its workflow engine as an independent
// goroutine and returns the session id immediately.
func (m *Manager) Create(theme string, maxIterations int, humanLoopEnabled bool) (string, error) {
	if theme == "" {
		return "", fmt.Errorf("theme must not be empty")
	}
	if maxIterations <= 0 {
		maxIterations = m.defaultMaxIterations
	}

	id := core.NewID()
	state := core.NewResearchState(theme)
	stages := engine.NewStages(m.completer, m.searcher, func(o *engine.StagesOptions) {
		o.MaxIterations = maxIterations
		o.Thresholds = m.thresholds
		if m.maxResultsPerQuery > 0 {
			o.MaxResultsPerQuery = m.maxResultsPerQuery
		}
		if m.minEvidence > 0 {
			o.MinEvidence = m.minEvidence
		}
		o.SummaryMaxChars = m.summaryMaxChars
		o.Logger = m.logger
	})
	eng := engine.New(stages, state, func(o *engine.Options) {
		o.MaxIterations = maxIterations
		o.HumanLoopEnabled = humanLoopEnabled
		o.Logger = m.logger
	})

	// The session outlives the create request, so its context is detached
	// from the caller's.
	ctx, cancel := context.WithCancel(context.Background())

	sess := &Session{
		ID:               id,
		Theme:            theme,
		MaxIterations:    maxIterations,
		HumanLoopEnabled: humanLoopEnabled,
		CreatedAt:        time.Now().UTC(),
		engine:           eng,
		cancel:           cancel,
		status:           StatusStarted,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Inc()

	go m.run(ctx, sess, func(runCtx context.Context) (engine.Outcome, error) {
		return eng.Run(runCtx)
	})

	m.logger.Info("session created", "session_id", id, "theme", theme, "max_iterations", maxIterations, "human_loop", humanLoopEnabled)
	return id, nil
}

// run drives one engine call to its next stop and records the outcome.
func (m *Manager) run(ctx context.Context, sess *Session, step func(context.Context) (engine.Outcome, error)) {
	sess.setStatus(StatusRunning)

	outcome, err := step(ctx)
	if sess.isDeleted() {
		return
	}

	switch {
	case errors.Is(err, core.ErrNotInterrupted):
		// The engine refused the step without touching the state, so the
		// session itself did not fail.
		m.logger.Warn("engine rejected a resume step", "session_id", sess.ID)
		return
	case err != nil:
		sess.setFailed(err)
		metrics.SessionsFinished.WithLabelValues(string(StatusFailed)).Inc()
		m.logger.Error("session failed", "session_id", sess.ID, "error", err)
	case outcome.Interrupted:
		sess.setInterrupted(outcome.Gate)
		metrics.SessionsInterrupted.WithLabelValues(string(outcome.Gate)).Inc()
		m.logger.Info("session interrupted", "session_id", sess.ID, "gate", string(outcome.Gate))
	default:
		sess.setStatus(StatusCompleted)
		metrics.SessionsFinished.WithLabelValues(string(StatusCompleted)).Inc()
		m.logger.Info("session completed", "session_id", sess.ID)
	}

	if sess.isDeleted() {
		return
	}
	if err := m.persist(sess); err != nil {
		m.logger.Error("session persistence failed", "session_id", sess.ID, "error", err)
		return
	}
	// Delete may have raced the Put above; re-check so the record does not
	// outlive the deletion.
	if sess.isDeleted() {
		if err := m.store.Delete(sess.ID); err != nil {
			m.logger.Error("session cleanup failed", "session_id", sess.ID, "error", err)
		}
	}
}

// GetStatus returns a non-blocking status snapshot, falling back to the
// durable store for sessions no longer in memory.
func (m *Manager) GetStatus(id string) (*StatusSnapshot, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		record, err := m.store.Get(id)
		if err != nil {
			return nil, err
		}
		return recordStatus(record), nil
	}

	state := sess.engine.Snapshot()
	snapshot := &StatusSnapshot{
		ID:             sess.ID,
		Theme:          sess.Theme,
		Status:         sess.Status(),
		CurrentStage:   sess.engine.CurrentStage(),
		Gate:           sess.Gate(),
		IterationCount: state.IterationCount,
		EvidenceCount:  len(state.Evidence),
		CreatedAt:      sess.CreatedAt,
		CompletedAt:    sess.CompletedAt(),
	}
	if err := sess.Err(); err != nil {
		snapshot.Error = err.Error()
	}
	return snapshot, nil
}

// GetResult returns the final result of a session. While the session is
// still executing it returns core.ErrSessionRunning so callers can
// distinguish "still processing" from "not found".
func (m *Manager) GetResult(id string) (*Result, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		record, err := m.store.Get(id)
		if err != nil {
			return nil, err
		}
		return recordResult(record), nil
	}

	status := sess.Status()
	if !status.Terminal() && status != StatusInterrupted {
		return nil, core.ErrSessionRunning
	}

	state := sess.engine.Snapshot()
	result := &Result{
		ID:             sess.ID,
		Theme:          sess.Theme,
		Status:         status,
		Draft:          state.Draft,
		IterationCount: state.IterationCount,
		EvidenceCount:  len(state.Evidence),
		CreatedAt:      sess.CreatedAt,
		CompletedAt:    sess.CompletedAt(),
		State:          state,
	}
	if err := sess.Err(); err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

// Resume continues an interrupted session. ActionResume injects the human
// input and unblocks the gate; ActionReplan regenerates the plan and leaves
// the session interrupted at the planning gate. Sessions in any other status
// are rejected with core.ErrNotInterrupted and stay unmodified.
func (m *Manager) Resume(ctx context.Context, id string, humanInput string, action ResumeAction) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		// Persisted interrupted sessions have no live engine to resume.
		if _, err := m.store.Get(id); err != nil {
			return err
		}
		return core.ErrNotInterrupted
	}
	switch action {
	case ActionReplan:
		gate, claimed := sess.claimResume()
		if !claimed {
			return core.ErrNotInterrupted
		}
		if err := sess.engine.Replan(ctx, humanInput, sess.Theme); err != nil {
			sess.setInterrupted(gate)
			return err
		}
		sess.setInterrupted(engine.GatePlanning)
		if err := m.persist(sess); err != nil {
			m.logger.Error("session persistence failed", "session_id", sess.ID, "error", err)
		}
		m.logger.Info("session replanned", "session_id", id)
		return nil

	case ActionResume, "":
		// The claim flips the status to running in the same critical
		// section as the interrupted check, so concurrent Resume calls
		// cannot both pass and a caller polling right after Resume
		// cannot observe the stale interrupted status.
		if _, claimed := sess.claimResume(); !claimed {
			return core.ErrNotInterrupted
		}

		runCtx, cancel := context.WithCancel(context.Background())
		sess.setCancel(cancel)

		go m.run(runCtx, sess, func(stepCtx context.Context) (engine.Outcome, error) {
			return sess.engine.Resume(stepCtx, humanInput)
		})
		m.logger.Info("session resumed", "session_id", id)
		return nil

	default:
		return fmt.Errorf("unknown resume action %q", action)
	}
}

// Delete removes the session from the registry and the durable store and
// cancels any in-flight work. An id unknown to both returns
// core.ErrSessionNotFound.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		sess.markDeleted()
		sess.doCancel()
		metrics.SessionsActive.Dec()
	} else if _, err := m.store.Get(id); err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.ErrSessionNotFound
		}
		return err
	}

	if err := m.store.Delete(id); err != nil {
		return err
	}
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// List merges in-memory sessions with persisted records, newest first. The
// in-memory view wins for ids present in both.
func (m *Manager) List() ([]*StatusSnapshot, error) {
	m.mu.RLock()
	snapshots := make([]*StatusSnapshot, 0, len(m.sessions))
	seen := make(map[string]struct{}, len(m.sessions))
	for id := range m.sessions {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		snapshot, err := m.GetStatus(id)
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}

	records, err := m.store.List()
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if _, ok := seen[record.ID]; ok {
			continue
		}
		snapshots = append(snapshots, recordStatus(record))
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// persist serializes the session to the durable store. Called only for
// terminal or interrupted sessions; in-flight sessions are not recoverable
// across a restart.
func (m *Manager) persist(sess *Session) error {
	record := &store.Record{
		ID:               sess.ID,
		Theme:            sess.Theme,
		Status:           string(sess.Status()),
		MaxIterations:    sess.MaxIterations,
		HumanLoopEnabled: sess.HumanLoopEnabled,
		CreatedAt:        sess.CreatedAt,
		CompletedAt:      sess.CompletedAt(),
		State:            sess.engine.Snapshot(),
	}
	if err := sess.Err(); err != nil {
		record.Error = err.Error()
	}
	return m.store.Put(record)
}

func recordStatus(record *store.Record) *StatusSnapshot {
	snapshot := &StatusSnapshot{
		ID:          record.ID,
		Theme:       record.Theme,
		Status:      Status(record.Status),
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
		Error:       record.Error,
	}
	if record.State != nil {
		snapshot.IterationCount = record.State.IterationCount
		snapshot.EvidenceCount = len(record.State.Evidence)
	}
	return snapshot
}

func recordResult(record *store.Record) *Result {
	result := &Result{
		ID:          record.ID,
		Theme:       record.Theme,
		Status:      Status(record.Status),
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
		Error:       record.Error,
		State:       record.State,
	}
	if record.State != nil {
		result.Draft = record.State.Draft
		result.IterationCount = record.State.IterationCount
		result.EvidenceCount = len(record.State.Evidence)
	}
	return result
}
