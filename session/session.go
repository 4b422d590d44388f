package session

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/engine"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusStarted means the session is created but its engine has not
	// run yet.
	StatusStarted Status = "started"
	// StatusRunning means the engine is executing stages.
	StatusRunning Status = "running"
	// StatusInterrupted means the engine is suspended at a gate awaiting
	// human input.
	StatusInterrupted Status = "interrupted"
	// StatusCompleted means the workflow reached its terminal state.
	StatusCompleted Status = "completed"
	// StatusFailed means an unexpected error ended the workflow.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further execution can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is the runtime handle for one research workflow. All mutable
// fields are guarded; reads go through snapshot methods.
type Session struct {
	ID               string
	Theme            string
	MaxIterations    int
	HumanLoopEnabled bool
	CreatedAt        time.Time

	engine *engine.Engine
	cancel context.CancelFunc

	mu          sync.RWMutex
	status      Status
	gate        engine.Gate
	completedAt *time.Time
	runErr      error
	deleted     bool
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Gate returns the gate the session is suspended at, empty unless
// interrupted.
func (s *Session) Gate() engine.Gate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gate
}

// CompletedAt returns the completion time, nil while not terminal.
func (s *Session) CompletedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedAt
}

// Err returns the unexpected error that failed the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runErr
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if status != StatusInterrupted {
		s.gate = ""
	}
	if status.Terminal() && s.completedAt == nil {
		now := time.Now().UTC()
		s.completedAt = &now
	}
}

func (s *Session) setInterrupted(gate engine.Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusInterrupted
	s.gate = gate
}

func (s *Session) setFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.runErr = err
	if s.completedAt == nil {
		now := time.Now().UTC()
		s.completedAt = &now
	}
}

// claimResume atomically moves an interrupted session to running so that
// exactly one concurrent Resume call proceeds. It returns the gate the
// session was suspended at and whether the claim succeeded.
func (s *Session) claimResume() (engine.Gate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInterrupted {
		return "", false
	}
	gate := s.gate
	s.status = StatusRunning
	s.gate = ""
	return gate, true
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

func (s *Session) doCancel() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) markDeleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = true
}

func (s *Session) isDeleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted
}
