// Package model defines the text-completion capability consumed by the
// workflow stages, plus a deterministic in-memory implementation for tests.
// Provider adapters live in the openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Completer is the opaque text-completion capability: prompt in, text out.
// It may fail transiently or return malformed output when structured output
// was requested; callers own retry and parse-fallback behavior.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type mockRule struct {
	match    string
	response string
	err      error
}

// MockCompleter is a lightweight in-memory Completer useful for tests. Rules
// are matched by substring against the combined prompts in registration
// order; unmatched prompts echo a deterministic placeholder.
type MockCompleter struct {
	mu       sync.Mutex
	rules    []mockRule
	failures int
	failErr  error
	calls    int
	hook     func()
}

// NewMockCompleter constructs an empty MockCompleter.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Respond registers a canned response for prompts containing match.
func (m *MockCompleter) Respond(match, response string) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, response: response})
	return m
}

// RespondErr registers an error for prompts containing match.
func (m *MockCompleter) RespondErr(match string, err error) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, err: err})
	return m
}

// FailTimes makes the next n calls fail with err before rule matching
// resumes, for exercising retry and degradation paths.
func (m *MockCompleter) FailTimes(n int, err error) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
	return m
}

// OnComplete registers a hook invoked on every completion before rule
// matching. A blocking hook lets tests hold a workflow mid-flight.
func (m *MockCompleter) OnComplete(hook func()) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
	return m
}

// Calls returns how many completions have been requested.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete implements Completer.
func (m *MockCompleter) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		return "", m.failErr
	}

	combined := systemPrompt + "\n" + userPrompt
	for _, r := range m.rules {
		if strings.Contains(combined, r.match) {
			return r.response, r.err
		}
	}

	short := userPrompt
	if len(short) > 40 {
		short = short[:40]
	}
	return fmt.Sprintf("Mock completion for: %s", short), nil
}
