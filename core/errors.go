package core

import (
	"errors"
	"strings"
)

// Error kinds surfaced by the session manager and mapped to distinct caller
// responses. Checked with errors.Is.
var (
	// ErrSessionNotFound reports an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRunning reports that a result was requested while the
	// session is still processing.
	ErrSessionRunning = errors.New("session still processing")

	// ErrNotInterrupted reports a resume attempt against a session that is
	// not paused at a gate.
	ErrNotInterrupted = errors.New("session not in an interruptible state")

	// ErrMissingAPIKey is a configuration error: non-retryable, surfaced
	// immediately rather than exhausting retries.
	ErrMissingAPIKey = errors.New("missing api key")
)

// IsRateLimited classifies an external-call error as rate-limit shaped.
// Providers disagree on error types, so this matches the message forms seen
// in practice.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "ratelimit") ||
		strings.Contains(msg, "429")
}

// IsPayloadTooLarge classifies an external-call error as a request-size or
// token-budget rejection, the trigger for the draft stage's payload-shrinking
// degradation ladder.
func IsPayloadTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too large") ||
		strings.Contains(msg, "tokens per min") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "maximum context")
}
