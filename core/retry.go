package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the explicit, first-class retry configuration passed into
// every external-call wrapper. Carrying it as a value keeps the policy
// testable and visible at call sites.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
}

// CompletionRetryPolicy is the default for text-completion calls: up to 5
// attempts, exponential doubling bounded to 8-60s.
func CompletionRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialInterval: 8 * time.Second, MaxInterval: 60 * time.Second, Multiplier: 2}
}

// SearchRetryPolicy is the default for search calls: up to 3 attempts with a
// tighter 2-8s window.
func SearchRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 2 * time.Second, MaxInterval: 8 * time.Second, Multiplier: 2}
}

// Do runs op with exponential backoff under the policy. Context cancellation
// aborts between attempts. Operations wrap non-retryable failures (missing
// credentials, validation) in Permanent to fail fast.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.Multiplier = p.Multiplier
	bo.MaxElapsedTime = 0

	attempts := uint64(0)
	if p.MaxAttempts > 1 {
		attempts = uint64(p.MaxAttempts - 1)
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, attempts), ctx))
}

// Permanent marks err as non-retryable for RetryPolicy.Do.
func Permanent(err error) error { return backoff.Permanent(err) }
