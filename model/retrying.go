package model

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// RetryingOptions configure a RetryingCompleter. A zero Timeout disables the
// per-attempt deadline.
type RetryingOptions struct {
	Policy  core.RetryPolicy
	Timeout time.Duration
}

// RetryingCompleter wraps a Completer with a per-call timeout and the
// explicit retry policy from core. Configuration errors are never retried.
type RetryingCompleter struct {
	next    Completer
	policy  core.RetryPolicy
	timeout time.Duration
}

// NewRetryingCompleter wraps next with the completion retry policy.
func NewRetryingCompleter(next Completer, optFns ...func(o *RetryingOptions)) *RetryingCompleter {
	opts := RetryingOptions{
		Policy: core.CompletionRetryPolicy(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RetryingCompleter{next: next, policy: opts.Policy, timeout: opts.Timeout}
}

// Complete implements Completer.
func (c *RetryingCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out string
	err := c.policy.Do(ctx, func() error {
		attemptCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		text, err := c.next.Complete(attemptCtx, systemPrompt, userPrompt)
		if err != nil {
			if errors.Is(err, core.ErrMissingAPIKey) {
				return core.Permanent(err)
			}
			return err
		}
		out = text
		return nil
	})
	return out, err
}
