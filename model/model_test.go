package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

func TestMockCompleterRules(t *testing.T) {
	mock := NewMockCompleter()
	mock.Respond("research plan", `{"theme":"go"}`)
	mock.Respond("review", "approved")

	out, err := mock.Complete(context.Background(), "You produce a research plan.", "topic: go")
	require.NoError(t, err)
	assert.Equal(t, `{"theme":"go"}`, out)

	out, err = mock.Complete(context.Background(), "You review drafts.", "draft")
	require.NoError(t, err)
	assert.Equal(t, "approved", out)

	assert.Equal(t, 2, mock.Calls())
}

func TestMockCompleterFallback(t *testing.T) {
	mock := NewMockCompleter()
	out, err := mock.Complete(context.Background(), "sys", "something unmatched")
	require.NoError(t, err)
	assert.Contains(t, out, "Mock completion for:")
}

func TestMockCompleterError(t *testing.T) {
	mock := NewMockCompleter()
	boom := errors.New("boom")
	mock.RespondErr("write", boom)

	_, err := mock.Complete(context.Background(), "You write reports.", "write it")
	assert.ErrorIs(t, err, boom)
}

func TestRetryingCompleterRecovers(t *testing.T) {
	mock := NewMockCompleter()
	mock.FailTimes(2, errors.New("rate limit exceeded"))
	mock.Respond("hello", "world")

	policy := core.RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
	c := NewRetryingCompleter(mock, func(o *RetryingOptions) {
		o.Policy = policy
	})

	out, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "world", out)
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryingCompleterExhausted(t *testing.T) {
	mock := NewMockCompleter()
	mock.FailTimes(10, errors.New("rate limit exceeded"))

	policy := core.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
	c := NewRetryingCompleter(mock, func(o *RetryingOptions) {
		o.Policy = policy
	})

	_, err := c.Complete(context.Background(), "sys", "hello")
	require.Error(t, err)
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryingCompleterPermanent(t *testing.T) {
	mock := NewMockCompleter()
	mock.FailTimes(10, core.ErrMissingAPIKey)

	policy := core.RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
	c := NewRetryingCompleter(mock, func(o *RetryingOptions) {
		o.Policy = policy
	})

	_, err := c.Complete(context.Background(), "sys", "hello")
	require.ErrorIs(t, err, core.ErrMissingAPIKey)
	assert.Equal(t, 1, mock.Calls())
}
