package openai

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleterDefaults(t *testing.T) {
	c := NewCompleter()
	require.NotNil(t, c)
	assert.Empty(t, c.opts.APIKey)
	assert.Equal(t, openai.ChatModelGPT4o, c.opts.Model)
}

func TestNewCompleterAppliesOptions(t *testing.T) {
	c := NewCompleter(func(o *Options) {
		o.APIKey = "test-key"
		o.Model = openai.ChatModelGPT4oMini
		o.Temperature = 0.7
	})
	require.NotNil(t, c)
	assert.Equal(t, "test-key", c.opts.APIKey)
	assert.Equal(t, openai.ChatModelGPT4oMini, c.opts.Model)
	assert.Equal(t, 0.7, c.opts.Temperature)
}
