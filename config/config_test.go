package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RESEARCHMESH_MODEL_PROVIDER",
		"RESEARCHMESH_MODEL_NAME",
		"RESEARCHMESH_STORE_BACKEND",
		"RESEARCHMESH_STORE_PATH",
		"RESEARCHMESH_ADDR",
		"RESEARCHMESH_LOG_LEVEL",
		"RESEARCHMESH_MAX_ITERATIONS",
		"OPENAI_API_KEY",
		"ANTHROPIC_API_KEY",
		"TAVILY_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 5, cfg.Workflow.MaxIterations)
	assert.Equal(t, 0.8, cfg.Review.OverallThreshold)
	assert.Equal(t, 0.9, cfg.Review.FactCheckThreshold)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Hour, cfg.Search.CacheTTL())
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, `
model:
  provider: anthropic
  name: claude-sonnet-4-20250514
workflow:
  max_iterations: 8
  human_loop_enabled: true
store:
  backend: sqlite
  path: /tmp/sessions.db
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model.Name)
	assert.Equal(t, 8, cfg.Workflow.MaxIterations)
	assert.True(t, cfg.Workflow.HumanLoopEnabled)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/sessions.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Search.MaxResultsPerQuery)
	assert.Equal(t, 0.8, cfg.Review.OverallThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, `
model:
  provider: openai
workflow:
  max_iterations: 3
`)
	t.Setenv("RESEARCHMESH_MAX_ITERATIONS", "7")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TAVILY_API_KEY", "tvly-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Workflow.MaxIterations)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, "tvly-test", cfg.Search.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "model: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown model provider", func(c *Config) { c.Model.Provider = "cohere" }},
		{"unknown search provider", func(c *Config) { c.Search.Provider = "bing" }},
		{"unknown store backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"file store without path", func(c *Config) { c.Store.Backend = "file" }},
		{"zero max iterations", func(c *Config) { c.Workflow.MaxIterations = 0 }},
		{"threshold above one", func(c *Config) { c.Review.OverallThreshold = 1.5 }},
		{"negative fact check threshold", func(c *Config) { c.Review.FactCheckThreshold = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
