// Package config loads the researchmesh configuration from a YAML file with
// environment variable overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of the configuration file.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Search   SearchConfig   `yaml:"search"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Review   ReviewConfig   `yaml:"review"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

// ModelConfig selects the completion provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // "openai" | "anthropic" | "mock"
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"api_key"`
}

// SearchConfig controls the evidence gathering backend.
type SearchConfig struct {
	Provider           string `yaml:"provider"` // "tavily" | "mock"
	APIKey             string `yaml:"api_key"`
	MaxResultsPerQuery int    `yaml:"max_results_per_query"`
	SummaryMaxChars    int    `yaml:"summary_max_chars"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds"`
	CacheMaxEntries    int    `yaml:"cache_max_entries"`
}

// WorkflowConfig bounds the research loop.
type WorkflowConfig struct {
	MaxIterations    int  `yaml:"max_iterations"`
	MinEvidence      int  `yaml:"min_evidence"`
	HumanLoopEnabled bool `yaml:"human_loop_enabled"`
}

// ReviewConfig holds the report approval thresholds.
type ReviewConfig struct {
	OverallThreshold   float64 `yaml:"overall_threshold"`
	FactCheckThreshold float64 `yaml:"fact_check_threshold"`
}

// StoreConfig selects the session persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory" | "file" | "sqlite"
	Path    string `yaml:"path"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// CacheTTL returns the search cache TTL as a duration.
func (c SearchConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown window as a duration.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "openai",
			Temperature: 0.3,
		},
		Search: SearchConfig{
			Provider:           "tavily",
			MaxResultsPerQuery: 5,
			SummaryMaxChars:    2000,
			CacheTTLSeconds:    3600,
			CacheMaxEntries:    256,
		},
		Workflow: WorkflowConfig{
			MaxIterations: 5,
			MinEvidence:   5,
		},
		Review: ReviewConfig{
			OverallThreshold:   0.8,
			FactCheckThreshold: 0.9,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Server: ServerConfig{
			Addr:                   ":8080",
			ShutdownTimeoutSeconds: 10,
		},
		LogLevel: "info",
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. An empty path skips the file and uses defaults
// plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-sensitive fields from the environment. API
// keys are env-first so they never have to live in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("RESEARCHMESH_MODEL_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("RESEARCHMESH_MODEL_NAME"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Model.Provider == "openai" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.Model.Provider == "anthropic" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("RESEARCHMESH_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("RESEARCHMESH_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("RESEARCHMESH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("RESEARCHMESH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RESEARCHMESH_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workflow.MaxIterations = n
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	switch c.Search.Provider {
	case "tavily", "mock":
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}
	switch c.Store.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store backend %q requires a path", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.Workflow.MaxIterations)
	}
	if c.Workflow.MinEvidence < 0 {
		return fmt.Errorf("min_evidence must not be negative, got %d", c.Workflow.MinEvidence)
	}
	if c.Review.OverallThreshold < 0 || c.Review.OverallThreshold > 1 {
		return fmt.Errorf("overall_threshold must be in [0,1], got %g", c.Review.OverallThreshold)
	}
	if c.Review.FactCheckThreshold < 0 || c.Review.FactCheckThreshold > 1 {
		return fmt.Errorf("fact_check_threshold must be in [0,1], got %g", c.Review.FactCheckThreshold)
	}
	return nil
}
