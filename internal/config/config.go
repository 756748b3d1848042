// Package config loads and validates simplecoder configuration.
//
// Configuration is layered: built-in defaults, then .simplecoder/config.yaml
// in the workspace, then environment variables. Flags handled by the CLI
// override all of these.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all simplecoder configuration.
type Config struct {
	// LLM configures the reasoning backend.
	LLM LLMConfig `yaml:"llm"`

	// Agent configures the ReAct loop.
	Agent AgentConfig `yaml:"agent"`

	// ContextWindow configures history compaction.
	ContextWindow ContextWindowConfig `yaml:"context_window"`

	// RAG configures semantic code search.
	RAG RAGConfig `yaml:"rag"`

	// Logging configures the category file logger.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the reasoning backend.
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // gemini
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
}

// AgentConfig configures the ReAct loop.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`

	// RetryBudget is how many transient backend failures the loop absorbs
	// before terminating; RetryBackoff is the base delay, doubled per retry.
	RetryBudget  int           `yaml:"retry_budget"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ContextWindowConfig configures history compaction.
type ContextWindowConfig struct {
	// MaxTokens is the token budget for conversation history.
	MaxTokens int `yaml:"max_tokens"`

	// KeepRecent is how many trailing messages survive compaction.
	KeepRecent int `yaml:"keep_recent"`

	// CompactThreshold triggers compaction at this fraction of MaxTokens.
	CompactThreshold float64 `yaml:"compact_threshold"`
}

// RAGConfig configures semantic code search.
type RAGConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`

	// EmbeddingProvider selects the embedding backend: "genai" or "ollama".
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	OllamaEndpoint    string `yaml:"ollama_endpoint"`

	IndexPattern string `yaml:"index_pattern"`
	WatchChanges bool   `yaml:"watch_changes"`
}

// LoggingConfig configures the category file logger.
// Mirrored by internal/logging to avoid a circular import.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-3-flash-preview",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         5 * time.Minute,
			MaxOutputTokens: 8192,
			MaxRetries:      3,
			RetryBackoff:    time.Second,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			ToolTimeout:   2 * time.Minute,
			RetryBudget:   3,
			RetryBackoff:  2 * time.Second,
		},
		ContextWindow: ContextWindowConfig{
			MaxTokens:        128000,
			KeepRecent:       10,
			CompactThreshold: 0.8,
		},
		RAG: RAGConfig{
			DatabasePath:      filepath.Join(".simplecoder", "index.db"),
			EmbeddingProvider: "genai",
			EmbeddingModel:    "gemini-embedding-001",
			IndexPattern:      "**/*.{go,py}",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration for a workspace: defaults, then
// .simplecoder/config.yaml if present, then environment overrides.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(workspace, ".simplecoder", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of file config.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if model := os.Getenv("SIMPLECODER_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.RetryBudget < 0 {
		return fmt.Errorf("agent.retry_budget must not be negative, got %d", c.Agent.RetryBudget)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative, got %d", c.LLM.MaxRetries)
	}
	if c.ContextWindow.MaxTokens <= 0 {
		return fmt.Errorf("context_window.max_tokens must be positive, got %d", c.ContextWindow.MaxTokens)
	}
	if c.ContextWindow.KeepRecent < 1 {
		return fmt.Errorf("context_window.keep_recent must be at least 1, got %d", c.ContextWindow.KeepRecent)
	}
	if c.ContextWindow.CompactThreshold <= 0 || c.ContextWindow.CompactThreshold > 1 {
		return fmt.Errorf("context_window.compact_threshold must be in (0, 1], got %v", c.ContextWindow.CompactThreshold)
	}
	switch c.RAG.EmbeddingProvider {
	case "", "genai", "ollama":
	default:
		return fmt.Errorf("rag.embedding_provider must be genai or ollama, got %q", c.RAG.EmbeddingProvider)
	}
	return nil
}
