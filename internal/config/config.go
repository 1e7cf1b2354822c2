// Package config loads taskrag configuration from YAML with environment
// variable overrides. A missing config file is not an error: defaults apply,
// then the environment wins over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taskrag configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP server settings
	Server ServerConfig `yaml:"server"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Vector index configuration
	Index IndexConfig `yaml:"index"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Retrieval behavior
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Generation behavior
	Generation GenerationConfig `yaml:"generation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RequestTimeout string `yaml:"request_timeout"`
}

// EmbeddingConfig configures the embedding engine.
// The same model must be used at ingest time and query time; similarity
// scores across models are meaningless.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// IndexConfig configures the vector index storage.
type IndexConfig struct {
	DatabasePath string `yaml:"database_path"`
	Collection   string `yaml:"collection"`
}

// LLMConfig configures the task-generation language model.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"` // empty means the provider's public endpoint
	Timeout  string `yaml:"timeout"`
}

// RetrievalConfig configures query construction and candidate selection.
type RetrievalConfig struct {
	// Candidates requested from the index; selection is still top-1.
	TopK int `yaml:"top_k"`

	// Minimum cosine similarity for the top candidate. Below it the best
	// candidate is still returned (threshold re-ranks, never excludes).
	MinSimilarity float64 `yaml:"min_similarity"`

	// Metadata filter precedence, first match wins. Valid entries:
	// vip, sponsor, outdoor, event_type.
	FilterPrecedence []string `yaml:"filter_precedence"`

	// What to do when retrieval itself fails (index or embedder down):
	// "degrade" proceeds with empty context, "abort" fails the request.
	FailurePolicy string `yaml:"failure_policy"`
}

// GenerationConfig configures prompt size and the retry ladder.
type GenerationConfig struct {
	Temperature       float64 `yaml:"temperature"`
	MaxOutputTokens   int     `yaml:"max_output_tokens"`
	ContextCharBudget int     `yaml:"context_char_budget"`
}

// LoggingConfig configures the category debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	Categories map[string]bool `yaml:"categories"`
}

// Failure policies for retrieval errors.
const (
	FailurePolicyDegrade = "degrade"
	FailurePolicyAbort   = "abort"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "taskrag",
		Version: "1.0.0",

		Server: ServerConfig{
			Addr:           ":8000",
			RequestTimeout: "90s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "all-minilm",
			GenAIModel:     "gemini-embedding-001",
		},

		Index: IndexConfig{
			DatabasePath: "data/taskrag.db",
			Collection:   "global_kb",
		},

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  "60s",
		},

		Retrieval: RetrievalConfig{
			TopK:             12,
			MinSimilarity:    0.30,
			FilterPrecedence: []string{"vip", "sponsor", "outdoor", "event_type"},
			FailurePolicy:    FailurePolicyDegrade,
		},

		Generation: GenerationConfig{
			Temperature:       0.2,
			MaxOutputTokens:   1600,
			ContextCharBudget: 6000,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		// Applies to whichever provider is active.
		c.Embedding.OllamaModel = v
		c.Embedding.GenAIModel = v
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
	// Provider first: the key-selection blocks below depend on it.
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
		if c.LLM.Provider == "gemini" {
			c.LLM.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("TASKRAG_DB"); v != "" {
		c.Index.DatabasePath = v
	}
	if v := os.Getenv("TASKRAG_COLLECTION"); v != "" {
		c.Index.Collection = v
	}
	if v := os.Getenv("TASKRAG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TASKRAG_MIN_SIMILARITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.MinSimilarity = f
		}
	}
	if v := os.Getenv("TASKRAG_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
			if b && c.Logging.Level == "info" {
				c.Logging.Level = "debug"
			}
		}
	}
}

// DataDir returns the directory holding on-disk state, derived from the
// index database path so logs land next to the database. An in-memory
// database falls back to "data".
func (c *Config) DataDir() string {
	if c.Index.DatabasePath == "" || c.Index.DatabasePath == ":memory:" {
		return "data"
	}
	return filepath.Dir(c.Index.DatabasePath)
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetRequestTimeout returns the HTTP request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.RequestTimeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini"}

// ValidFilterKeys lists the accepted retrieval filter precedence entries.
var ValidFilterKeys = []string{"vip", "sponsor", "outdoor", "event_type"}

// Validate validates the configuration for serving.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}

	switch c.Retrieval.FailurePolicy {
	case FailurePolicyDegrade, FailurePolicyAbort:
	default:
		return fmt.Errorf("invalid retrieval failure policy: %s (valid: degrade, abort)", c.Retrieval.FailurePolicy)
	}

	for _, k := range c.Retrieval.FilterPrecedence {
		valid := false
		for _, v := range ValidFilterKeys {
			if k == v {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid filter precedence entry: %s (valid: %v)", k, ValidFilterKeys)
		}
	}

	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be within [-1, 1], got %v", c.Retrieval.MinSimilarity)
	}

	return nil
}
