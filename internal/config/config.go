package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mentat configuration.
type Config struct {
	// Target model for token accounting
	Model string `yaml:"model"`

	// Context assembly
	Context ContextConfig `yaml:"context"`

	// Embedding backend for similarity ranking
	Embedding EmbeddingConfig `yaml:"embedding"`

	// LLM-assisted candidate selection
	LLM LLMConfig `yaml:"llm"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ContextConfig configures the context assembly engine.
type ContextConfig struct {
	// Total message budget in tokens
	MaxTokens int `yaml:"max_tokens"`

	// Cap on the auto-selection pool. Negative means unbounded, zero
	// disables auto-selection entirely.
	AutoTokens int `yaml:"auto_tokens"`

	// Split files at symbol boundaries and offer code-map detail levels
	StructuralSummaries bool `yaml:"structural_summaries"`

	// Rank candidates by embedding similarity to the query
	UseSimilarity bool `yaml:"use_similarity"`

	// Ask an LLM to choose among ranked candidates
	UseLLMSelection bool `yaml:"use_llm_selection"`

	// Git baseline to annotate changes against (commit, branch, tag)
	DiffBaseline string `yaml:"diff_baseline"`

	// Files larger than this are never offered as candidates
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// Paths pinned at startup, "path" or "path:a-b[,c-d]"
	IncludePaths []string `yaml:"include_paths"`

	// Paths hidden from automatic selection
	IgnorePaths []string `yaml:"ignore_paths"`
}

// EmbeddingConfig configures the similarity backend.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider"`

	// Ollama configuration
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	// GenAI configuration
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// SQLite vector cache location
	CachePath string `yaml:"cache_path"`
}

// LLMConfig configures the completion client used for LLM-assisted
// selection.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultDir returns the mentat state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mentat"
	}
	return filepath.Join(home, ".mentat")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model: "gpt-4",

		Context: ContextConfig{
			MaxTokens:           32768,
			AutoTokens:          -1,
			StructuralSummaries: true,
			MaxFileBytes:        100000,
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			CachePath:      filepath.Join(DefaultDir(), "embeddings.db"),
		},

		LLM: LLMConfig{
			Model:   "gemini-3-flash-preview",
			Timeout: "120s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
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

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

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
	if model := os.Getenv("MENTAT_MODEL"); model != "" {
		c.Model = model
	}
	if v := os.Getenv("MENTAT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Context.MaxTokens = n
		}
	}
	if v := os.Getenv("MENTAT_AUTO_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Context.AutoTokens = n
		}
	}
	if baseline := os.Getenv("MENTAT_DIFF"); baseline != "" {
		c.Context.DiffBaseline = baseline
	}

	// Embedding key, GENAI_API_KEY ahead of GEMINI_API_KEY. A key promotes
	// the provider from the ollama default to genai.
	key := os.Getenv("GENAI_API_KEY")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" || c.Embedding.Provider == "ollama" {
			c.Embedding.Provider = "genai"
		}
	}
	if url := os.Getenv("OLLAMA_ENDPOINT"); url != "" {
		c.Embedding.OllamaEndpoint = url
	}
	if model := os.Getenv("OLLAMA_EMBEDDING_MODEL"); model != "" {
		c.Embedding.OllamaModel = model
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if level := os.Getenv("MENTAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetLLMTimeout returns the completion timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// ValidEmbeddingProviders lists the supported similarity backends.
var ValidEmbeddingProviders = []string{"ollama", "genai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model not configured")
	}
	if c.Context.MaxTokens <= 0 {
		return fmt.Errorf("context.max_tokens must be positive, got %d", c.Context.MaxTokens)
	}

	validProvider := false
	for _, p := range ValidEmbeddingProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}

	if c.Context.UseLLMSelection && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM-assisted selection needs an API key (set GEMINI_API_KEY or llm.api_key)")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}
