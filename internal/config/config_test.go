package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"MENTAT_MODEL", "MENTAT_MAX_TOKENS", "MENTAT_AUTO_TOKENS",
		"MENTAT_DIFF", "MENTAT_LOG_LEVEL",
		"GENAI_API_KEY", "GEMINI_API_KEY",
		"OLLAMA_ENDPOINT", "OLLAMA_EMBEDDING_MODEL",
	} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Model != "gpt-4" {
		t.Errorf("expected Model=gpt-4, got %s", cfg.Model)
	}
	if cfg.Context.AutoTokens != -1 {
		t.Errorf("expected AutoTokens=-1, got %d", cfg.Context.AutoTokens)
	}
	if !cfg.Context.StructuralSummaries {
		t.Error("expected structural summaries on by default")
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("expected Provider=ollama, got %s", cfg.Embedding.Provider)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Model = "gpt-4o"
	cfg.Context.MaxTokens = 9000
	cfg.Context.StructuralSummaries = false
	cfg.Context.IncludePaths = []string{"main.go", "lib/util.go:10-40"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Model != "gpt-4o" {
		t.Errorf("expected Model=gpt-4o, got %s", loaded.Model)
	}
	if loaded.Context.MaxTokens != 9000 {
		t.Errorf("expected MaxTokens=9000, got %d", loaded.Context.MaxTokens)
	}
	if loaded.Context.StructuralSummaries {
		t.Error("expected structural summaries off after round trip")
	}
	if len(loaded.Context.IncludePaths) != 2 || loaded.Context.IncludePaths[1] != "lib/util.go:10-40" {
		t.Errorf("include paths not preserved: %v", loaded.Context.IncludePaths)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != DefaultConfig().Model {
		t.Errorf("expected defaults, got Model=%s", cfg.Model)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for malformed YAML")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid defaults, got error: %v", err)
	}

	cfg.Embedding.Provider = "invalid-provider"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid embedding provider")
	}

	cfg = DefaultConfig()
	cfg.Context.MaxTokens = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero max_tokens")
	}

	cfg = DefaultConfig()
	cfg.Context.UseLLMSelection = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for LLM selection without an API key")
	}
	cfg.LLM.APIKey = "test-key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	cfg = DefaultConfig()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid log level")
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GetLLMTimeout() != 120*time.Second {
		t.Errorf("GetLLMTimeout=%v, want 120s", cfg.GetLLMTimeout())
	}

	cfg.LLM.Timeout = "not-a-duration"
	if cfg.GetLLMTimeout() != 120*time.Second {
		t.Error("GetLLMTimeout should fall back to 120s on a bad value")
	}

	cfg.LLM.Timeout = "45s"
	if cfg.GetLLMTimeout() != 45*time.Second {
		t.Errorf("GetLLMTimeout=%v, want 45s", cfg.GetLLMTimeout())
	}
}
