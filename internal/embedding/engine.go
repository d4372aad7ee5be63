// Package embedding scores repository content against queries with vector
// embeddings. Two backends are supported: a local Ollama server and Google
// GenAI. Vectors are cached by content digest so unchanged files are never
// re-embedded.
package embedding

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Role distinguishes how a text participates in similarity scoring.
// Retrieval models embed search queries and indexed documents into the same
// space via different task types, so the engine needs to know which side a
// text is on.
type Role int

const (
	RoleDocument Role = iota
	RoleQuery
)

func (r Role) String() string {
	if r == RoleQuery {
		return "query"
	}
	return "document"
}

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string, role Role) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts of one role.
	EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Name identifies the engine and model, used in cache keys.
	Name() string
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "ollama" or "genai"
	Provider string `json:"provider"`

	// Ollama configuration
	OllamaEndpoint string `json:"ollama_endpoint"` // default http://localhost:11434
	OllamaModel    string `json:"ollama_model"`    // default embeddinggemma

	// GenAI configuration
	GenAIAPIKey string `json:"genai_api_key"`
	GenAIModel  string `json:"genai_model"` // default gemini-embedding-001
}

// DefaultConfig prefers the local provider so nothing leaves the machine
// unless configured to.
func DefaultConfig() Config {
	return Config{
		Provider:       "ollama",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
	}
}

// NewEngine creates an embedding engine from configuration.
func NewEngine(cfg Config, logger *zap.Logger) (EmbeddingEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("creating embedding engine", zap.String("provider", cfg.Provider))

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors,
// between -1 and 1. Zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
