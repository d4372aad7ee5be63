package embedding

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Cache persists embedding vectors in SQLite, keyed by engine name, role and
// content digest. Content addressing means an unchanged file never needs a
// second network round trip, across sessions and across repositories.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
    engine     TEXT NOT NULL,
    role       TEXT NOT NULL,
    digest     TEXT NOT NULL,
    vector     TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (engine, role, digest)
);
`

// OpenCache opens (creating if needed) the embedding cache at path.
func OpenCache(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}

	return &Cache{db: db, logger: logger.Named("embcache")}, nil
}

// Get returns the cached vector for (engine, role, digest), if present.
func (c *Cache) Get(ctx context.Context, engine string, role Role, digest string) ([]float32, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE engine = ? AND role = ? AND digest = ?`,
		engine, role.String(), digest,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query embedding cache: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, false, fmt.Errorf("failed to deserialize cached vector: %w", err)
	}
	return vector, true, nil
}

// Put stores a vector for (engine, role, digest), replacing any existing row.
func (c *Cache) Put(ctx context.Context, engine string, role Role, digest string, vector []float32) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to serialize vector: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (engine, role, digest, vector) VALUES (?, ?, ?, ?)`,
		engine, role.String(), digest, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
