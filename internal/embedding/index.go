package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"
)

// batchSize limits how many texts go to the engine per EmbedBatch call.
const batchSize = 32

// Item is a unit of content to score against a query.
type Item struct {
	ID      string // stable identifier, typically a repo-relative path
	Content string
}

// Index scores items against a natural-language query by cosine similarity
// of their embeddings. Vectors are looked up in the cache first; only misses
// reach the engine.
type Index struct {
	engine EmbeddingEngine
	cache  *Cache
	logger *zap.Logger
}

// NewIndex creates an index over the given engine. The cache may be nil, in
// which case every call embeds from scratch.
func NewIndex(engine EmbeddingEngine, cache *Cache, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		engine: engine,
		cache:  cache,
		logger: logger.Named("embindex"),
	}
}

// ContentDigest returns the cache key digest for a piece of content.
func ContentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Scores returns one similarity score per item, in item order, in [-1, 1].
// Items whose vectors cannot be compared (for example a stale cached vector
// of another dimensionality) score 0 rather than failing the whole query.
func (ix *Index) Scores(ctx context.Context, query string, items []Item) ([]float64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	queryVec, err := ix.vectorFor(ctx, query, RoleQuery)
	if err != nil {
		return nil, err
	}

	vectors, err := ix.documentVectors(ctx, items)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(items))
	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		score, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			ix.logger.Warn("skipping incomparable vector",
				zap.String("id", items[i].ID),
				zap.Error(err))
			continue
		}
		scores[i] = score
	}
	return scores, nil
}

// vectorFor embeds a single text, consulting the cache on both sides.
func (ix *Index) vectorFor(ctx context.Context, text string, role Role) ([]float32, error) {
	digest := ContentDigest(text)
	if vec, ok := ix.cacheGet(ctx, role, digest); ok {
		return vec, nil
	}

	vec, err := ix.engine.Embed(ctx, text, role)
	if err != nil {
		return nil, err
	}
	ix.cachePut(ctx, role, digest, vec)
	return vec, nil
}

// documentVectors returns one vector per item. Cache misses are embedded in
// batches so a cold start on a large repository stays bounded per request.
func (ix *Index) documentVectors(ctx context.Context, items []Item) ([][]float32, error) {
	vectors := make([][]float32, len(items))
	digests := make([]string, len(items))

	var missIdx []int
	for i, item := range items {
		digests[i] = ContentDigest(item.Content)
		if vec, ok := ix.cacheGet(ctx, RoleDocument, digests[i]); ok {
			vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missIdx); start += batchSize {
		end := start + batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]

		texts := make([]string, len(batch))
		for j, i := range batch {
			texts[j] = items[i].Content
		}

		embedded, err := ix.engine.EmbedBatch(ctx, texts, RoleDocument)
		if err != nil {
			return nil, err
		}
		for j, i := range batch {
			vectors[i] = embedded[j]
			ix.cachePut(ctx, RoleDocument, digests[i], embedded[j])
		}
	}

	return vectors, nil
}

func (ix *Index) cacheGet(ctx context.Context, role Role, digest string) ([]float32, bool) {
	if ix.cache == nil {
		return nil, false
	}
	vec, ok, err := ix.cache.Get(ctx, ix.engine.Name(), role, digest)
	if err != nil {
		ix.logger.Warn("embedding cache read failed", zap.Error(err))
		return nil, false
	}
	return vec, ok
}

func (ix *Index) cachePut(ctx context.Context, role Role, digest string, vec []float32) {
	if ix.cache == nil {
		return
	}
	if err := ix.cache.Put(ctx, ix.engine.Name(), role, digest, vec); err != nil {
		ix.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}
