// Package rank orders candidate features by similarity to a query. Ranking
// is best-effort for assembly: when the embedding index is unavailable or
// failing, callers get their candidates back in the original order together
// with a notice, never an aborted request.
package rank

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/embedding"
	"github.com/hesiod-au/mentat/internal/feature"
)

// ErrSimilarityDisabled is returned by operations that require scoring, such
// as search, when no embedding index is configured.
var ErrSimilarityDisabled = errors.New("similarity ranking is not available")

// EmbeddingIndex scores items against a query. Implemented by
// embedding.Index.
type EmbeddingIndex interface {
	Scores(ctx context.Context, query string, items []embedding.Item) ([]float64, error)
}

// Candidate pairs a feature with the content that represents it for scoring.
type Candidate struct {
	Feature feature.Feature
	Content string
	Score   float64
}

// Ranker orders candidates. A nil index disables similarity ordering.
type Ranker struct {
	index  EmbeddingIndex
	logger *zap.Logger
}

func New(index EmbeddingIndex, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{index: index, logger: logger.Named("rank")}
}

// Enabled reports whether similarity ranking is available.
func (r *Ranker) Enabled() bool {
	return r != nil && r.index != nil
}

// Scored returns the candidates with similarity scores filled in, ordered by
// descending score, ties in input order. Returns ErrSimilarityDisabled when
// no index is configured.
func (r *Ranker) Scored(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	if !r.Enabled() {
		return nil, ErrSimilarityDisabled
	}

	scored := make([]Candidate, len(candidates))
	copy(scored, candidates)

	items := make([]embedding.Item, len(scored))
	for i, c := range scored {
		items[i] = embedding.Item{ID: c.Feature.Ref(), Content: c.Content}
	}

	scores, err := r.index.Scores(ctx, query, items)
	if err != nil {
		return nil, err
	}
	for i := range scored {
		scored[i].Score = scores[i]
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// Rank returns the candidates ordered for inclusion: pinned features first in
// their original order, the rest by descending similarity to query, ties in
// original order. When ranking is disabled or the index fails, the original
// order is kept and a human-readable notice describes why. Only cancellation
// is returned as an error.
func (r *Ranker) Rank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, string, error) {
	if !r.Enabled() || query == "" || len(candidates) < 2 {
		return pinnedFirst(candidates), "", nil
	}

	scored, err := r.Scored(ctx, query, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", err
		}
		r.logger.Warn("similarity ranking failed, keeping candidate order", zap.Error(err))
		return pinnedFirst(candidates), "Similarity ranking unavailable: " + err.Error(), nil
	}
	return pinnedFirst(scored), "", nil
}

// Top returns at most n candidates; n <= 0 means no limit.
func Top(candidates []Candidate, n int) []Candidate {
	if n <= 0 || n >= len(candidates) {
		return candidates
	}
	return candidates[:n]
}

// pinnedFirst stably partitions pinned candidates ahead of the rest, leaving
// the input untouched.
func pinnedFirst(candidates []Candidate) []Candidate {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Feature.Pinned && !ordered[j].Feature.Pinned
	})
	return ordered
}
