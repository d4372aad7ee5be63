// Package selector implements the detail-degradation algorithms that fit
// ranked candidates into a token pool. Two strategies share one contract: a
// greedy scan that admits candidates in rank order, and a model-assisted
// variant that asks an LLM to choose the subset before the same budget
// validation is applied.
package selector

import (
	"context"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/rank"
	"github.com/hesiod-au/mentat/internal/tokens"
)

// Renderer produces the text a feature contributes to the message.
// Implemented by render.Renderer.
type Renderer interface {
	Feature(ctx context.Context, f feature.Feature) (string, error)
}

// Selector picks features whose rendered cost fits a token pool.
//
// Guarantees for every implementation: total rendered cost of the result is
// at most pool (measured with the real tokenizer), the result carries no
// duplicate (path, interval) keys, and pinned candidates are never selected
// since the caller accounts for them separately.
type Selector interface {
	Select(ctx context.Context, candidates []rank.Candidate, pool int, model string,
		fallback []feature.DetailLevel, query string, hints []string) ([]feature.Feature, error)
}

// Greedy admits candidates in rank order at the highest detail level that
// fits the remaining pool. A candidate that fits at no level, not even
// FILE_NAME, is omitted without cutting the scan short.
type Greedy struct {
	renderer Renderer
	counter  tokens.Tokenizer
	logger   *zap.Logger
}

func NewGreedy(renderer Renderer, counter tokens.Tokenizer, logger *zap.Logger) *Greedy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Greedy{renderer: renderer, counter: counter, logger: logger.Named("selector")}
}

func (g *Greedy) Select(ctx context.Context, candidates []rank.Candidate, pool int, model string,
	fallback []feature.DetailLevel, query string, hints []string) ([]feature.Feature, error) {

	remaining := pool
	var selected []feature.Feature
	seenPath := make(map[string]bool)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if remaining <= 0 {
			break
		}
		if c.Feature.Pinned || seenPath[c.Feature.Path] {
			continue
		}

		fitted, cost, ok, err := g.fit(ctx, c.Feature, remaining, model, fallback)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		selected = append(selected, fitted)
		seenPath[fitted.Path] = true
		remaining -= cost
	}
	return selected, nil
}

// fit returns the highest-detail variant of f that costs at most budget,
// trying the natural level first and then each fallback level below it.
// Render failures disqualify the candidate; tokenizer failures abort the
// build since no admission decision can be accounted without counts.
func (g *Greedy) fit(ctx context.Context, f feature.Feature, budget int, model string,
	fallback []feature.DetailLevel) (feature.Feature, int, bool, error) {

	attempts := []feature.Feature{f}
	for _, level := range fallback {
		if level >= f.Level {
			continue
		}
		attempts = append(attempts, f.WithLevel(level))
	}

	for _, attempt := range attempts {
		text, err := g.renderer.Feature(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return feature.Feature{}, 0, false, err
			}
			g.logger.Warn("candidate not renderable, skipping",
				zap.String("ref", attempt.Ref()),
				zap.Error(err))
			return feature.Feature{}, 0, false, nil
		}

		cost, err := g.counter.Count(ctx, text, model)
		if err != nil {
			return feature.Feature{}, 0, false, err
		}
		if cost <= budget {
			return attempt, cost, true, nil
		}
	}
	return feature.Feature{}, 0, false, nil
}
