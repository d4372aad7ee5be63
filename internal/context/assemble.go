package context

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/catalog"
	"github.com/hesiod-au/mentat/internal/diff"
	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/rank"
)

// GetContextMessage assembles the context message for a prompt, bounded by
// maxTokens as measured by the model's tokenizer. Unchanged files and
// settings return the cached message without rebuilding. expectedEdits are
// optional hints forwarded to the selector.
//
// Degraded collaborators (diff, similarity, structural summaries) reduce the
// result and post notices; only tokenizer failure or cancellation fail the
// call. A failed build leaves the cache and the last feature set untouched.
func (e *Engine) GetContextMessage(ctx context.Context, query, model string, maxTokens int, expectedEdits []string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pre, err := e.checksumFor(ctx, e.features, model, maxTokens)
	if err != nil {
		return "", err
	}
	return e.cache.GetOrBuild(ctx, pre, func(ctx context.Context) (string, string, error) {
		message, feats, err := e.assemble(ctx, query, model, maxTokens, expectedEdits)
		if err != nil {
			return "", "", err
		}
		post, err := e.checksumFor(ctx, feats, model, maxTokens)
		if err != nil {
			return "", "", err
		}
		e.features = feats
		return message, post, nil
	})
}

func (e *Engine) assemble(ctx context.Context, query, model string, maxTokens int, expectedEdits []string) (string, []feature.Feature, error) {
	if err := e.refreshDiff(ctx); err != nil {
		return "", nil, err
	}
	structural := e.structuralEnabled()

	label := e.diffLabel()
	meta, err := e.counter.Count(ctx, e.renderer.Preamble(label), model)
	if err != nil {
		return "", nil, fmt.Errorf("counting preamble tokens: %w", err)
	}

	pinned, pinnedTokens, err := e.pinnedFeatures(ctx, model)
	if err != nil {
		return "", nil, err
	}

	feats := pinned
	if pool := autoPool(maxTokens, meta, pinnedTokens, e.settings.AutoTokens); pool > 0 {
		candidates, err := e.rankedCandidates(ctx, query, structural)
		if err != nil {
			return "", nil, err
		}
		unpinned := make([]rank.Candidate, 0, len(candidates))
		for _, c := range candidates {
			if !c.Feature.Pinned {
				unpinned = append(unpinned, c)
			}
		}
		selected, err := e.sel.Select(ctx, unpinned, pool, model,
			feature.FallbackChain(structural), query, expectedEdits)
		if err != nil {
			return "", nil, err
		}
		feats = append(append([]feature.Feature(nil), pinned...), selected...)
	}

	message, notices, err := e.renderer.Message(ctx, feats, label)
	if err != nil {
		return "", nil, err
	}
	for _, notice := range notices {
		e.notify(notice)
	}
	return message, feats, nil
}

// refreshDiff drops the memoized change set and recomputes it against the
// live baseline. Only cancellation is an error; an invalid baseline
// degrades to no-diff with a notice.
func (e *Engine) refreshDiff(ctx context.Context) error {
	if e.diff == nil {
		return nil
	}
	e.diff.ClearCache()
	return e.ensureDiff(ctx)
}

// ensureDiff computes the change set if it is not already memoized.
func (e *Engine) ensureDiff(ctx context.Context) error {
	if e.diff == nil {
		return nil
	}
	if err := e.diff.Refresh(ctx); err != nil {
		return err
	}
	if err := e.diff.Degraded(); err != nil {
		e.notify(fmt.Sprintf("Diff against %s unavailable: %v", e.settings.DiffBaseline, err))
	}
	return nil
}

// structuralEnabled reports whether code maps are usable this build. An
// unusable mapper turns them off for the rest of the session, matching the
// configuration being off.
func (e *Engine) structuralEnabled() bool {
	if !e.settings.StructuralSummaries {
		return false
	}
	if e.mapper.Available() {
		return true
	}
	e.settings.StructuralSummaries = false
	e.notify("Structural summaries unavailable, continuing without code maps")
	return false
}

// diffLabel is the preamble legend label, present only when the diff
// actually touches files.
func (e *Engine) diffLabel() string {
	if e.diff == nil || len(e.diff.ChangedFiles()) == 0 {
		return ""
	}
	return e.diff.BaselineLabel()
}

// pinnedFeatures returns the pin set re-stamped against the current diff,
// sorted by path, together with its rendered token cost. Pinned files that
// no longer render are dropped with a notice.
func (e *Engine) pinnedFeatures(ctx context.Context, model string) ([]feature.Feature, int, error) {
	var out []feature.Feature
	for path, feats := range e.includes {
		anns := e.diffAnnotations(path)
		for _, f := range feats {
			f = f.WithPinned(true).WithDiffMarker("")
			span := f.Interval
			if f.Level != feature.LevelInterval {
				span = feature.Whole
			}
			for _, a := range anns {
				if a.Interval.Intersects(span) {
					f = f.WithDiffMarker(e.diff.BaselineLabel())
					break
				}
			}
			out = append(out, f)
		}
	}
	feature.Sort(out)

	kept := out[:0]
	total := 0
	for _, f := range out {
		text, err := e.renderer.Feature(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, err
			}
			e.notify(fmt.Sprintf("Skipped pinned %s: %v", f.Ref(), err))
			continue
		}
		n, err := e.counter.Count(ctx, text, model)
		if err != nil {
			return nil, 0, fmt.Errorf("counting pinned tokens: %w", err)
		}
		kept = append(kept, f)
		total += n
	}
	return kept, total, nil
}

func (e *Engine) diffAnnotations(path string) []diff.Annotation {
	if e.diff == nil {
		return nil
	}
	return e.diff.FileAnnotations(path)
}

// rankedCandidates lists the auto-selectable inventory in rank order:
// similarity order when enabled and a query is present, catalog order
// otherwise, pinned candidates first either way.
func (e *Engine) rankedCandidates(ctx context.Context, query string, structural bool) ([]rank.Candidate, error) {
	wantScores := query != "" && e.settings.UseSimilarity && e.ranker.Enabled()
	cands, err := e.candidates(ctx, feature.LevelInterval, structural, wantScores)
	if err != nil {
		return nil, err
	}
	rankQuery := query
	if !e.settings.UseSimilarity {
		rankQuery = ""
	}
	ranked, notice, err := e.ranker.Rank(ctx, rankQuery, cands)
	if err != nil {
		return nil, err
	}
	if notice != "" {
		e.notify(notice)
	}
	return ranked, nil
}

// candidates builds the catalog at level and, when similarity scoring will
// run, attaches each feature's rendered text as embedding content.
func (e *Engine) candidates(ctx context.Context, level feature.DetailLevel, structural, withContent bool) ([]rank.Candidate, error) {
	pinnedPaths := make(map[string]bool, len(e.includes))
	for path := range e.includes {
		pinnedPaths[path] = true
	}
	feats, err := e.catalog.Build(ctx, e.root, pinnedPaths, e.ignored,
		e.diffSource(), structural, level, e.settings.MaxFileBytes)
	if err != nil {
		return nil, err
	}

	cands := make([]rank.Candidate, 0, len(feats))
	for _, f := range feats {
		c := rank.Candidate{Feature: f}
		if withContent {
			text, err := e.renderer.Feature(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				e.logger.Debug("dropping unrenderable candidate",
					zap.String("ref", f.Ref()), zap.Error(err))
				continue
			}
			c.Content = text
		}
		cands = append(cands, c)
	}
	return cands, nil
}

func (e *Engine) diffSource() catalog.DiffSource {
	if e.diff == nil {
		return nil
	}
	return e.diff
}

// ScoredFeature pairs a search hit with its similarity score.
type ScoredFeature struct {
	Feature feature.Feature
	Score   float64
}

// Search returns the features most similar to query in descending score
// order, truncated to maxResults when positive. With similarity disabled or
// unreachable it returns no hits and posts a notice instead of failing.
func (e *Engine) Search(ctx context.Context, query string, maxResults int, level feature.DetailLevel) ([]ScoredFeature, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.settings.UseSimilarity || !e.ranker.Enabled() {
		e.notify("Similarity search is disabled; enable use_similarity to search")
		return nil, nil
	}
	if err := e.ensureDiff(ctx); err != nil {
		return nil, err
	}
	structural := e.structuralEnabled()

	cands, err := e.candidates(ctx, level, structural, true)
	if err != nil {
		return nil, err
	}
	scored, err := e.ranker.Scored(ctx, query, cands)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		e.notify(fmt.Sprintf("Similarity search failed: %v", err))
		return nil, nil
	}

	scored = rank.Top(scored, maxResults)
	out := make([]ScoredFeature, len(scored))
	for i, c := range scored {
		out[i] = ScoredFeature{Feature: c.Feature, Score: c.Score}
	}
	return out, nil
}
