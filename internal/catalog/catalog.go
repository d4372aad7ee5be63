// Package catalog builds the feature inventory of a repository: one or more
// features per enumerable text file at a requested detail level. The catalog
// is a best-effort listing; paths that cannot be read or decoded are dropped
// rather than reported.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/repo"
	"github.com/hesiod-au/mentat/internal/symbols"
)

// FileEnumerator lists candidate files under a root directory.
type FileEnumerator interface {
	List(ctx context.Context, root string) ([]repo.FileInfo, error)
}

// DiffSource reports which paths carry changes against the diff baseline.
type DiffSource interface {
	HasDiff(path string) bool
	BaselineLabel() string
}

// Builder assembles feature catalogs from an enumerator and a symbol mapper.
type Builder struct {
	enum   FileEnumerator
	mapper symbols.Mapper
	logger *zap.Logger
}

// NewBuilder returns a catalog builder. A nil mapper disables structural
// splitting regardless of the build flag.
func NewBuilder(enum FileEnumerator, mapper symbols.Mapper, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mapper == nil {
		mapper = symbols.NullMapper{}
	}
	return &Builder{enum: enum, mapper: mapper, logger: logger.Named("catalog")}
}

// Build enumerates root and returns its features at the requested level,
// sorted by path with ties broken by interval start.
//
// Directories, paths in ignored, files larger than maxBytes (non-positive
// means unbounded) and files that do not decode as text are excluded.
// Features whose path is in pinned carry the pinned flag; features whose
// path diffSrc reports as changed carry the baseline label as diff marker.
//
// LevelInterval asks for sub-range features split at symbol boundaries; a
// file the mapper cannot split becomes one whole-file interval. When
// structural is false the split has no boundaries to use, so each file is
// produced at LevelCode instead.
func (b *Builder) Build(ctx context.Context, root string, pinned, ignored map[string]bool,
	diffSrc DiffSource, structural bool, level feature.DetailLevel, maxBytes int64) ([]feature.Feature, error) {

	files, err := b.enum.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}

	var features []feature.Feature
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ignored[fi.Path] {
			continue
		}
		if maxBytes > 0 && fi.Size > maxBytes {
			b.logger.Debug("skipping oversized file",
				zap.String("path", fi.Path), zap.Int64("bytes", fi.Size))
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(fi.Path))
		if !repo.IsTextFile(abs) {
			continue
		}

		for _, f := range b.fileFeatures(ctx, root, fi.Path, structural, level) {
			f = f.WithPinned(pinned[fi.Path])
			if diffSrc != nil && diffSrc.HasDiff(fi.Path) {
				f = f.WithDiffMarker(diffSrc.BaselineLabel())
			}
			features = append(features, f)
		}
	}

	feature.Sort(features)
	return features, nil
}

func (b *Builder) fileFeatures(ctx context.Context, root, path string, structural bool, level feature.DetailLevel) []feature.Feature {
	if level != feature.LevelInterval {
		return []feature.Feature{feature.New(path, level)}
	}
	if !structural {
		// Without structural summaries there are no boundaries to split at;
		// the whole file at full detail stands in for its intervals.
		return []feature.Feature{feature.New(path, feature.LevelCode)}
	}
	return b.split(ctx, root, path)
}

// split divides a file into interval features at symbol start lines. The
// produced intervals are disjoint and cover the file without gaps.
func (b *Builder) split(ctx context.Context, root, path string) []feature.Feature {
	abs := filepath.Join(root, filepath.FromSlash(path))
	content, err := os.ReadFile(abs)
	if err != nil {
		b.logger.Debug("file vanished during split", zap.String("path", path), zap.Error(err))
		return nil
	}
	total := lineCount(content)
	whole := feature.Interval{Start: 1, End: total + 1}

	if !b.mapper.Available() || !b.mapper.Supports(path) {
		return []feature.Feature{feature.NewInterval(path, whole)}
	}
	syms, err := b.mapper.Map(ctx, path, content)
	if err != nil {
		b.logger.Debug("symbol mapping failed, keeping file whole",
			zap.String("path", path), zap.Error(err))
		return []feature.Feature{feature.NewInterval(path, whole)}
	}

	starts := intervalStarts(syms, total)
	if len(starts) < 2 {
		return []feature.Feature{feature.NewInterval(path, whole)}
	}
	feats := make([]feature.Feature, 0, len(starts))
	for i, start := range starts {
		end := total + 1
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		feats = append(feats, feature.NewInterval(path, feature.Interval{Start: start, End: end}))
	}
	return feats
}

// intervalStarts returns the distinct split boundaries in ascending order.
// Line 1 is always a boundary so the leading chunk is covered.
func intervalStarts(syms []symbols.Symbol, totalLines int) []int {
	seen := map[int]bool{1: true}
	starts := []int{1}
	for _, s := range syms {
		if s.StartLine <= 1 || s.StartLine > totalLines || seen[s.StartLine] {
			continue
		}
		seen[s.StartLine] = true
		starts = append(starts, s.StartLine)
	}
	sort.Ints(starts)
	return starts
}

func lineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
