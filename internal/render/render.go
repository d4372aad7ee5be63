// Package render turns selected features into the context message text.
// Features are grouped by path, intervals of one file are separated by gap
// markers, and baseline diffs are spliced in as "-" and "+" rows.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/diff"
	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/symbols"
)

// Renderer renders features from one repository snapshot. Construct one per
// assembly pass: file contents are cached for the renderer's lifetime, so
// selector sizing and final output see identical bytes.
type Renderer struct {
	root    string
	mapper  symbols.Mapper
	annsFor func(path string) []diff.Annotation
	logger  *zap.Logger

	mu    sync.Mutex
	files map[string]*fileEntry
}

type fileEntry struct {
	raw   []byte
	lines []string
}

// New creates a renderer rooted at the repository directory. mapper may be
// nil (structural summary rows degrade to the header line); annsFor may be
// nil (no diff rows).
func New(root string, mapper symbols.Mapper, annsFor func(path string) []diff.Annotation, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if annsFor == nil {
		annsFor = func(string) []diff.Annotation { return nil }
	}
	return &Renderer{
		root:    root,
		mapper:  mapper,
		annsFor: annsFor,
		logger:  logger.Named("render"),
		files:   make(map[string]*fileEntry),
	}
}

func (r *Renderer) file(path string) (*fileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.files[path]; ok {
		return entry, nil
	}

	raw, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	entry := &fileEntry{raw: raw}
	text := strings.TrimSuffix(string(raw), "\n")
	if text != "" {
		entry.lines = strings.Split(text, "\n")
	}
	r.files[path] = entry
	return entry, nil
}

// Feature renders a single feature, trailing blank line included. This is
// the unit the selector sizes with the tokenizer.
func (r *Renderer) Feature(ctx context.Context, f feature.Feature) (string, error) {
	rows, err := r.featureRows(ctx, f)
	if err != nil {
		return "", err
	}
	return strings.Join(append(rows, ""), "\n"), nil
}

func (r *Renderer) featureRows(ctx context.Context, f feature.Feature) ([]string, error) {
	switch f.Level {
	case feature.LevelFileName:
		return []string{f.Path}, nil
	case feature.LevelCMap:
		return r.mapRows(ctx, f.Path, false)
	case feature.LevelCMapFull:
		return r.mapRows(ctx, f.Path, true)
	case feature.LevelInterval:
		return r.intervalRows(f.Path, []feature.Interval{f.Interval})
	default: // LevelCode
		return r.intervalRows(f.Path, []feature.Interval{feature.Whole})
	}
}

func (r *Renderer) mapRows(ctx context.Context, path string, full bool) ([]string, error) {
	rows := []string{path}
	if r.mapper == nil || !r.mapper.Available() || !r.mapper.Supports(path) {
		return rows, nil
	}

	entry, err := r.file(path)
	if err != nil {
		return nil, err
	}
	syms, err := r.mapper.Map(ctx, path, entry.raw)
	if err != nil {
		r.logger.Warn("structural summary failed", zap.String("path", path), zap.Error(err))
		return rows, nil
	}
	if formatted := symbols.FormatMap(syms, full); formatted != "" {
		rows = append(rows, strings.Split(formatted, "\n")...)
	}
	return rows, nil
}

// intervalRows renders the header and the requested line ranges of one file,
// diff rows spliced in, "..." between non-adjacent ranges.
func (r *Renderer) intervalRows(path string, intervals []feature.Interval) ([]string, error) {
	entry, err := r.file(path)
	if err != nil {
		return nil, err
	}
	anns := r.annsFor(path)

	rows := []string{path}
	prevEnd := -1
	for _, iv := range intervals {
		if prevEnd >= 0 && iv.Start > prevEnd {
			rows = append(rows, "...")
		}
		rows = append(rows, r.codeRows(entry.lines, iv, anns)...)
		prevEnd = iv.End
	}
	return rows, nil
}

// codeRows returns numbered content rows for one line range. Lines inside a
// changed interval carry a "+" prefix; baseline lines removed at a position
// are inserted above it as "-:" rows.
func (r *Renderer) codeRows(lines []string, iv feature.Interval, anns []diff.Annotation) []string {
	lo := iv.Start
	if lo < 1 {
		lo = 1
	}
	hi := iv.End
	if max := len(lines) + 1; hi > max {
		hi = max
	}

	var rows []string
	for n := lo; n < hi; n++ {
		for _, a := range anns {
			if a.Interval.Start == n {
				rows = append(rows, removedRows(a)...)
			}
		}
		if inAnnotation(n, anns) {
			rows = append(rows, fmt.Sprintf("+%d:%s", n, lines[n-1]))
		} else {
			rows = append(rows, fmt.Sprintf("%d:%s", n, lines[n-1]))
		}
	}
	// A deletion anchored just past the range, such as lines removed at the
	// end of the file, still belongs to this range.
	for _, a := range anns {
		if a.Interval.Start == hi && a.Interval.End == hi {
			rows = append(rows, removedRows(a)...)
		}
	}
	return rows
}

func removedRows(a diff.Annotation) []string {
	rows := make([]string, len(a.Removed))
	for i, line := range a.Removed {
		rows[i] = "-:" + line
	}
	return rows
}

func inAnnotation(line int, anns []diff.Annotation) bool {
	for _, a := range anns {
		if a.Interval.Contains(line) {
			return true
		}
	}
	return false
}

// preambleRows is the fixed message header. The diff legend appears only
// when a baseline is active and has changes.
func preambleRows(diffLabel string) []string {
	var rows []string
	if diffLabel != "" {
		rows = append(rows,
			"Diff References:",
			` "-" = `+diffLabel,
			` "+" = Active Changes`,
			"",
		)
	}
	return append(rows, "Code Files:", "")
}

// Preamble returns the message header text, for token accounting.
func Preamble(diffLabel string) string {
	return strings.Join(preambleRows(diffLabel), "\n")
}

// Preamble returns the message header text, for token accounting.
func (r *Renderer) Preamble(diffLabel string) string {
	return Preamble(diffLabel)
}

// Message renders the full context message for the selected features.
// Features are grouped by path, paths ordered lexicographically, intervals
// by start line. Unreadable paths are skipped with a notice rather than
// failing the whole message.
func (r *Renderer) Message(ctx context.Context, feats []feature.Feature, diffLabel string) (string, []string, error) {
	byPath := make(map[string][]feature.Feature)
	var paths []string
	for _, f := range feats {
		if _, ok := byPath[f.Path]; !ok {
			paths = append(paths, f.Path)
		}
		byPath[f.Path] = append(byPath[f.Path], f)
	}
	sort.Strings(paths)

	rows := preambleRows(diffLabel)
	var notices []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		blockRows, err := r.blockRows(ctx, byPath[path])
		if err != nil {
			r.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			notices = append(notices, fmt.Sprintf("Skipped %s: %v", path, err))
			continue
		}
		rows = append(rows, append(blockRows, "")...)
	}
	return strings.Join(rows, "\n"), notices, nil
}

// blockRows renders all features of one path under a single header.
func (r *Renderer) blockRows(ctx context.Context, feats []feature.Feature) ([]string, error) {
	if len(feats) == 1 && feats[0].Level != feature.LevelInterval {
		return r.featureRows(ctx, feats[0])
	}

	intervals := make([]feature.Interval, 0, len(feats))
	for _, f := range feats {
		if f.Level == feature.LevelInterval {
			intervals = append(intervals, f.Interval)
		} else {
			intervals = append(intervals, feature.Whole)
		}
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
	return r.intervalRows(feats[0].Path, intervals)
}
