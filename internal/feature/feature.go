// Package feature defines the value types the assembly pipeline trades in:
// a Feature points at a path (or a line range within it) at a chosen detail
// level. Features are immutable values; every attribute change goes through
// a With* helper that returns a fresh copy, so catalog output, ranked lists
// and selection results never alias mutable state.
package feature

import (
	"fmt"
	"sort"
)

// Feature is a selectable unit of context. Identity is (Path, Level,
// Interval); DiffMarker and Pinned are annotations that do not participate
// in identity. Interval is non-zero iff Level == LevelInterval.
type Feature struct {
	Path       string
	Level      DetailLevel
	Interval   Interval
	DiffMarker string
	Pinned     bool
}

// New returns a whole-file feature at the given level.
func New(path string, level DetailLevel) Feature {
	return Feature{Path: path, Level: level}
}

// NewInterval returns a sub-range feature at LevelInterval.
func NewInterval(path string, iv Interval) Feature {
	return Feature{Path: path, Level: LevelInterval, Interval: iv}
}

// WithLevel returns a copy at the given level. Leaving LevelInterval clears
// the interval so the identity invariant holds.
func (f Feature) WithLevel(level DetailLevel) Feature {
	f.Level = level
	if level != LevelInterval {
		f.Interval = Interval{}
	}
	return f
}

// WithDiffMarker returns a copy annotated with the diff baseline label.
func (f Feature) WithDiffMarker(label string) Feature {
	f.DiffMarker = label
	return f
}

// WithPinned returns a copy with the user-pinned flag set.
func (f Feature) WithPinned(pinned bool) Feature {
	f.Pinned = pinned
	return f
}

// Ref is the user-facing reference: "dir/file.go" or "dir/file.go:3-10"
// for interval features (inclusive end).
func (f Feature) Ref() string {
	if f.Level == LevelInterval && !f.Interval.IsZero() {
		return fmt.Sprintf("%s:%s", f.Path, f.Interval)
	}
	return f.Path
}

// Key identifies the content a feature occupies: path plus interval,
// ignoring level and annotations. Selectors use it to reject duplicate
// coverage of the same range.
func (f Feature) Key() string {
	if f.Level == LevelInterval && !f.Interval.IsZero() {
		return fmt.Sprintf("%s:%d:%d", f.Path, f.Interval.Start, f.Interval.End)
	}
	return f.Path
}

func (f Feature) String() string {
	return fmt.Sprintf("%s [%s]", f.Ref(), f.Level)
}

// Sort orders features lexicographically by path, ties broken by interval
// start line. The catalog relies on this for deterministic output.
func Sort(features []Feature) {
	sort.SliceStable(features, func(i, j int) bool {
		if features[i].Path != features[j].Path {
			return features[i].Path < features[j].Path
		}
		return features[i].Interval.Start < features[j].Interval.Start
	})
}

// Paths returns the distinct paths in first-appearance order.
func Paths(features []Feature) []string {
	seen := make(map[string]bool, len(features))
	var paths []string
	for _, f := range features {
		if !seen[f.Path] {
			seen[f.Path] = true
			paths = append(paths, f.Path)
		}
	}
	return paths
}
