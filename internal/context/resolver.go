package context

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	filepathx "github.com/yargevad/filepathx"

	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/repo"
)

// Include pins the files matched by spec. A spec is a path, a glob
// (`internal/**/*.go`), a directory, or a single file with line spans
// ("src/a.go:10-40,55-60", inclusive). Added paths are returned sorted;
// a spec that matches no file is reported in invalid.
func (e *Engine) Include(spec string) (added []string, invalid []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.includeLocked(spec)
}

// Exclude unpins every matched file. Removed paths are returned sorted; a
// spec that matches no file is reported in invalid.
func (e *Engine) Exclude(spec string) (removed []string, invalid []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.excludeLocked(spec)
}

// PinnedSpecs renders the pin set back to spec syntax, one entry per
// path, sorted. Interval pins keep their inclusive line spans so the
// output round-trips through Include.
func (e *Engine) PinnedSpecs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	specs := make([]string, 0, len(e.includes))
	for path, feats := range e.includes {
		ordered := append([]feature.Feature(nil), feats...)
		feature.Sort(ordered)
		spans := make([]string, 0, len(ordered))
		for _, f := range ordered {
			if f.Level != feature.LevelInterval {
				spans = nil
				break
			}
			spans = append(spans, fmt.Sprintf("%d-%d", f.Interval.Start, f.Interval.End-1))
		}
		if len(spans) == 0 {
			specs = append(specs, path)
			continue
		}
		specs = append(specs, path+":"+strings.Join(spans, ","))
	}
	sort.Strings(specs)
	return specs
}

// SetPaths seeds the pin set and the ignore set, replacing both. With no
// explicit includes and a diff baseline that touches files, the changed
// files become the initial pin set. Returns every spec that matched
// nothing.
func (e *Engine) SetPaths(ctx context.Context, include, exclude, ignore []string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(include) == 0 && e.diff != nil && e.settings.DiffBaseline != "" {
		if err := e.ensureDiff(ctx); err == nil {
			include = e.diff.ChangedFiles()
		}
	}

	var invalid []string
	e.includes = make(map[string][]feature.Feature)
	for _, spec := range include {
		if _, bad := e.includeLocked(spec); len(bad) > 0 {
			invalid = append(invalid, bad...)
		}
	}
	for _, spec := range exclude {
		if _, bad := e.excludeLocked(spec); len(bad) > 0 {
			invalid = append(invalid, bad...)
		}
	}
	e.ignored = make(map[string]bool)
	for _, spec := range ignore {
		for path := range e.resolveSpec(spec) {
			e.ignored[path] = true
		}
	}
	return invalid
}

func (e *Engine) includeLocked(spec string) (added []string, invalid []string) {
	resolved := e.resolveSpec(spec)
	if len(resolved) == 0 {
		return nil, []string{spec}
	}
	for path, feats := range resolved {
		existing := e.includes[path]
		grew := false
		for _, f := range feats {
			if pinOverlaps(existing, f) {
				continue
			}
			existing = append(existing, f)
			grew = true
		}
		if grew {
			e.includes[path] = existing
			added = append(added, path)
		}
	}
	sort.Strings(added)
	return added, nil
}

func (e *Engine) excludeLocked(spec string) (removed []string, invalid []string) {
	resolved := e.resolveSpec(spec)
	if len(resolved) == 0 {
		return nil, []string{spec}
	}
	for path := range resolved {
		if _, pinned := e.includes[path]; pinned {
			delete(e.includes, path)
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// pinOverlaps reports whether f covers lines an already-pinned feature of
// the same path covers. Overlapping pins must not coexist.
func pinOverlaps(existing []feature.Feature, f feature.Feature) bool {
	span := pinSpan(f)
	for _, ex := range existing {
		if pinSpan(ex).Intersects(span) {
			return true
		}
	}
	return false
}

func pinSpan(f feature.Feature) feature.Interval {
	if f.Level == feature.LevelInterval {
		return f.Interval
	}
	return feature.Whole
}

// resolveSpec expands one path specification into pinned features keyed by
// repository-relative path. An empty result means nothing matched.
func (e *Engine) resolveSpec(spec string) map[string][]feature.Feature {
	pathPart, intervals := parseSpec(spec)

	pattern := filepath.FromSlash(pathPart)
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(e.root, pattern)
	}

	var matches []string
	switch {
	case strings.ContainsAny(pattern, "*?["):
		expanded, err := filepathx.Glob(pattern)
		if err != nil {
			return nil
		}
		matches = expanded
	default:
		info, err := os.Stat(pattern)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			expanded, err := filepathx.Glob(filepath.Join(pattern, "**", "*"))
			if err != nil {
				return nil
			}
			matches = expanded
		} else {
			matches = []string{pattern}
		}
	}

	resolved := make(map[string][]feature.Feature)
	for _, abs := range matches {
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() || !repo.IsTextFile(abs) {
			continue
		}
		rel, err := filepath.Rel(e.root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		path := filepath.ToSlash(rel)
		if len(intervals) == 0 {
			resolved[path] = []feature.Feature{feature.New(path, feature.LevelCode).WithPinned(true)}
			continue
		}
		feats := make([]feature.Feature, 0, len(intervals))
		for _, iv := range intervals {
			feats = append(feats, feature.NewInterval(path, iv).WithPinned(true))
		}
		resolved[path] = feats
	}
	return resolved
}

// parseSpec splits "path[:a-b[,c-d...]]" into the path and its line spans.
// Inclusive span syntax becomes exclusive-end intervals. A suffix that does
// not parse as spans is treated as part of the path.
func parseSpec(spec string) (string, []feature.Interval) {
	idx := strings.LastIndex(spec, ":")
	if idx <= 0 || idx == len(spec)-1 {
		return spec, nil
	}
	intervals := parseSpans(spec[idx+1:])
	if intervals == nil {
		return spec, nil
	}
	return spec[:idx], intervals
}

func parseSpans(s string) []feature.Interval {
	parts := strings.Split(s, ",")
	intervals := make([]feature.Interval, 0, len(parts))
	for _, part := range parts {
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			return nil
		}
		start, err := strconv.Atoi(lo)
		if err != nil || start < 1 {
			return nil
		}
		end, err := strconv.Atoi(hi)
		if err != nil || end < start {
			return nil
		}
		intervals = append(intervals, feature.Interval{Start: start, End: end + 1})
	}
	return intervals
}
