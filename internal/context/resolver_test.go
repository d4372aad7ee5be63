package context

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hesiod-au/mentat/internal/diff"
	"github.com/hesiod-au/mentat/internal/feature"
)

func writeTree(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIncludeWholeFile(t *testing.T) {
	fx := newFixture(t)
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	added, invalid := fx.engine.Include("a.go")
	assertStrings(t, added, "a.go")
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}
	assertStrings(t, fx.engine.IncludedPaths(), "a.go")

	pins := fx.engine.includes["a.go"]
	if len(pins) != 1 || pins[0].Level != feature.LevelCode || !pins[0].Pinned {
		t.Errorf("pins = %v, want one pinned full-detail feature", pins)
	}
}

func TestIncludeWithSpans(t *testing.T) {
	fx := newFixture(t)
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	added, invalid := fx.engine.Include("a.go:3-10,20-25")
	assertStrings(t, added, "a.go")
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}

	pins := fx.engine.includes["a.go"]
	if len(pins) != 2 {
		t.Fatalf("pins = %v, want two interval features", pins)
	}
	want := []feature.Interval{{Start: 3, End: 11}, {Start: 20, End: 26}}
	for i, iv := range want {
		if pins[i].Level != feature.LevelInterval || pins[i].Interval != iv || !pins[i].Pinned {
			t.Errorf("pin %d = %+v, want pinned interval %v", i, pins[i], iv)
		}
	}
}

func TestIncludeOverlappingSpanRejected(t *testing.T) {
	fx := newFixture(t)
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	fx.engine.Include("a.go:3-10")
	added, invalid := fx.engine.Include("a.go:5-8")
	if len(added) != 0 || len(invalid) != 0 {
		t.Errorf("added = %v invalid = %v, want a silent no-op for an overlapping span", added, invalid)
	}
	if len(fx.engine.includes["a.go"]) != 1 {
		t.Errorf("pins = %v, want the original span only", fx.engine.includes["a.go"])
	}

	added, _ = fx.engine.Include("a.go:12-14")
	assertStrings(t, added, "a.go")
	if len(fx.engine.includes["a.go"]) != 2 {
		t.Errorf("pins = %v, want two disjoint spans", fx.engine.includes["a.go"])
	}
}

func TestIncludeSpanAfterWholeFileRejected(t *testing.T) {
	fx := newFixture(t)
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	fx.engine.Include("a.go")
	added, _ := fx.engine.Include("a.go:3-5")
	if len(added) != 0 {
		t.Errorf("added = %v, want none: the whole file is already pinned", added)
	}
	pins := fx.engine.includes["a.go"]
	if len(pins) != 1 || pins[0].Level != feature.LevelCode {
		t.Errorf("pins = %v, want the whole-file pin untouched", pins)
	}
}

func TestIncludeGlob(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "x/b.go", "package x\n")
	writeTree(t, root, "x/a.go", "package x\n")
	writeTree(t, root, "y/c.go", "package y\n")

	added, invalid := fx.engine.Include("x/*.go")
	assertStrings(t, added, "x/a.go", "x/b.go")
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}
}

func TestIncludeDirectoryRecursive(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "x/a.go", "package x\n")
	writeTree(t, root, "x/sub/b.go", "package sub\n")
	writeTree(t, root, "x/blob.bin", "\x00\x01\x02")

	added, _ := fx.engine.Include("x")
	assertStrings(t, added, "x/a.go", "x/sub/b.go")
}

func TestIncludeMissingPath(t *testing.T) {
	fx := newFixture(t)

	added, invalid := fx.engine.Include("nope.go")
	if len(added) != 0 {
		t.Errorf("added = %v, want none", added)
	}
	assertStrings(t, invalid, "nope.go")
}

func TestIncludeMalformedSpansTreatedAsPath(t *testing.T) {
	fx := newFixture(t)
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	for _, spec := range []string{"a.go:zzz", "a.go:10-3", "a.go:0-5"} {
		added, invalid := fx.engine.Include(spec)
		if len(added) != 0 {
			t.Errorf("Include(%q) added %v, want none", spec, added)
		}
		assertStrings(t, invalid, spec)
	}
}

func TestIncludePathOutsideRoot(t *testing.T) {
	fx := newFixture(t)
	outside := filepath.Join(t.TempDir(), "secret.go")
	if err := os.WriteFile(outside, []byte("package secret\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	added, invalid := fx.engine.Include(outside)
	if len(added) != 0 {
		t.Errorf("added = %v, want none for a path outside the root", added)
	}
	assertStrings(t, invalid, outside)
}

func TestExcludeRemovesPin(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "a.go", "package a\n")
	writeTree(t, root, "b.go", "package b\n")
	fx.engine.Include("a.go")
	fx.engine.Include("b.go")

	removed, invalid := fx.engine.Exclude("a.go")
	assertStrings(t, removed, "a.go")
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}
	assertStrings(t, fx.engine.IncludedPaths(), "b.go")
}

func TestExcludeGlob(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "x/a.go", "package x\n")
	writeTree(t, root, "x/b.go", "package x\n")
	fx.engine.Include("x")

	removed, _ := fx.engine.Exclude("x/*.go")
	assertStrings(t, removed, "x/a.go", "x/b.go")
	if got := fx.engine.IncludedPaths(); len(got) != 0 {
		t.Errorf("included = %v, want none", got)
	}
}

func TestExcludeUnmatchedSpec(t *testing.T) {
	fx := newFixture(t)

	removed, invalid := fx.engine.Exclude("nope.go")
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
	assertStrings(t, invalid, "nope.go")
}

func TestExcludeUnpinnedPathIsNoop(t *testing.T) {
	fx := newFixture(t)
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	removed, invalid := fx.engine.Exclude("a.go")
	if len(removed) != 0 || len(invalid) != 0 {
		t.Errorf("removed = %v invalid = %v, want a silent no-op", removed, invalid)
	}
}

func TestPinnedSpecsRoundTrip(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "a.go", "package a\n")
	writeTree(t, root, "b.go", "package b\n")
	fx.engine.Include("b.go:20-25")
	fx.engine.Include("b.go:3-10")
	fx.engine.Include("a.go")

	specs := fx.engine.PinnedSpecs()
	assertStrings(t, specs, "a.go", "b.go:3-10,20-25")

	// Re-seeding from the rendered specs reproduces the same pin set.
	invalid := fx.engine.SetPaths(context.Background(), specs, nil, nil)
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}
	assertStrings(t, fx.engine.PinnedSpecs(), "a.go", "b.go:3-10,20-25")
}

func TestSetPathsReplacesPins(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "a.go", "package a\n")
	writeTree(t, root, "b.go", "package b\n")
	fx.engine.Include("a.go")

	invalid := fx.engine.SetPaths(context.Background(), []string{"b.go"}, nil, nil)
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}
	assertStrings(t, fx.engine.IncludedPaths(), "b.go")
}

func TestSetPathsExcludeTrimsIncludes(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "x/a.go", "package x\n")
	writeTree(t, root, "x/b.go", "package x\n")

	invalid := fx.engine.SetPaths(context.Background(), []string{"x"}, []string{"x/b.go"}, nil)
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}
	assertStrings(t, fx.engine.IncludedPaths(), "x/a.go")
}

func TestSetPathsIgnoreDropsCandidates(t *testing.T) {
	fx := newFixture(t)
	root := fx.engine.Root()
	writeTree(t, root, "a.go", "package a\n")
	writeTree(t, root, "b.go", "package b\n")
	fx.catalog.features = codeFeatures("a.go", "b.go")
	fx.renderer.costs = map[string]int{"a.go@code": 5, "b.go@code": 5}

	invalid := fx.engine.SetPaths(context.Background(), nil, nil, []string{"b.go", "nope.go"})
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none: ignore specs fail silently", invalid)
	}

	if _, err := fx.engine.GetContextMessage(context.Background(), "", "gpt-4", 100, nil); err != nil {
		t.Fatal(err)
	}
	assertFeatureRefs(t, fx.engine.Features(), "a.go@code")
}

func TestSetPathsDefaultsToChangedFiles(t *testing.T) {
	changes := map[string][]diff.Annotation{
		"a.go": {{Interval: feature.Interval{Start: 1, End: 4}}},
	}
	dctx := diff.NewContext(&fakeDiffProvider{baseline: "branch main", changes: changes}, nil)
	fx := newFixture(t, func(o *Options) {
		o.Diff = dctx
		o.Settings.DiffBaseline = "main"
	})
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	invalid := fx.engine.SetPaths(context.Background(), nil, nil, nil)
	if len(invalid) != 0 {
		t.Errorf("invalid = %v, want none", invalid)
	}
	assertStrings(t, fx.engine.IncludedPaths(), "a.go")
}

func TestSetPathsReportsInvalidSpecs(t *testing.T) {
	fx := newFixture(t)
	writeTree(t, fx.engine.Root(), "a.go", "package a\n")

	invalid := fx.engine.SetPaths(context.Background(),
		[]string{"a.go", "missing.go"}, []string{"alsogone.go"}, nil)
	assertStrings(t, invalid, "missing.go", "alsogone.go")
	assertStrings(t, fx.engine.IncludedPaths(), "a.go")
}

func TestParseSpec(t *testing.T) {
	cases := []struct {
		spec      string
		path      string
		intervals []feature.Interval
	}{
		{"a.go", "a.go", nil},
		{"a.go:3-10", "a.go", []feature.Interval{{Start: 3, End: 11}}},
		{"a.go:3-10,20-25", "a.go", []feature.Interval{{Start: 3, End: 11}, {Start: 20, End: 26}}},
		{"a.go:7-7", "a.go", []feature.Interval{{Start: 7, End: 8}}},
		{"a.go:zzz", "a.go:zzz", nil},
		{"a.go:10-3", "a.go:10-3", nil},
		{"a.go:0-5", "a.go:0-5", nil},
		{"a.go:", "a.go:", nil},
		{":3-5", ":3-5", nil},
	}
	for _, tc := range cases {
		path, intervals := parseSpec(tc.spec)
		if path != tc.path {
			t.Errorf("parseSpec(%q) path = %q, want %q", tc.spec, path, tc.path)
		}
		if len(intervals) != len(tc.intervals) {
			t.Errorf("parseSpec(%q) intervals = %v, want %v", tc.spec, intervals, tc.intervals)
			continue
		}
		for i := range tc.intervals {
			if intervals[i] != tc.intervals[i] {
				t.Errorf("parseSpec(%q) intervals = %v, want %v", tc.spec, intervals, tc.intervals)
			}
		}
	}
}
