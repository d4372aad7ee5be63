package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hesiod-au/mentat/internal/diff"
	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/symbols"
)

type fakeMapper struct {
	mapFn func(ctx context.Context, path string, content []byte) ([]symbols.Symbol, error)
}

func (f fakeMapper) Map(ctx context.Context, path string, content []byte) ([]symbols.Symbol, error) {
	return f.mapFn(ctx, path, content)
}
func (fakeMapper) Supports(string) bool { return true }
func (fakeMapper) Available() bool      { return true }

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFeatureLevels(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "one\ntwo\nthree\n")
	r := New(root, nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		f    feature.Feature
		want string
	}{
		{
			name: "file name",
			f:    feature.New("a.go", feature.LevelFileName),
			want: "a.go\n",
		},
		{
			name: "code",
			f:    feature.New("a.go", feature.LevelCode),
			want: "a.go\n1:one\n2:two\n3:three\n",
		},
		{
			name: "interval",
			f:    feature.NewInterval("a.go", feature.Interval{Start: 2, End: 4}),
			want: "a.go\n2:two\n3:three\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Feature(ctx, tt.f)
			if err != nil {
				t.Fatal(err)
			}
			if d := cmp.Diff(tt.want, got); d != "" {
				t.Errorf("rendered feature mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func TestFeatureCMap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc Add(a, b int) int { return a + b }\n")
	mapper := fakeMapper{
		mapFn: func(_ context.Context, _ string, _ []byte) ([]symbols.Symbol, error) {
			return []symbols.Symbol{
				{Name: "Add", Kind: "function", Signature: "func Add(a, b int) int", StartLine: 3, EndLine: 3},
			}, nil
		},
	}
	r := New(root, mapper, nil, nil)

	got, err := r.Feature(context.Background(), feature.New("a.go", feature.LevelCMap))
	if err != nil {
		t.Fatal(err)
	}
	if want := "a.go\n  function Add\n"; got != want {
		t.Errorf("cmap = %q, want %q", got, want)
	}

	got, err = r.Feature(context.Background(), feature.New("a.go", feature.LevelCMapFull))
	if err != nil {
		t.Fatal(err)
	}
	if want := "a.go\n  func Add(a, b int) int\n"; got != want {
		t.Errorf("cmap_full = %q, want %q", got, want)
	}
}

func TestFeatureCMapDegradesToHeader(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	mapper := fakeMapper{
		mapFn: func(context.Context, string, []byte) ([]symbols.Symbol, error) {
			return nil, errors.New("parse failed")
		},
	}
	r := New(root, mapper, nil, nil)

	got, err := r.Feature(context.Background(), feature.New("a.go", feature.LevelCMap))
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.go\n" {
		t.Errorf("degraded cmap = %q, want header only", got)
	}
}

func TestMessageGroupsAndSortsPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "alpha\n")
	writeFile(t, root, "b.go", "beta\n")
	r := New(root, nil, nil, nil)

	msg, notices, err := r.Message(context.Background(), []feature.Feature{
		feature.New("b.go", feature.LevelCode),
		feature.New("a.go", feature.LevelCode),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v", notices)
	}

	want := "Code Files:\n\na.go\n1:alpha\n\nb.go\n1:beta\n"
	if d := cmp.Diff(want, msg); d != "" {
		t.Errorf("message mismatch (-want +got):\n%s", d)
	}
}

func TestMessageDiffLegend(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "alpha\n")
	r := New(root, nil, nil, nil)

	msg, _, err := r.Message(context.Background(), []feature.Feature{
		feature.New("a.go", feature.LevelCode),
	}, "HEAD (last commit)")
	if err != nil {
		t.Fatal(err)
	}

	want := "Diff References:\n" +
		" \"-\" = HEAD (last commit)\n" +
		" \"+\" = Active Changes\n" +
		"\n" +
		"Code Files:\n\na.go\n1:alpha\n"
	if d := cmp.Diff(want, msg); d != "" {
		t.Errorf("message mismatch (-want +got):\n%s", d)
	}

	if !strings.HasPrefix(msg, Preamble("HEAD (last commit)")) {
		t.Error("Preamble is not a prefix of the rendered message")
	}
}

func TestMessageIntervalGaps(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "l1\nl2\nl3\nl4\nl5\n")
	r := New(root, nil, nil, nil)

	// Non-adjacent intervals get an ellipsis row.
	msg, _, err := r.Message(context.Background(), []feature.Feature{
		feature.NewInterval("a.go", feature.Interval{Start: 1, End: 2}),
		feature.NewInterval("a.go", feature.Interval{Start: 4, End: 6}),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	want := "Code Files:\n\na.go\n1:l1\n...\n4:l4\n5:l5\n"
	if d := cmp.Diff(want, msg); d != "" {
		t.Errorf("gap message mismatch (-want +got):\n%s", d)
	}

	// Adjacent intervals flow together without a marker.
	msg, _, err = r.Message(context.Background(), []feature.Feature{
		feature.NewInterval("a.go", feature.Interval{Start: 3, End: 6}),
		feature.NewInterval("a.go", feature.Interval{Start: 1, End: 3}),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	want = "Code Files:\n\na.go\n1:l1\n2:l2\n3:l3\n4:l4\n5:l5\n"
	if d := cmp.Diff(want, msg); d != "" {
		t.Errorf("adjacent message mismatch (-want +got):\n%s", d)
	}
}

func TestMessageDiffRows(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "one\nchanged\nthree\n")
	anns := map[string][]diff.Annotation{
		"a.go": {{Interval: feature.Interval{Start: 2, End: 3}, Removed: []string{"two"}}},
	}
	r := New(root, nil, func(path string) []diff.Annotation { return anns[path] }, nil)

	msg, _, err := r.Message(context.Background(), []feature.Feature{
		feature.New("a.go", feature.LevelCode),
	}, "HEAD (last commit)")
	if err != nil {
		t.Fatal(err)
	}

	body := "a.go\n1:one\n-:two\n+2:changed\n3:three\n"
	if !strings.HasSuffix(msg, body) {
		t.Errorf("message = %q, want suffix %q", msg, body)
	}
}

func TestMessageDeletionAtEndOfFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "one\ntwo\n")
	anns := map[string][]diff.Annotation{
		"a.go": {{Interval: feature.Interval{Start: 3, End: 3}, Removed: []string{"gone"}}},
	}
	r := New(root, nil, func(path string) []diff.Annotation { return anns[path] }, nil)

	msg, _, err := r.Message(context.Background(), []feature.Feature{
		feature.New("a.go", feature.LevelCode),
	}, "")
	if err != nil {
		t.Fatal(err)
	}

	body := "a.go\n1:one\n2:two\n-:gone\n"
	if !strings.HasSuffix(msg, body) {
		t.Errorf("message = %q, want suffix %q", msg, body)
	}
}

func TestMessageSkipsUnreadablePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "alpha\n")
	r := New(root, nil, nil, nil)

	msg, notices, err := r.Message(context.Background(), []feature.Feature{
		feature.New("missing.go", feature.LevelCode),
		feature.New("a.go", feature.LevelCode),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(notices) != 1 || !strings.Contains(notices[0], "missing.go") {
		t.Errorf("notices = %v, want one mentioning missing.go", notices)
	}
	if !strings.Contains(msg, "1:alpha") {
		t.Errorf("readable path missing from message: %q", msg)
	}
	if strings.Contains(msg, "missing.go") {
		t.Errorf("unreadable path rendered: %q", msg)
	}
}

func TestMessageCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "alpha\n")
	r := New(root, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Message(ctx, []feature.Feature{feature.New("a.go", feature.LevelCode)}, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
