package context

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hesiod-au/mentat/internal/feature"
)

func TestAutoPool(t *testing.T) {
	tests := []struct {
		name                    string
		total, preamble, pinned int
		limit                   int
		want                    int
	}{
		{"unbounded", 200, 10, 40, -1, 150},
		{"clamped", 200, 10, 40, 100, 100},
		{"limit above remaining", 200, 10, 40, 500, 150},
		{"pinned exhausts budget", 100, 10, 100, -1, 0},
		{"pinned overruns budget", 50, 10, 200, -1, 0},
		{"auto disabled", 200, 10, 40, 0, 0},
		{"preamble alone overruns", 50, 60, 0, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := autoPool(tt.total, tt.preamble, tt.pinned, tt.limit); got != tt.want {
				t.Errorf("autoPool(%d, %d, %d, %d) = %d, want %d",
					tt.total, tt.preamble, tt.pinned, tt.limit, got, tt.want)
			}
		})
	}
}

func TestMessageCacheHitSkipsBuild(t *testing.T) {
	var cache messageCache
	builds := 0
	build := func(context.Context) (string, string, error) {
		builds++
		return "message", "sum1", nil
	}

	got, err := cache.GetOrBuild(context.Background(), "sum1", build)
	if err != nil || got != "message" {
		t.Fatalf("GetOrBuild = %q, %v", got, err)
	}
	got, err = cache.GetOrBuild(context.Background(), "sum1", build)
	if err != nil || got != "message" {
		t.Fatalf("GetOrBuild = %q, %v", got, err)
	}
	if builds != 1 {
		t.Errorf("builds = %d, want 1", builds)
	}
}

func TestMessageCacheStoresUnderFreshChecksum(t *testing.T) {
	var cache messageCache
	_, err := cache.GetOrBuild(context.Background(), "pre", func(context.Context) (string, string, error) {
		return "message", "post", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	// The slot now holds the post-build checksum, not the probe value.
	builds := 0
	got, err := cache.GetOrBuild(context.Background(), "post", func(context.Context) (string, string, error) {
		builds++
		return "other", "other", nil
	})
	if err != nil || got != "message" || builds != 0 {
		t.Fatalf("GetOrBuild = %q, builds = %d, want cached message and 0 builds", got, builds)
	}
}

func TestMessageCacheBuildErrorLeavesSlot(t *testing.T) {
	var cache messageCache
	if _, err := cache.GetOrBuild(context.Background(), "a", func(context.Context) (string, string, error) {
		return "kept", "a", nil
	}); err != nil {
		t.Fatal(err)
	}

	_, err := cache.GetOrBuild(context.Background(), "b", func(context.Context) (string, string, error) {
		return "", "", errors.New("interrupted")
	})
	if err == nil {
		t.Fatal("expected build error")
	}

	got, err := cache.GetOrBuild(context.Background(), "a", func(context.Context) (string, string, error) {
		t.Error("builder invoked for intact slot")
		return "", "", nil
	})
	if err != nil || got != "kept" {
		t.Fatalf("GetOrBuild = %q, %v, want intact cached message", got, err)
	}
}

func TestContentDigestEmptyFeatures(t *testing.T) {
	got, err := contentDigest(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("contentDigest = %q, want empty", got)
	}
}

func TestContentDigestTracksFileContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	if err := os.WriteFile(path, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	feats := []feature.Feature{feature.New("a.go", feature.LevelCode)}

	first, err := contentDigest(context.Background(), root, feats)
	if err != nil {
		t.Fatal(err)
	}
	second, err := contentDigest(context.Background(), root, feats)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("digest changed without a content change")
	}

	if err := os.WriteFile(path, []byte("package a2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err := contentDigest(context.Background(), root, feats)
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Error("digest unchanged after content change")
	}
}

func TestContentDigestIgnoresIntervalShape(t *testing.T) {
	// Two intervals of one path digest the same bytes once; splitting a
	// feature differently must not look like a content change.
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	whole := []feature.Feature{feature.New("a.go", feature.LevelCode)}
	split := []feature.Feature{
		feature.NewInterval("a.go", feature.Interval{Start: 1, End: 2}),
		feature.NewInterval("a.go", feature.Interval{Start: 2, End: 3}),
	}

	a, err := contentDigest(context.Background(), root, whole)
	if err != nil {
		t.Fatal(err)
	}
	b, err := contentDigest(context.Background(), root, split)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("digest depends on interval shape, want path content only")
	}
}

func TestContentDigestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := contentDigest(ctx, t.TempDir(), []feature.Feature{feature.New("a.go", feature.LevelCode)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
