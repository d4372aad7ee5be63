package context

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hesiod-au/mentat/internal/feature"
)

// digestWorkers bounds concurrent file reads while digesting.
const digestWorkers = 8

// assemblySettings is the canonical form of every configuration input that
// participates in the cache checksum. The struct fixes field order, so the
// JSON serialization is stable across runs. The query deliberately does not
// appear: a new prompt against unchanged files and settings reuses the
// cached message.
type assemblySettings struct {
	StructuralSummaries bool     `json:"structural_summaries"`
	AutoTokens          int      `json:"auto_tokens"`
	UseSimilarity       bool     `json:"use_similarity"`
	UseLLMSelection     bool     `json:"use_llm_selection"`
	DiffBaseline        string   `json:"diff_baseline"`
	MaxTokens           int      `json:"max_tokens"`
	Model               string   `json:"model"`
	Pinned              []string `json:"pinned"`
}

// checksumFor digests the current content of every path in feats plus the
// assembly settings. Equal checksums guarantee an equal assembled message.
func (e *Engine) checksumFor(ctx context.Context, feats []feature.Feature, model string, maxTokens int) (string, error) {
	content, err := contentDigest(ctx, e.root, feats)
	if err != nil {
		return "", err
	}
	settings := assemblySettings{
		StructuralSummaries: e.settings.StructuralSummaries,
		AutoTokens:          e.settings.AutoTokens,
		UseSimilarity:       e.settings.UseSimilarity,
		UseLLMSelection:     e.settings.UseLLMSelection,
		DiffBaseline:        e.settings.DiffBaseline,
		MaxTokens:           maxTokens,
		Model:               model,
		Pinned:              e.pinnedRefs(),
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("serializing assembly settings: %w", err)
	}
	return content + sha256Hex(raw), nil
}

// contentDigest hashes the per-file digests of the distinct paths in feats,
// in sorted path order. No features digest to the empty string.
func contentDigest(ctx context.Context, root string, feats []feature.Feature) (string, error) {
	if len(feats) == 0 {
		return "", nil
	}
	paths := feature.Paths(feats)
	sort.Strings(paths)

	digests := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(digestWorkers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			digests[i] = fileDigest(filepath.Join(root, filepath.FromSlash(path)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return sha256Hex([]byte(strings.Join(digests, ""))), nil
}

// fileDigest returns the hex digest of a file's bytes. Unreadable files
// digest to the empty string, so a vanished file still changes the checksum
// rather than failing it.
func fileDigest(abs string) string {
	content, err := os.ReadFile(abs)
	if err != nil {
		return ""
	}
	return sha256Hex(content)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
