// Package context assembles bounded-size textual context for language model
// prompts. The Engine owns the session state (pinned files, diff target,
// assembly settings), orchestrates the catalog, ranker, selector and
// renderer, and caches the assembled message under a content checksum so
// unchanged repositories rebuild for free.
package context

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/broadcast"
	"github.com/hesiod-au/mentat/internal/catalog"
	"github.com/hesiod-au/mentat/internal/diff"
	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/rank"
	"github.com/hesiod-au/mentat/internal/selector"
	"github.com/hesiod-au/mentat/internal/symbols"
	"github.com/hesiod-au/mentat/internal/tokens"
)

// NoticeChannel is the bus channel user-visible notices are published on.
const NoticeChannel = "notices"

// Cataloger builds the repository's feature inventory.
type Cataloger interface {
	Build(ctx context.Context, root string, pinned, ignored map[string]bool,
		diffSrc catalog.DiffSource, structural bool, level feature.DetailLevel, maxBytes int64) ([]feature.Feature, error)
}

// MessageRenderer renders individual features and assembled messages.
type MessageRenderer interface {
	Feature(ctx context.Context, f feature.Feature) (string, error)
	Message(ctx context.Context, feats []feature.Feature, diffLabel string) (string, []string, error)
	Preamble(diffLabel string) string
}

// Settings are the assembly knobs that participate in the cache checksum.
type Settings struct {
	// StructuralSummaries enables code-map levels and interval splitting.
	// Flipped off for the session when no symbol mapper is usable.
	StructuralSummaries bool
	// AutoTokens caps the auto-selection pool. Negative means unbounded,
	// zero disables auto-selection.
	AutoTokens int
	// UseSimilarity turns on embedding-based ranking and search.
	UseSimilarity bool
	// UseLLMSelection records which selector variant was constructed.
	UseLLMSelection bool
	// DiffBaseline is the revision context is diffed against ("" = none).
	DiffBaseline string
	// MaxFileBytes excludes larger files from the catalog. Non-positive
	// means no limit.
	MaxFileBytes int64
}

// Options carries the engine's collaborators. Catalog, Renderer, Counter
// and Selector must be set before GetContextMessage or Search is called;
// pin resolution alone needs none of them. The rest default to inert
// stand-ins.
type Options struct {
	Root     string
	Settings Settings
	Catalog  Cataloger
	Diff     *diff.Context
	Renderer MessageRenderer
	Counter  tokens.Tokenizer
	Ranker   *rank.Ranker
	Selector selector.Selector
	Mapper   symbols.Mapper
	Bus      *broadcast.Bus
	Logger   *zap.Logger
}

// Engine is one context-assembly session rooted at a repository directory.
//
// All exported methods serialize on an internal mutex: a build in flight
// blocks pin-set and settings mutation, so the checksum always describes a
// consistent snapshot. The zero value is not usable; construct with New.
type Engine struct {
	mu sync.Mutex

	root      string
	sessionID string
	settings  Settings

	catalog  Cataloger
	diff     *diff.Context
	renderer MessageRenderer
	counter  tokens.Tokenizer
	ranker   *rank.Ranker
	sel      selector.Selector
	mapper   symbols.Mapper
	bus      *broadcast.Bus
	logger   *zap.Logger

	includes map[string][]feature.Feature
	ignored  map[string]bool
	features []feature.Feature
	cache    messageCache
}

// New returns an engine for the repository at opts.Root.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("engine")
	ranker := opts.Ranker
	if ranker == nil {
		ranker = rank.New(nil, logger)
	}
	mapper := opts.Mapper
	if mapper == nil {
		mapper = symbols.NullMapper{}
	}
	return &Engine{
		root:      opts.Root,
		sessionID: uuid.NewString(),
		settings:  opts.Settings,
		catalog:   opts.Catalog,
		diff:      opts.Diff,
		renderer:  opts.Renderer,
		counter:   opts.Counter,
		ranker:    ranker,
		sel:       opts.Selector,
		mapper:    mapper,
		bus:       opts.Bus,
		logger:    logger,
		includes:  make(map[string][]feature.Feature),
		ignored:   make(map[string]bool),
	}
}

// SessionID identifies this engine instance in notices and logs.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Root returns the repository directory the session is rooted at.
func (e *Engine) Root() string {
	return e.root
}

// Settings returns a copy of the current assembly settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// IncludedPaths lists the pinned paths in sorted order.
func (e *Engine) IncludedPaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.includedPathsLocked()
}

func (e *Engine) includedPathsLocked() []string {
	paths := make([]string, 0, len(e.includes))
	for path := range e.includes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Features returns the feature sequence of the last successful build.
func (e *Engine) Features() []feature.Feature {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]feature.Feature, len(e.features))
	copy(out, e.features)
	return out
}

// pinnedRefs returns the sorted refs of every pinned feature, the form the
// pin set takes inside the checksum.
func (e *Engine) pinnedRefs() []string {
	var refs []string
	for _, feats := range e.includes {
		for _, f := range feats {
			refs = append(refs, f.Ref())
		}
	}
	sort.Strings(refs)
	return refs
}

// Summary is a point-in-time description of the session for display.
type Summary struct {
	Root                string
	SessionID           string
	DiffLabel           string
	IncludedPaths       []string
	AutoTokens          int
	StructuralSummaries bool
	UseSimilarity       bool
	// AutoSelected counts the non-pinned features of the last build per
	// detail level.
	AutoSelected map[feature.DetailLevel]int
}

// Summary reports the session state after the most recent build.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[feature.DetailLevel]int)
	for _, f := range e.features {
		if !f.Pinned {
			counts[f.Level]++
		}
	}
	label := ""
	if e.diff != nil {
		label = e.diff.BaselineLabel()
	}
	return Summary{
		Root:                e.root,
		SessionID:           e.sessionID,
		DiffLabel:           label,
		IncludedPaths:       e.includedPathsLocked(),
		AutoTokens:          e.settings.AutoTokens,
		StructuralSummaries: e.settings.StructuralSummaries,
		UseSimilarity:       e.settings.UseSimilarity,
		AutoSelected:        counts,
	}
}

// notify publishes a user-visible notice and mirrors it to the log.
func (e *Engine) notify(text string) {
	e.logger.Warn(text)
	if e.bus != nil {
		e.bus.Publish(NoticeChannel, text)
	}
}
