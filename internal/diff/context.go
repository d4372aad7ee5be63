package diff

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/feature"
)

// Context memoizes a provider's change set for the duration of one assembly
// pass. ClearCache must be called before a rebuild whenever the underlying
// VCS state may have moved; queries before the first Refresh see no diff.
type Context struct {
	mu          sync.Mutex
	provider    Provider
	annotations map[string][]Annotation
	loaded      bool
	degraded    error
	logger      *zap.Logger
}

// NewContext wraps a provider. A nil provider means diffing is off: every
// query reports no diff.
func NewContext(provider Provider, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		provider: provider,
		logger:   logger.Named("diffctx"),
	}
}

// BaselineLabel is the display name of the configured baseline, empty when
// diffing is off.
func (c *Context) BaselineLabel() string {
	if c.provider == nil {
		return ""
	}
	return c.provider.Baseline()
}

// Refresh computes the change set once per cache generation. An invalid
// baseline degrades to an empty change set rather than failing;
// cancellation is the only error returned.
func (c *Context) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}
	if c.provider == nil {
		c.annotations = map[string][]Annotation{}
		c.loaded = true
		return nil
	}

	changes, err := c.provider.Changes(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.logger.Warn("diff unavailable, continuing without annotations", zap.Error(err))
		c.annotations = map[string][]Annotation{}
		c.degraded = err
		c.loaded = true
		return nil
	}
	c.annotations = changes
	c.degraded = nil
	c.loaded = true
	return nil
}

// Degraded reports why the last Refresh fell back to an empty change set,
// nil when it did not.
func (c *Context) Degraded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// ClearCache forces the next Refresh to recompute against the live baseline.
func (c *Context) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.annotations = nil
	c.loaded = false
	c.degraded = nil
}

// HasDiff reports whether the path changed relative to the baseline.
func (c *Context) HasDiff(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.annotations[path]) > 0
}

// AnnotationsFor returns the changed intervals of a path in order.
func (c *Context) AnnotationsFor(path string) []feature.Interval {
	c.mu.Lock()
	defer c.mu.Unlock()
	anns := c.annotations[path]
	if len(anns) == 0 {
		return nil
	}
	intervals := make([]feature.Interval, len(anns))
	for i, a := range anns {
		intervals[i] = a.Interval
	}
	return intervals
}

// FileAnnotations returns the full annotations of a path, including the
// removed baseline lines the renderer splices in.
func (c *Context) FileAnnotations(path string) []Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.annotations[path]
}

// ChangedFiles lists annotated paths in lexicographic order.
func (c *Context) ChangedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var paths []string
	for path, anns := range c.annotations {
		if len(anns) > 0 {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}
