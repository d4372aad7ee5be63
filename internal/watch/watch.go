// Package watch turns filesystem events under the repository root into
// change notices on the broadcast bus. The assembly cache decides for
// itself whether a rebuild is needed; the watcher only signals that one
// is worth attempting.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fsnotify/fsnotify"

	"github.com/hesiod-au/mentat/internal/broadcast"
)

// Channel is the bus channel change notices are published on.
const Channel = "changes"

// Change describes one settled filesystem change, with the path relative
// to the watched root.
type Change struct {
	Path string
	Op   string // "modified" or "removed"
}

// Watcher monitors a repository tree. Events are debounced per path so a
// burst of writes to one file produces a single change notice.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	root        string
	bus         *broadcast.Bus
	logger      *zap.Logger
	debounce    map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New creates a watcher for the tree rooted at root. Nothing is watched
// until Start is called.
func New(root string, bus *broadcast.Bus, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:     fsw,
		root:        root,
		bus:         bus,
		logger:      logger.Named("watch"),
		debounce:    make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs until Stop or
// context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.addTree(w.root)
	w.logger.Debug("watching", zap.String("root", w.root))

	go w.run(ctx)

	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			w.processSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if w.hidden(name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		// A new directory must be watched itself; it may already hold
		// files written before the watch was in place.
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			w.addTree(name)
			return
		}
	case event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0:
	default:
		return
	}

	w.mu.Lock()
	w.debounce[name] = time.Now()
	w.mu.Unlock()
}

// processSettled publishes changes whose events stopped arriving at least
// a debounce window ago.
func (w *Watcher) processSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounce {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounce, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			continue
		}
		change := Change{Path: filepath.ToSlash(rel), Op: "modified"}
		if _, err := os.Stat(path); err != nil {
			change.Op = "removed"
		}
		w.logger.Debug("file changed", zap.String("path", change.Path), zap.String("op", change.Op))
		w.bus.Publish(Channel, change)
	}
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && w.hidden(path) {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("watch add failed", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}

// hidden reports whether path lies outside the root or under a dot
// directory such as .git.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
