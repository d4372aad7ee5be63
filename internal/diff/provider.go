package diff

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidBaseline marks a diff target git cannot resolve to a revision.
var ErrInvalidBaseline = errors.New("invalid diff baseline")

// Provider computes the full change set against a configured baseline.
type Provider interface {
	// Baseline is the display label for the configured target.
	Baseline() string
	// Changes maps repository-relative paths to their annotations. Paths
	// without changes are absent.
	Changes(ctx context.Context) (map[string][]Annotation, error)
}

// GitProvider diffs the work tree against a git revision by shelling out to
// git, the same way the repository enumerator does.
type GitProvider struct {
	root   string
	target string
	label  string
	engine *Engine
	logger *zap.Logger
}

// NewGitProvider returns a provider for the repository at root. An empty
// target defaults to HEAD.
func NewGitProvider(root, target string, logger *zap.Logger) *GitProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if target == "" {
		target = "HEAD"
	}
	label := target
	if target == "HEAD" {
		label = "HEAD (last commit)"
	}
	return &GitProvider{
		root:   root,
		target: target,
		label:  label,
		engine: NewEngine(),
		logger: logger.Named("diff"),
	}
}

func (p *GitProvider) Baseline() string { return p.label }

// Changes lists paths changed since the target plus untracked files, each
// annotated against its baseline content.
func (p *GitProvider) Changes(ctx context.Context) (map[string][]Annotation, error) {
	if err := p.verify(ctx); err != nil {
		return nil, err
	}

	paths := make(map[string]bool)
	changed, err := p.gitLines(ctx, "diff", "--name-only", p.target)
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}
	for _, rel := range changed {
		paths[rel] = true
	}
	untracked, err := p.gitLines(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files: %w", err)
	}
	for _, rel := range untracked {
		paths[rel] = true
	}

	changes := make(map[string][]Annotation)
	for rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
		if err != nil {
			// Deleted since the baseline; no feature will exist for it.
			continue
		}
		baseline := p.show(ctx, rel)
		anns := p.engine.Annotate(baseline, string(current))
		if len(anns) > 0 {
			changes[rel] = anns
		}
	}
	return changes, nil
}

func (p *GitProvider) verify(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", "--quiet", p.target)
	cmd.Dir = p.root
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %q", ErrInvalidBaseline, p.target)
	}
	return nil
}

// show returns the baseline content of a path, or empty for paths the
// baseline does not know (new files).
func (p *GitProvider) show(ctx context.Context, rel string) string {
	cmd := exec.CommandContext(ctx, "git", "show", p.target+":"+rel)
	cmd.Dir = p.root
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(output)
}

func (p *GitProvider) gitLines(ctx context.Context, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.root
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
