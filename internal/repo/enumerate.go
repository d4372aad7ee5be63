// Package repo enumerates the files a repository offers to the feature
// catalog. Inside a git work tree it defers to git's own ignore handling;
// anywhere else it falls back to a plain directory walk that skips dot
// directories.
package repo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileInfo is one enumerated repository file.
type FileInfo struct {
	Path string // repository-relative, slash-separated
	Size int64  // bytes on disk
}

// Enumerator lists candidate files under a root directory.
type Enumerator struct {
	logger *zap.Logger
}

// NewEnumerator returns an enumerator logging skip decisions at debug level.
func NewEnumerator(logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{logger: logger.Named("repo")}
}

// List returns every enumerable file under root. Within a git work tree the
// listing is tracked plus untracked-unignored files; otherwise a lexical
// walk excluding hidden directories.
func (e *Enumerator) List(ctx context.Context, root string) ([]FileInfo, error) {
	if isGitWorkTree(ctx, root) {
		files, err := e.listGit(ctx, root)
		if err == nil {
			return files, nil
		}
		e.logger.Debug("git listing failed, walking instead", zap.Error(err))
	}
	return e.listWalk(ctx, root)
}

func isGitWorkTree(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run() == nil
}

func (e *Enumerator) listGit(ctx context.Context, root string) ([]FileInfo, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files",
		"--cached", "--others", "--exclude-standard", "-z")
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}

	var files []FileInfo
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Split(splitNull)
	for scanner.Scan() {
		rel := scanner.Text()
		if rel == "" || seen[rel] {
			continue
		}
		seen[rel] = true

		// Tracked files may be deleted from the work tree; skip those.
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{Path: rel, Size: info.Size()})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parsing git ls-files output: %w", err)
	}
	return files, nil
}

func splitNull(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (e *Enumerator) listWalk(ctx context.Context, root string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			e.logger.Debug("walk error, skipping", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}
