// Package diff annotates repository files with their changes against a VCS
// baseline. The engine reduces content pairs to line operations with the
// sergi/go-diff library and groups contiguous changes into annotations the
// renderer can splice into feature output.
package diff

import (
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/hesiod-au/mentat/internal/feature"
)

// Annotation is one contiguous changed region of a file. Interval covers the
// current file's lines holding new content; a zero-width interval marks a
// pure deletion point. Removed carries the baseline lines the region
// replaced, in order.
type Annotation struct {
	Interval feature.Interval
	Removed  []string
}

// Engine computes annotations with caching for identical content pairs.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine returns an engine tuned for code diffs.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // accuracy over speed
	return &Engine{dmp: dmp}
}

// Annotate computes the changed regions of newContent relative to
// oldContent. Identical contents yield no annotations. Results for a
// content pair are cached until ClearCache.
func (e *Engine) Annotate(oldContent, newContent string) []Annotation {
	if oldContent == newContent {
		return nil
	}

	key := cacheKey{oldHash: hash(oldContent), newHash: hash(newContent)}
	if cached, ok := e.cache.Load(key); ok {
		if anns, ok := cached.([]Annotation); ok {
			return anns
		}
	}

	// Line-level reduction avoids newline boundary artifacts when mapping
	// character diffs back to line operations.
	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	anns := groupAnnotations(diffsToOps(diffs))
	e.cache.Store(key, anns)
	return anns
}

// ClearCache drops all memoized annotation results.
func (e *Engine) ClearCache() {
	e.cache = sync.Map{}
}

type opKind int

const (
	opContext opKind = iota
	opAdded
	opRemoved
)

// lineOp is a single line operation. For removed lines, newLine records the
// position in the current file where the baseline text used to sit, which
// is where a deletion annotation anchors.
type lineOp struct {
	kind    opKind
	newLine int // 0-based position in the current file
	content string
}

func diffsToOps(diffs []diffmatchpatch.Diff) []lineOp {
	var ops []lineOp
	newLine := 0

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, lineOp{kind: opContext, newLine: newLine, content: line})
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, lineOp{kind: opRemoved, newLine: newLine, content: line})
			case diffmatchpatch.DiffInsert:
				ops = append(ops, lineOp{kind: opAdded, newLine: newLine, content: line})
				newLine++
			}
		}
	}
	return ops
}

// groupAnnotations merges runs of consecutive changed operations into
// annotations. Interleaved removals and insertions in one run become a
// single annotation so a replaced block renders as one region.
func groupAnnotations(ops []lineOp) []Annotation {
	var anns []Annotation

	for i := 0; i < len(ops); {
		if ops[i].kind == opContext {
			i++
			continue
		}

		var removed []string
		start, end := -1, -1
		j := i
		for j < len(ops) && ops[j].kind != opContext {
			switch ops[j].kind {
			case opRemoved:
				removed = append(removed, ops[j].content)
			case opAdded:
				if start == -1 {
					start = ops[j].newLine + 1
				}
				end = ops[j].newLine + 2
			}
			j++
		}
		if start == -1 {
			// Pure deletion: anchor a zero-width interval at the point
			// where the removed lines used to be.
			pos := ops[i].newLine + 1
			start, end = pos, pos
		}
		anns = append(anns, Annotation{
			Interval: feature.Interval{Start: start, End: end},
			Removed:  removed,
		})
		i = j
	}
	return anns
}

// hash is FNV-1a, sufficient for cache keying of content pairs.
func hash(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
