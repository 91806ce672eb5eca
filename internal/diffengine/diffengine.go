// Package diffengine computes unified-diff hunks between two file
// contents using the battle-tested sergi/go-diff library, following the
// teacher's internal/diff engine design (cached, hash-keyed diffs).
package diffengine

import (
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"codenerd-core/internal/types"
)

// Engine computes and caches line-level diffs.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

// New constructs a diff Engine tuned for code diffs (no timeout, so large
// files still diff deterministically rather than degrading to a coarse
// line-replace).
func New() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

type cacheKey struct{ oldContent, newContent string }

// Hunks computes the []types.Hunk transforming oldContent into newContent.
// Empty-file edge cases are normalized so StartLine is always >= 1, per
// §4.1's empty-file diff convention.
func (e *Engine) Hunks(oldContent, newContent string) []types.Hunk {
	key := cacheKey{oldContent, newContent}
	if cached, ok := e.cache.Load(key); ok {
		return cached.([]types.Hunk)
	}

	oldLines := splitLines(oldContent)

	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	hunks := diffsToHunks(diffs, oldLines)
	e.cache.Store(key, hunks)
	return hunks
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffsToHunks walks the line-granular diff ops and groups contiguous
// runs of Delete/Insert into hunks, tracking 1-indexed original line
// numbers.
func diffsToHunks(diffs []diffmatchpatch.Diff, oldLines []string) []types.Hunk {
	var hunks []types.Hunk
	origLine := 1 // 1-indexed position in the original file

	var curOriginal, curNew []string
	curStart := 0

	flush := func() {
		if len(curOriginal) == 0 && len(curNew) == 0 {
			return
		}
		start := curStart
		if start < 1 {
			start = 1
		}
		end := start
		if len(curOriginal) > 0 {
			end = start + len(curOriginal) - 1
		}
		h, err := types.NewHunk(start, end, curOriginal, curNew)
		if err == nil {
			hunks = append(hunks, h)
		}
		curOriginal, curNew = nil, nil
	}

	for _, d := range diffs {
		lines := splitLinesKeepEmpty(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			origLine += len(lines)
		case diffmatchpatch.DiffDelete:
			if len(curOriginal) == 0 && len(curNew) == 0 {
				curStart = origLine
			}
			curOriginal = append(curOriginal, lines...)
			origLine += len(lines)
		case diffmatchpatch.DiffInsert:
			if len(curOriginal) == 0 && len(curNew) == 0 {
				curStart = origLine
			}
			curNew = append(curNew, lines...)
		}
	}
	flush()
	return hunks
}

func splitLinesKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(s, "\n")
	return strings.Split(trimmed, "\n")
}

// ComputeFileChange builds a types.FileChange (Add/Modify/Delete as
// determined by presence of old/new content) with hunks filled in.
func (e *Engine) ComputeFileChange(path string, oldContent, newContent *string) (types.FileChange, error) {
	switch {
	case oldContent == nil:
		hunks := e.Hunks("", *newContent)
		return types.NewFileChange(path, types.Create, "", *newContent, hunks)
	case newContent == nil:
		hunks := e.Hunks(*oldContent, "")
		return types.NewFileChange(path, types.Delete, *oldContent, "", hunks)
	default:
		hunks := e.Hunks(*oldContent, *newContent)
		return types.NewFileChange(path, types.Modify, *oldContent, *newContent, hunks)
	}
}
