package locks

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MergeStrategy records how a conflict was resolved.
type MergeStrategy int

const (
	StrategyAuto MergeStrategy = iota
	StrategyManualRequired
	StrategyAcceptOurs
	StrategyAcceptTheirs
	StrategyManual
)

// UnresolvedRegion describes one remaining conflict marker block.
type UnresolvedRegion struct {
	StartLine int
	EndLine   int
}

// MergeResult is the outcome of a merge attempt.
type MergeResult struct {
	Strategy  MergeStrategy
	Content   string
	Unresolved []UnresolvedRegion
}

const (
	markerOurs   = "<<<<<<< ours"
	markerBase   = "||||||| base"
	markerTheirs = "======="
	markerEnd    = ">>>>>>> theirs"
)

// ThreeWayMerge runs a classic diff3-style merge of ours/theirs against
// base. If no conflict markers are needed the result is Success(merged)
// with StrategyAuto; otherwise ManualRequired carries the merged content
// (with markers) plus the unresolved line ranges.
func ThreeWayMerge(base, ours, theirs string) MergeResult {
	baseLines := splitLines(base)
	ourLines := splitLines(ours)
	theirLines := splitLines(theirs)

	ourOps := lineDiffOps(baseLines, ourLines)
	theirOps := lineDiffOps(baseLines, theirLines)

	merged, unresolved := mergeOps(baseLines, ourOps, theirOps)
	content := strings.Join(merged, "\n")
	if len(unresolved) == 0 {
		return MergeResult{Strategy: StrategyAuto, Content: content}
	}
	return MergeResult{Strategy: StrategyManualRequired, Content: content, Unresolved: unresolved}
}

// AcceptOurs resolves a conflict by taking "ours" verbatim, with no merge.
func AcceptOurs(ours string) MergeResult {
	return MergeResult{Strategy: StrategyAcceptOurs, Content: ours}
}

// AcceptTheirs resolves a conflict by taking "theirs" verbatim.
func AcceptTheirs(theirs string) MergeResult {
	return MergeResult{Strategy: StrategyAcceptTheirs, Content: theirs}
}

// Manual accepts a user-provided resolution, only if it contains no
// remaining merge markers.
func Manual(content string) (MergeResult, error) {
	if strings.Contains(content, markerOurs) || strings.Contains(content, markerTheirs) || strings.Contains(content, markerEnd) {
		return MergeResult{}, fmt.Errorf("locks: manual resolution still contains merge markers")
	}
	return MergeResult{Strategy: StrategyManual, Content: content}, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// lineOp is a single base-relative change: a replacement of
// base[Start:End) with New (an empty range is a pure insertion).
type lineOp struct {
	start, end int // base line range replaced (end exclusive)
	new        []string
}

// lineDiffOps computes the base->side edit script at line granularity
// using sergi/go-diff's line-mode diff, the same engine the TOFS diff
// layer uses for file-level hunks.
func lineDiffOps(base, side []string) []lineOp {
	dmp := diffmatchpatch.New()
	baseText := strings.Join(base, "\n")
	sideText := strings.Join(side, "\n")
	a, b, arr := dmp.DiffLinesToChars(baseText, sideText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, arr)

	var ops []lineOp
	baseIdx := 0
	var pendingDelete, pendingInsert []string
	pendingStart := 0

	flush := func() {
		if len(pendingDelete) == 0 && len(pendingInsert) == 0 {
			return
		}
		ops = append(ops, lineOp{start: pendingStart, end: pendingStart + len(pendingDelete), new: pendingInsert})
		pendingDelete, pendingInsert = nil, nil
	}

	for _, d := range diffs {
		lines := splitLinesKeepEmpty(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			baseIdx += len(lines)
		case diffmatchpatch.DiffDelete:
			if len(pendingDelete) == 0 && len(pendingInsert) == 0 {
				pendingStart = baseIdx
			}
			pendingDelete = append(pendingDelete, lines...)
			baseIdx += len(lines)
		case diffmatchpatch.DiffInsert:
			if len(pendingDelete) == 0 && len(pendingInsert) == 0 {
				pendingStart = baseIdx
			}
			pendingInsert = append(pendingInsert, lines...)
		}
	}
	flush()
	return ops
}

func splitLinesKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// mergeOps walks base line-by-line, applying ourOps and theirOps. A base
// range touched by only one side is applied cleanly; a base range touched
// by both sides with differing replacements becomes a conflict block.
func mergeOps(base []string, ourOps, theirOps []lineOp) ([]string, []UnresolvedRegion) {
	type span struct {
		op   *lineOp
		side int // 0 = ours, 1 = theirs
	}
	byStart := map[int][]span{}
	for i := range ourOps {
		byStart[ourOps[i].start] = append(byStart[ourOps[i].start], span{&ourOps[i], 0})
	}
	for i := range theirOps {
		byStart[theirOps[i].start] = append(byStart[theirOps[i].start], span{&theirOps[i], 1})
	}

	maxEnd := len(base)
	for _, ops := range [][]lineOp{ourOps, theirOps} {
		for _, o := range ops {
			if o.end > maxEnd {
				maxEnd = o.end
			}
		}
	}

	var out []string
	var unresolved []UnresolvedRegion
	pos := 0
	for pos <= maxEnd {
		spans := byStart[pos]
		if len(spans) == 0 {
			if pos < len(base) {
				out = append(out, base[pos])
			}
			pos++
			continue
		}
		delete(byStart, pos)

		var ourSpan, theirSpan *lineOp
		for _, s := range spans {
			if s.side == 0 {
				ourSpan = s.op
			} else {
				theirSpan = s.op
			}
		}

		// advance jumps pos past any base lines the span consumed. A
		// zero-width insertion span (start == end) consumes nothing, so
		// pos is left as-is: the entry was already removed from
		// byStart above, and the next iteration falls through to the
		// plain unchanged-line path for base[pos].
		advance := func(end int) {
			if end > pos {
				pos = end
			}
		}

		switch {
		case ourSpan != nil && theirSpan == nil:
			out = append(out, ourSpan.new...)
			advance(ourSpan.end)
		case theirSpan != nil && ourSpan == nil:
			out = append(out, theirSpan.new...)
			advance(theirSpan.end)
		default:
			if equalLines(ourSpan.new, theirSpan.new) {
				out = append(out, ourSpan.new...)
			} else {
				startLine := len(out) + 1
				out = append(out, markerOurs)
				out = append(out, ourSpan.new...)
				out = append(out, markerTheirs)
				out = append(out, theirSpan.new...)
				out = append(out, markerEnd)
				unresolved = append(unresolved, UnresolvedRegion{StartLine: startLine, EndLine: len(out)})
			}
			advance(max(ourSpan.end, theirSpan.end))
		}
	}
	return out, unresolved
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
