package diffengine

import (
	"fmt"
	"strings"

	"codenerd-core/internal/types"
)

// ToUnifiedDiff renders a patch as a Git-compatible unified diff: a
// `diff --git` header per file, `/dev/null` sides for creations and
// deletions, and `@@` hunk ranges in the standard old/new line
// coordinates. The output applies cleanly with `git apply` or POSIX
// patch for any Modify change with non-binary content (§8's round-trip
// law); it is the only on-disk patch format the core persists.
func ToUnifiedDiff(p types.Patch) string {
	var b strings.Builder
	for _, fc := range p.Files {
		writeFileDiff(&b, fc)
	}
	return b.String()
}

func writeFileDiff(b *strings.Builder, fc types.FileChange) {
	fmt.Fprintf(b, "diff --git a/%s b/%s\n", fc.Path, fc.Path)
	switch fc.Kind {
	case types.Create:
		fmt.Fprintf(b, "new file mode 100644\n--- /dev/null\n+++ b/%s\n", fc.Path)
	case types.Delete:
		fmt.Fprintf(b, "deleted file mode 100644\n--- a/%s\n+++ /dev/null\n", fc.Path)
	default:
		fmt.Fprintf(b, "--- a/%s\n+++ b/%s\n", fc.Path, fc.Path)
	}

	// The new-side start of each hunk is the old-side start shifted by the
	// net line delta of every preceding hunk.
	delta := 0
	for _, h := range fc.Hunks {
		oldCount := len(h.OriginalLines)
		newCount := len(h.NewLines)

		oldStart := h.StartLine
		if oldCount == 0 {
			// Pure insertion: unified diffs anchor a zero-length old range
			// on the line the insertion follows.
			oldStart = h.StartLine - 1
		}
		newStart := oldStart + delta
		if newCount > 0 && oldCount == 0 {
			newStart = oldStart + delta + 1
		}
		if newCount == 0 {
			// Pure deletion anchors the zero-length new range likewise.
			newStart = oldStart + delta - 1
			if newStart < 0 {
				newStart = 0
			}
		}

		fmt.Fprintf(b, "@@ -%s +%s @@\n", hunkRange(oldStart, oldCount), hunkRange(newStart, newCount))
		for _, l := range h.OriginalLines {
			b.WriteString("-" + l + "\n")
		}
		for _, l := range h.NewLines {
			b.WriteString("+" + l + "\n")
		}
		delta += newCount - oldCount
	}
}

func hunkRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}
