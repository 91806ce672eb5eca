package pipeline

import "codenerd-core/internal/types"

// DiffRatio is the relative difference in total diff-line count between
// two patches, used by the convergence check (§4.4 "Convergence"). A
// ratio of 0 means the patches touched exactly as many lines; 1 means
// one of them touched none.
func DiffRatio(a, b types.Patch) float64 {
	la, lb := a.TotalDiffLines(), b.TotalDiffLines()
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 0
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(max)
}

// HasConverged reports whether two consecutive patches' diff ratio falls
// below 1-threshold, i.e. their total diff-line counts differ by less
// than 1-threshold of the larger count (5% at the default threshold
// 0.95, §4.4 "Convergence",
// §8 scenario 5). The caller additionally requires the newer patch to
// have passed all tests before treating the pair as converged.
func HasConverged(prev, last types.Patch, threshold float64) bool {
	return DiffRatio(prev, last) < 1-threshold
}

func jaccard(a, b map[int]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// unionChangedLines merges the per-file changed-line sets of every patch
// in a window into one map, used to compare a window of patches as a
// single aggregate changed-line fingerprint.
func unionChangedLines(patches []types.Patch) map[string]map[int]struct{} {
	out := map[string]map[int]struct{}{}
	for _, p := range patches {
		for path, lines := range p.ChangedLineSet() {
			if out[path] == nil {
				out[path] = map[int]struct{}{}
			}
			for l := range lines {
				out[path][l] = struct{}{}
			}
		}
	}
	return out
}

// WindowSimilarity computes the Jaccard similarity, averaged per file,
// between the changed-line fingerprints of two windows of patches. Files
// present in only one window contribute zero similarity (§4.4
// "Oscillation": "non-matching file sets yield zero").
func WindowSimilarity(trailing, preceding []types.Patch) float64 {
	a := unionChangedLines(trailing)
	b := unionChangedLines(preceding)

	files := map[string]struct{}{}
	for f := range a {
		files[f] = struct{}{}
	}
	for f := range b {
		files[f] = struct{}{}
	}
	if len(files) == 0 {
		return 0
	}

	total := 0.0
	for f := range files {
		al, aok := a[f]
		bl, bok := b[f]
		if !aok || !bok {
			continue
		}
		total += jaccard(al, bl)
	}
	return total / float64(len(files))
}

// IsOscillating reports whether, over the last 2*windowSize patches, the
// trailing window's similarity to the preceding window meets or exceeds
// threshold (default window 3, threshold 0.85, §4.4 "Oscillation", §8
// scenario 4).
func IsOscillating(patches []types.Patch, windowSize int, threshold float64) bool {
	need := 2 * windowSize
	if len(patches) < need {
		return false
	}
	recent := patches[len(patches)-need:]
	preceding := recent[:windowSize]
	trailing := recent[windowSize:]
	return WindowSimilarity(trailing, preceding) >= threshold
}
