// Package llmfile is a concrete capability.LLM that replays a
// pre-recorded, YAML-encoded patch queue instead of calling a live model
// provider. It exists for `nerd run`'s offline/debugging mode (§9 "hold
// by handle in the pipeline, inject at the session boundary" — this is
// one interchangeable implementation of that boundary, grounded in the
// teacher's internal/core.LLMClient minimal-interface pattern), letting
// an operator script a session's patches ahead of time and step the
// pipeline through them without a network dependency.
package llmfile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"codenerd-core/internal/capability"
	"codenerd-core/internal/types"
)

// HunkSpec is the YAML-decodable mirror of types.Hunk.
type HunkSpec struct {
	StartLine     int      `yaml:"start_line"`
	EndLine       int      `yaml:"end_line"`
	OriginalLines []string `yaml:"original_lines"`
	NewLines      []string `yaml:"new_lines"`
}

// FileChangeSpec is the YAML-decodable mirror of types.FileChange.
type FileChangeSpec struct {
	Path       string     `yaml:"path"`
	Kind       string     `yaml:"kind"` // "create" | "modify" | "delete"
	OldContent string     `yaml:"old_content"`
	NewContent string     `yaml:"new_content"`
	Hunks      []HunkSpec `yaml:"hunks"`
}

// PatchSpec is the YAML-decodable mirror of types.Patch.
type PatchSpec struct {
	ID    string           `yaml:"id"`
	Files []FileChangeSpec `yaml:"files"`
}

// Script is the top-level document: an ordered list of patches to replay,
// one per pipeline iteration.
type Script struct {
	Patches []PatchSpec `yaml:"patches"`
}

func kindOf(s string) (types.ChangeKind, error) {
	switch s {
	case "create":
		return types.Create, nil
	case "modify":
		return types.Modify, nil
	case "delete":
		return types.Delete, nil
	default:
		return 0, fmt.Errorf("llmfile: unknown change kind %q", s)
	}
}

func (p PatchSpec) toPatch(iteration int) (types.Patch, error) {
	files := make([]types.FileChange, 0, len(p.Files))
	for _, fs := range p.Files {
		kind, err := kindOf(fs.Kind)
		if err != nil {
			return types.Patch{}, err
		}
		hunks := make([]types.Hunk, 0, len(fs.Hunks))
		for _, hs := range fs.Hunks {
			h, err := types.NewHunk(hs.StartLine, hs.EndLine, hs.OriginalLines, hs.NewLines)
			if err != nil {
				return types.Patch{}, err
			}
			hunks = append(hunks, h)
		}
		fc, err := types.NewFileChange(fs.Path, kind, fs.OldContent, fs.NewContent, hunks)
		if err != nil {
			return types.Patch{}, err
		}
		files = append(files, fc)
	}
	return types.NewPatch(p.ID, iteration, files)
}

// Queue is a capability.LLM that hands out the next scripted patch on
// every GeneratePatch call; once exhausted it returns the last patch
// again, so a convergence check downstream of a short script still sees
// a stable (non-advancing) proposal rather than an error.
type Queue struct {
	mu      sync.Mutex
	patches []PatchSpec
	idx     int
}

// Load reads a YAML script from path.
func Load(path string) (*Queue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("llmfile: read %s: %w", path, err)
	}
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("llmfile: parse %s: %w", path, err)
	}
	if len(script.Patches) == 0 {
		return nil, fmt.Errorf("llmfile: %s contains no patches", path)
	}
	return &Queue{patches: script.Patches}, nil
}

// GeneratePatch ignores task/paths/content/feedback (there is no live
// model to steer) and returns the next scripted patch stamped with its
// position in the queue as its iteration number.
func (q *Queue) GeneratePatch(ctx context.Context, task string, paths []string, content map[string]string, feedback string) (types.Patch, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.idx
	if idx >= len(q.patches) {
		idx = len(q.patches) - 1
	} else {
		q.idx++
	}
	return q.patches[idx].toPatch(idx)
}

var _ capability.LLM = (*Queue)(nil)
