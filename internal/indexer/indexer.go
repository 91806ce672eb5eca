// Package indexer builds a capability.HCG instance from a workspace's
// on-disk Go sources, for the cmd/nerd boundary to hand the pipeline and
// retrieval layer a populated graph to query against. It reuses
// hcg.Client.IncrementalUpdate rather than duplicating fact extraction:
// the whole tree is indexed as one synthetic "everything is newly
// created" patch (§4.4 S6's update path applied once, in bulk).
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codenerd-core/internal/hcg"
	"codenerd-core/internal/types"
)

// defaultSkipDirs mirrors the forbidden-path spirit of
// config.PipelineConfig.ForbiddenPathPatterns for the subset relevant to
// indexing: directories whose Go files are never part of the graph an
// operator wants scoped or queried.
var defaultSkipDirs = map[string]struct{}{
	".git":         {},
	"vendor":       {},
	"node_modules": {},
	".nerd":        {},
}

// BuildClient walks root for .go files, parses each into defines/calls
// facts via hcg.Client.IncrementalUpdate, and returns the populated
// client along with the list of indexed paths.
func BuildClient(ctx context.Context, root string, archRules []hcg.ArchRule) (*hcg.Client, []string, error) {
	engine, err := hcg.NewEngine()
	if err != nil {
		return nil, nil, fmt.Errorf("indexer: new engine: %w", err)
	}
	client := hcg.NewClient(engine, archRules)

	files, paths, err := walkGoFiles(root)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return client, nil, nil
	}

	patch, err := types.NewPatch("index-"+root, 0, files)
	if err != nil {
		return nil, nil, fmt.Errorf("indexer: build patch: %w", err)
	}
	if _, err := client.IncrementalUpdate(ctx, patch); err != nil {
		return nil, nil, fmt.Errorf("indexer: incremental update: %w", err)
	}
	return client, paths, nil
}

// LoadChunks walks root for .go files the same way BuildClient does and
// returns each one as a retrieval chunk, so a caller can seed a
// retrieval.Vocabulary (§4.3 stage 2's "codebase vocabulary... learned
// from indexed chunks") without re-walking the tree itself.
func LoadChunks(root string) ([]types.RetrievalChunk, error) {
	files, paths, err := walkGoFiles(root)
	if err != nil {
		return nil, err
	}
	chunks := make([]types.RetrievalChunk, len(files))
	for i, f := range files {
		chunks[i] = types.RetrievalChunk{
			ChunkID:  paths[i],
			Content:  f.NewContent,
			FilePath: paths[i],
			Kind:     "file",
		}
	}
	return chunks, nil
}

// walkGoFiles is the shared tree-walk behind BuildClient and LoadChunks:
// every non-test .go file under root, outside defaultSkipDirs, read into
// a synthetic "Create" FileChange alongside its workspace-relative path.
func walkGoFiles(root string) ([]types.FileChange, []string, error) {
	var files []types.FileChange
	var paths []string
	walkErr := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, skip := defaultSkipDirs[info.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != ".go" || strings.HasSuffix(p, "_test.go") {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		data, rerr := os.ReadFile(p)
		if rerr != nil {
			return rerr
		}
		if len(data) == 0 {
			return nil
		}
		fc, ferr := types.NewFileChange(rel, types.Create, "", string(data), nil)
		if ferr != nil {
			return nil
		}
		files = append(files, fc)
		paths = append(paths, rel)
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("indexer: walk %s: %w", root, walkErr)
	}
	return files, paths, nil
}
