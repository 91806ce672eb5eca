package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"codenerd-core/internal/indexer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show workspace, config, and code-graph status",
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("codenerd-core status")
	fmt.Println("=====================")
	fmt.Printf("workspace: %s\n", workspace)
	fmt.Printf("config:    %s v%s\n", cfg.Name, cfg.Version)
	fmt.Printf("locks backend: %s (ttl %ds)\n", cfg.Locks.Backend, cfg.Locks.DefaultTTLSeconds)
	fmt.Printf("pipeline:  max_files_in_scope=%d convergence_threshold=%.2f oscillation_window=%d\n",
		cfg.Pipeline.MaxFilesInScope, cfg.Pipeline.ConvergenceThreshold, cfg.Pipeline.OscillationWindowSize)
	fmt.Printf("budget:    iterations=%d tokens=%d llm_calls=%d test_runs=%d wall_clock=%ds\n",
		cfg.Budget.MaxIterations, cfg.Budget.MaxTokens, cfg.Budget.MaxLLMCalls, cfg.Budget.MaxTestRuns, cfg.Budget.MaxTimeSeconds)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, paths, err := indexer.BuildClient(ctx, workspace, nil)
	if err != nil {
		return err
	}
	fmt.Printf("code graph: %d Go files indexed\n", len(paths))
	return nil
}
