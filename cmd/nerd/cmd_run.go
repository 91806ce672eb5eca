package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"codenerd-core/internal/indexer"
	"codenerd-core/internal/llmfile"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/pipeline"
	"codenerd-core/internal/sandboxexec"
	"codenerd-core/internal/types"
)

var scriptPath string

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "drive the patch pipeline to a terminal state for one task",
	Long: `run indexes the workspace into an in-process code graph, then
drives the 8-step patch pipeline (scope, safety, generate, lint/build/
type, semantic contract, graph update, spec validation, tests) to a
terminal loop state: converged, oscillating, budget-exceeded, or failed.

Patch proposals come from --script, a YAML-encoded queue of patches
replayed in order (see internal/llmfile); there is no live model call in
this CLI.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&scriptPath, "script", "", "YAML file of scripted patches to replay (required)")
	runCmd.MarkFlagRequired("script")
}

func runTask(cmd *cobra.Command, args []string) error {
	task := args[0]
	for _, a := range args[1:] {
		task += " " + a
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logging.Operator().Infow("indexing workspace", "workspace", workspace)
	hcgClient, paths, err := indexer.BuildClient(ctx, workspace, nil)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d Go files\n", len(paths))

	llm, err := llmfile.Load(scriptPath)
	if err != nil {
		return err
	}
	sandbox := sandboxexec.New(workspace, timeout)

	budget, err := types.NewBudget(
		cfg.Budget.MaxIterations,
		cfg.Budget.MaxTokens,
		time.Duration(cfg.Budget.MaxTimeSeconds)*time.Second,
		cfg.Budget.MaxLLMCalls,
		cfg.Budget.MaxTestRuns,
	)
	if err != nil {
		return fmt.Errorf("nerd run: %w", err)
	}

	loop := pipeline.NewLoop(llm, sandbox, hcgClient, cfg.Pipeline, workspace)
	state, err := loop.Run(ctx, "cli-"+task, task, budget)
	if err != nil {
		return fmt.Errorf("nerd run: %w", err)
	}

	fmt.Printf("task:       %s\n", task)
	fmt.Printf("status:     %s\n", state.Status)
	fmt.Printf("iterations: %d\n", state.Iteration)
	fmt.Printf("patches:    %d\n", len(state.Patches))
	if state.BestPatch != nil {
		fmt.Printf("best patch: %s (pass rate %.2f)\n", state.BestPatch.ID, state.ConvergenceScore)
	}
	if dims := state.Budget.ExceededDimensions(); len(dims) > 0 {
		fmt.Printf("exceeded:   %v\n", dims)
	}
	return nil
}
