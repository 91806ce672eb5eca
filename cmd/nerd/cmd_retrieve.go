package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"codenerd-core/internal/indexer"
	"codenerd-core/internal/retrieval"
)

var retrieveIntent string

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "run the hybrid retrieval pipeline against the workspace code graph",
	Long: `retrieve indexes the workspace into an in-process code graph and runs
the seven-stage retrieval pipeline (query analysis, expansion, parallel
symbol/graph search, weighted RRF fusion, lightweight rerank, dependency
ordering, cross-encoder rerank) over it, printing the final ranked chunks.

Only the symbol and graph strategies are wired in this CLI; vector and
lexical search need an embedding index and an in-memory corpus that this
command has no local source for, so VectorSearcher/LexicalSearcher are
left unconfigured here (RunStrategies tolerates a nil-backed strategy,
returning no chunks for that lane rather than erroring).

Stage 2's query expansion runs over a vocabulary learned from the
indexed files (function/type/variable names and their co-occurrence),
but stage 2's embedding similarity and stage 5's late-interaction rerank
both need a live retrieval.EmbeddingModel, which this offline CLI has no
adapter for; both are left nil, so expansion falls back to passing the
query through unchanged and stage 5 falls back to its term-density
heuristic (the same documented nil-collaborator pattern already used
for crossEncoder/edgesFn).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringVar(&retrieveIntent, "intent", "general", "query intent: general, definitional, or flow-tracing")
}

func intentOf(s string) retrieval.Intent {
	switch s {
	case "definitional":
		return retrieval.IntentDefinitional
	case "flow-tracing":
		return retrieval.IntentFlowTracing
	default:
		return retrieval.IntentGeneral
	}
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	query := args[0]
	for _, a := range args[1:] {
		query += " " + a
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	hcgClient, paths, err := indexer.BuildClient(ctx, workspace, nil)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d Go files\n", len(paths))

	vocab := retrieval.NewVocabulary()
	if chunks, cerr := indexer.LoadChunks(workspace); cerr == nil {
		vocab.LearnFromChunks(chunks)
	}
	expander := retrieval.NewQueryExpander(vocab, nil, nil)

	symbolSearcher := &retrieval.SymbolSearcher{HCG: hcgClient}
	graphSearcher := &retrieval.GraphSearcher{
		HCG: hcgClient,
		Seeds: func() []string {
			return nil
		},
	}

	pipe := retrieval.NewPipeline(cfg.Retrieval, []retrieval.Strategy{symbolSearcher, graphSearcher}, nil, expander, nil, nil, nil)
	result, err := pipe.Retrieve(ctx, query, intentOf(retrieveIntent))
	if err != nil {
		return fmt.Errorf("nerd retrieve: %w", err)
	}

	fmt.Printf("query:    %q (expanded: %q)\n", query, result.ExpandedQuery)
	fmt.Printf("complexity=%s top_k=%d\n", result.Analysis.Complexity, result.Analysis.TopK)
	for _, e := range result.StrategyErrors {
		fmt.Printf("strategy error: %s\n", e)
	}
	if len(result.Chunks) == 0 {
		fmt.Println("no chunks retrieved")
		return nil
	}
	for i, c := range result.Chunks {
		fmt.Printf("%2d. %-8s score=%.3f %s %s\n", i+1, c.Kind, c.Score, c.FilePath, c.FQN)
	}
	return nil
}
