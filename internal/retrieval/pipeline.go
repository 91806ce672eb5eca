package retrieval

import (
	"context"
	"strings"

	"codenerd-core/internal/config"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// Pipeline wires the seven retrieval stages (§4.3) into a single
// Retrieve call: query analysis, contextual expansion, parallel
// multi-strategy search, weighted RRF fusion, lightweight rerank,
// dependency-aware ordering, and a cached cross-encoder final pass.
type Pipeline struct {
	cfg             config.RetrievalConfig
	strategies      []Strategy
	weights         StrategyWeights
	expander        *QueryExpander
	lateInteraction *LateInteractionScorer
	crossEncoder    CrossEncoder
	cache           *CrossEncoderCache
	edgesFn         func(ctx context.Context, chunks []types.RetrievalChunk) ([]Edge, error)
}

// NewPipeline builds a Pipeline over the given strategies.
//
// weights may be nil, in which case stage 4 derives them from each
// query's intent via WeightsForIntent; a non-nil value pins the fusion
// weights for every query regardless of intent.
// expander may be nil, in which case stage 2 passes the query through
// unchanged (no codebase vocabulary to draw expansion terms from).
// lateInteraction may be nil, in which case stage 5 falls back to the
// term-density heuristic instead of real MaxSim scoring. crossEncoder
// may be nil, in which case stage 7 is a no-op and the stage-5 ranking
// is final (matching §1's "a cross-encoder... may be omitted" allowance
// for a minimal compliant implementation). edgesFn supplies the
// dependency graph consumed by stage 6; nil disables that stage.
func NewPipeline(cfg config.RetrievalConfig, strategies []Strategy, weights StrategyWeights, expander *QueryExpander, lateInteraction *LateInteractionScorer, crossEncoder CrossEncoder, edgesFn func(ctx context.Context, chunks []types.RetrievalChunk) ([]Edge, error)) *Pipeline {
	return &Pipeline{
		cfg:             cfg,
		strategies:      strategies,
		weights:         weights,
		expander:        expander,
		lateInteraction: lateInteraction,
		crossEncoder:    crossEncoder,
		cache:           NewCrossEncoderCache(),
		edgesFn:         edgesFn,
	}
}

// Result is the outcome of one Retrieve call, carrying the final
// ordered chunks plus enough of the intermediate state for callers that
// want to log or debug a specific stage.
type Result struct {
	Analysis     QueryAnalysis
	ExpandedQuery string
	StrategyErrors []string
	Chunks       []types.RetrievalChunk
}

// Retrieve runs all seven stages for one query.
//
// Open Question (c): NormalizeFQN and ContainsFunction compare
// normalized, fully-qualified names for equality rather than doing a
// substring containment check against raw query text. A substring check
// (e.g. "Add" contained in "AddUser") over-matches on common English
// words that happen to be function-name substrings; exact match on the
// normalized FQN (lowercased, package-qualifier stripped) trades a
// little recall for not polluting results with unrelated symbols whose
// names happen to overlap textually. The stage-3 strategies Retrieve
// runs do not call them: SymbolSearcher ranks files through the HCG's
// QueryScope, which counts query words appearing as substrings of a
// file's path or symbol names, and GraphSearcher looks up callers of its
// seed FQNs as given.
func (p *Pipeline) Retrieve(ctx context.Context, query string, intent Intent) (Result, error) {
	table := AdaptiveTopKTable{
		Min:     p.cfg.AdaptiveTopK.Min,
		Default: p.cfg.AdaptiveTopK.Default,
		Max:     p.cfg.AdaptiveTopK.Max,
	}
	table = DefaultAdaptiveTopKTable(table.Min, table.Default, table.Max)
	analysis := AnalyzeQuery(query, intent, table)

	expanded := query
	if p.expander != nil {
		expanded = p.expander.Expand(ctx, query)
	}

	results, errs := RunStrategies(ctx, p.strategies, expanded, analysis.TopK)
	for _, e := range errs {
		logging.Retrieval("strategy failed, yielding empty results: %s", e)
	}

	weights := p.weights
	if weights == nil {
		weights = WeightsForIntent(intent)
	}
	fused := FuseRRF(results, weights, p.cfg.RRFK, p.cfg.ConsensusBoostBase, p.cfg.ConsensusMaxStrategies)
	reranked := LightweightRerank(ctx, p.lateInteraction, query, fused)

	if p.edgesFn != nil {
		edges, err := p.edgesFn(ctx, reranked)
		if err != nil {
			logging.Retrieval("dependency ordering skipped: %v", err)
		} else {
			reranked = OrderByDependency(reranked, edges)
		}
	}

	final := reranked
	if p.crossEncoder != nil {
		var err error
		final, err = CrossEncoderRerank(ctx, p.crossEncoder, p.cache, query, reranked, p.cfg.CrossEncoderTopN)
		if err != nil {
			logging.Retrieval("cross-encoder rerank failed, falling back to lightweight ranking: %v", err)
			final = reranked
		}
	}

	if p.cfg.FinalTopK > 0 && len(final) > p.cfg.FinalTopK {
		final = final[:p.cfg.FinalTopK]
	}

	return Result{
		Analysis:       analysis,
		ExpandedQuery:  expanded,
		StrategyErrors: errs,
		Chunks:         final,
	}, nil
}

// NormalizeFQN lowercases fqn and strips any package qualifier (the
// portion before the last '.'), used to compare symbol names for
// equality rather than substring containment (see Retrieve's doc
// comment on Open Question (c)).
func NormalizeFQN(fqn string) string {
	fqn = strings.ToLower(fqn)
	if idx := strings.LastIndex(fqn, "."); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

// ContainsFunction reports whether query references fqn by exact
// normalized-name match against any token of query (query split on every
// character other than ASCII letters, digits and '_'), not by raw
// substring search.
func ContainsFunction(query, fqn string) bool {
	target := NormalizeFQN(fqn)
	for _, tok := range strings.FieldsFunc(query, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if strings.ToLower(tok) == target {
			return true
		}
	}
	return false
}
