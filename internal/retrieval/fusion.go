package retrieval

import (
	"sort"

	"codenerd-core/internal/types"
)

// StrategyWeights assigns each strategy's contribution to the fused
// score (§4.3 stage 4). Missing entries default to 1.0.
type StrategyWeights map[string]float64

// DefaultStrategyWeights mirrors the intent-neutral default: all four
// lanes weighted evenly.
func DefaultStrategyWeights() StrategyWeights {
	return StrategyWeights{"vector": 1.0, "lexical": 1.0, "symbol": 1.0, "graph": 1.0}
}

// WeightsForIntent biases the fusion weights by query intent:
// symbol-heavy for definitional lookups, graph-heavy for flow tracing,
// even otherwise (§4.3 stage 4).
func WeightsForIntent(intent Intent) StrategyWeights {
	switch intent {
	case IntentDefinitional:
		return StrategyWeights{"vector": 0.8, "lexical": 0.8, "symbol": 1.6, "graph": 1.0}
	case IntentFlowTracing:
		return StrategyWeights{"vector": 0.8, "lexical": 0.8, "symbol": 1.0, "graph": 1.6}
	default:
		return DefaultStrategyWeights()
	}
}

type fused struct {
	chunk      types.RetrievalChunk
	score      float64
	strategies map[string]struct{}
}

func chunkKey(c types.RetrievalChunk) string {
	if c.ChunkID != "" {
		return c.ChunkID
	}
	if c.FQN != "" {
		return "fqn:" + c.FQN
	}
	return "path:" + c.FilePath
}

// FuseRRF implements stage 4: weighted Reciprocal Rank Fusion across
// strategy result lists, plus a consensus boost for chunks surfaced by
// more than one strategy. rrfK is the standard RRF smoothing constant;
// consensusBoostBase scales the per-extra-strategy bonus, capped at
// maxConsensusStrategies contributing strategies.
func FuseRRF(results []StrategyResult, weights StrategyWeights, rrfK int, consensusBoostBase float64, maxConsensusStrategies int) []types.RetrievalChunk {
	index := map[string]*fused{}
	var order []string

	for _, res := range results {
		weight := weights[res.Strategy]
		if weight == 0 {
			weight = 1.0
		}
		for rank, chunk := range res.Chunks {
			key := chunkKey(chunk)
			f, ok := index[key]
			if !ok {
				f = &fused{chunk: chunk, strategies: map[string]struct{}{}}
				index[key] = f
				order = append(order, key)
			}
			f.score += weight / float64(rrfK+rank+1)
			f.strategies[res.Strategy] = struct{}{}
			if f.chunk.Score == 0 {
				f.chunk = chunk
			}
		}
	}

	out := make([]types.RetrievalChunk, 0, len(order))
	for _, key := range order {
		f := index[key]
		consensus := len(f.strategies)
		if consensus > maxConsensusStrategies {
			consensus = maxConsensusStrategies
		}
		boost := 1.0
		if consensus > 1 {
			boost = 1.0 + consensusBoostBase*float64(consensus-1)
		}
		c := f.chunk
		c.Score = f.score * boost
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
