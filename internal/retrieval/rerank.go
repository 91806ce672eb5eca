package retrieval

import (
	"context"
	"sort"
	"strings"

	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// LightweightRerank implements stage 5: a synchronous pass that ranks
// fused candidates before the expensive cross-encoder (stage 7) ever
// runs, so only a small top-N needs full cross-encoder scoring.
//
// When scorer is non-nil it runs the spec's real late-interaction path
// (§4.3 "MaxSim (late interaction)"): per-token query/document
// embeddings scored by MaxSim. When scorer is nil — no EmbeddingModel
// configured, matching how crossEncoder/edgesFn are already nil-able
// collaborators in NewPipeline — it falls back to the cheap exact-phrase
// and term-density heuristic the teacher ships when no model is wired,
// rather than silently pretending the heuristic is late interaction.
func LightweightRerank(ctx context.Context, scorer *LateInteractionScorer, query string, chunks []types.RetrievalChunk) []types.RetrievalChunk {
	if scorer != nil {
		return lateInteractionRerank(ctx, scorer, query, chunks)
	}
	return heuristicRerank(query, chunks)
}

func lateInteractionRerank(ctx context.Context, scorer *LateInteractionScorer, query string, chunks []types.RetrievalChunk) []types.RetrievalChunk {
	out := make([]types.RetrievalChunk, len(chunks))
	copy(out, chunks)

	for i, c := range out {
		if c.Content == "" {
			continue
		}
		score, err := scorer.Score(ctx, query, c.ChunkID, c.Content)
		if err != nil {
			logging.Retrieval("late interaction scoring failed for %s, keeping fused score: %v", c.ChunkID, err)
			continue
		}
		out[i].Score = c.Score + score
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// heuristicRerank is the no-embedding-model fallback: exact-phrase and
// term-density bonuses computed directly over chunk text.
func heuristicRerank(query string, chunks []types.RetrievalChunk) []types.RetrievalChunk {
	queryLower := strings.ToLower(query)
	terms := strings.Fields(queryLower)

	out := make([]types.RetrievalChunk, len(chunks))
	copy(out, chunks)

	for i, c := range out {
		content := strings.ToLower(c.Content)
		bonus := 0.0
		if content != "" {
			if strings.Contains(content, queryLower) {
				bonus += 0.5
			}
			hits := 0
			for _, t := range terms {
				if len(t) < 3 {
					continue
				}
				if strings.Contains(content, t) {
					hits++
				}
			}
			if len(terms) > 0 {
				bonus += 0.25 * float64(hits) / float64(len(terms))
			}
		}
		out[i].Score = c.Score + bonus
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
