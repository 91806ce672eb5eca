package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd-core/internal/types"
)

func TestHeuristicRerank_ExactPhraseWins(t *testing.T) {
	chunks := []types.RetrievalChunk{
		{ChunkID: "noise", Content: "completely unrelated text", Score: 0.3},
		{ChunkID: "hit", Content: "func ParseConfig loads the yaml config file", Score: 0.3},
	}

	out := LightweightRerank(context.Background(), nil, "yaml config", chunks)
	require.Len(t, out, 2)
	assert.Equal(t, "hit", out[0].ChunkID)
	assert.Greater(t, out[0].Score, out[1].Score)
}

func TestHeuristicRerank_EmptyContentKeepsFusedScore(t *testing.T) {
	chunks := []types.RetrievalChunk{{ChunkID: "a", Score: 0.4}}
	out := LightweightRerank(context.Background(), nil, "anything", chunks)
	require.Len(t, out, 1)
	assert.Equal(t, 0.4, out[0].Score)
}

func TestLightweightRerank_UsesLateInteractionWhenConfigured(t *testing.T) {
	scorer := NewLateInteractionScorer(&fixedEmbeddingModel{})
	chunks := []types.RetrievalChunk{
		{ChunkID: "a", Content: "body a", Score: 0.1},
		{ChunkID: "b", Content: "body b", Score: 0.1},
	}

	out := LightweightRerank(context.Background(), scorer, "q", chunks)
	require.Len(t, out, 2)
	// MaxSim over the fixed model adds 1.0 to each chunk's fused score.
	assert.InDelta(t, 1.1, out[0].Score, 1e-6)
	assert.InDelta(t, 1.1, out[1].Score, 1e-6)
}

func TestLightweightRerank_DoesNotMutateInput(t *testing.T) {
	chunks := []types.RetrievalChunk{{ChunkID: "a", Content: "text with terms", Score: 0.2}}
	_ = LightweightRerank(context.Background(), nil, "text terms", chunks)
	assert.Equal(t, 0.2, chunks[0].Score)
}
