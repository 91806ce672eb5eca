package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUMaxSim_HandComputed(t *testing.T) {
	// Two query tokens against two orthonormal document tokens: each
	// query token's best match is exactly one document token, so the
	// score is the sum of the two dot products.
	query := [][]float32{{1, 0}, {0, 1}}
	doc := [][]float32{{1, 0}, {0, 1}}

	score, err := CPUMaxSim{}.MaxSim(query, doc)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, score, 1e-9)
}

func TestCPUMaxSim_PicksBestDocumentToken(t *testing.T) {
	query := [][]float32{{1, 0}}
	doc := [][]float32{{0.2, 0.0}, {0.9, 0.0}, {-1, 0}}

	score, err := CPUMaxSim{}.MaxSim(query, doc)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, score, 1e-6)
}

func TestCPUMaxSim_EmptyOperandsScoreZero(t *testing.T) {
	score, err := CPUMaxSim{}.MaxSim(nil, [][]float32{{1}})
	require.NoError(t, err)
	assert.Zero(t, score)

	score, err = CPUMaxSim{}.MaxSim([][]float32{{1}}, nil)
	require.NoError(t, err)
	assert.Zero(t, score)
}

type fixedEmbeddingModel struct {
	queryCalls int
	docCalls   int
}

func (m *fixedEmbeddingModel) EncodeQuery(ctx context.Context, text string) ([][]float32, error) {
	m.queryCalls++
	return [][]float32{{1, 0}}, nil
}

func (m *fixedEmbeddingModel) EncodeDocument(ctx context.Context, text string) ([][]float32, error) {
	m.docCalls++
	return [][]float32{{1, 0}, {0, 1}}, nil
}

func (m *fixedEmbeddingModel) EncodeTerm(ctx context.Context, term string) ([]float32, error) {
	return []float32{1, 0}, nil
}

var _ EmbeddingModel = (*fixedEmbeddingModel)(nil)

func TestLateInteractionScorer_CachesDocumentEmbeddings(t *testing.T) {
	model := &fixedEmbeddingModel{}
	scorer := NewLateInteractionScorer(model)

	s1, err := scorer.Score(context.Background(), "q", "chunk-1", "content")
	require.NoError(t, err)
	s2, err := scorer.Score(context.Background(), "q", "chunk-1", "content")
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, model.docCalls, "document encoded once, then cached by chunk id")
	assert.Equal(t, 2, model.queryCalls)
}
