package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd-core/internal/types"
)

type fakeEmbeddingModel struct {
	vectors map[string][]float32
}

func (f *fakeEmbeddingModel) EncodeQuery(ctx context.Context, text string) ([][]float32, error) {
	return [][]float32{f.vectorFor(text)}, nil
}

func (f *fakeEmbeddingModel) EncodeDocument(ctx context.Context, text string) ([][]float32, error) {
	return [][]float32{f.vectorFor(text)}, nil
}

func (f *fakeEmbeddingModel) EncodeTerm(ctx context.Context, term string) ([]float32, error) {
	return f.vectorFor(term), nil
}

func (f *fakeEmbeddingModel) vectorFor(key string) []float32 {
	if v, ok := f.vectors[key]; ok {
		return v
	}
	return []float32{0, 0, 1}
}

func TestVocabulary_LearnFromChunks_ExtractsFunctionsAndTypes(t *testing.T) {
	vocab := NewVocabulary()
	vocab.LearnFromChunks([]types.RetrievalChunk{
		{ChunkID: "c1", FilePath: "a.go", Content: "func CreateUser(name string) error {\n\treturn nil\n}\n"},
		{ChunkID: "c2", FilePath: "b.go", Content: "type UserStore struct {\n\tdb *sql.DB\n}\n"},
	})
	require.Equal(t, 2, vocab.Len())
	assert.Equal(t, "function", vocab.terms["CreateUser"].Kind)
	assert.Equal(t, "type", vocab.terms["UserStore"].Kind)
}

func TestVocabulary_LearnFromChunks_AccumulatesFrequencyAcrossChunks(t *testing.T) {
	vocab := NewVocabulary()
	src := "func CreateUser() error { return nil }\n"
	vocab.LearnFromChunks([]types.RetrievalChunk{{ChunkID: "c1", FilePath: "a.go", Content: src}})
	vocab.LearnFromChunks([]types.RetrievalChunk{{ChunkID: "c2", FilePath: "b.go", Content: src}})

	require.Contains(t, vocab.terms, "CreateUser")
	assert.Equal(t, 2, vocab.terms["CreateUser"].Frequency)
	assert.Len(t, vocab.terms["CreateUser"].Files, 2)
}

func TestVocabulary_CooccurringTerms_FindsNearbyDeclarations(t *testing.T) {
	vocab := NewVocabulary()
	vocab.LearnFromChunks([]types.RetrievalChunk{{
		ChunkID:  "c1",
		FilePath: "a.go",
		Content:  "func CreateUser() error { return nil }\nfunc DeleteUser() error { return nil }\n",
	}})

	companions := vocab.CooccurringTerms("CreateUser", 5)
	require.Len(t, companions, 1)
	assert.Equal(t, "DeleteUser", companions[0].Term)
}

func TestQueryExpander_NoModelReturnsQueryUnchanged(t *testing.T) {
	expander := NewQueryExpander(NewVocabulary(), nil, nil)
	out := expander.Expand(context.Background(), "fix the error")
	assert.Equal(t, "fix the error", out)
}

func TestQueryExpander_ExpandsWithSimilarFrequentTerm(t *testing.T) {
	vocab := NewVocabulary()
	src := "func CreateUser() error { return nil }\n"
	vocab.LearnFromChunks([]types.RetrievalChunk{{ChunkID: "c1", FilePath: "a.go", Content: src}})
	vocab.LearnFromChunks([]types.RetrievalChunk{{ChunkID: "c2", FilePath: "b.go", Content: src}})

	model := &fakeEmbeddingModel{vectors: map[string][]float32{
		"create a user": {1, 0, 0},
		"CreateUser":    {1, 0, 0},
	}}
	expander := NewQueryExpander(vocab, model, NewEmbeddingCache())

	out := expander.Expand(context.Background(), "create a user")
	assert.Contains(t, out, "create a user")
	assert.Contains(t, out, "CreateUser")
}

func TestQueryExpander_FiltersBelowFrequencyMin(t *testing.T) {
	vocab := NewVocabulary()
	vocab.LearnFromChunks([]types.RetrievalChunk{{ChunkID: "c1", FilePath: "a.go", Content: "func CreateUser() error { return nil }\n"}})

	model := &fakeEmbeddingModel{vectors: map[string][]float32{
		"create a user": {1, 0, 0},
		"CreateUser":    {1, 0, 0},
	}}
	expander := NewQueryExpander(vocab, model, NewEmbeddingCache())

	out := expander.Expand(context.Background(), "create a user")
	assert.Equal(t, "create a user", out)
}
