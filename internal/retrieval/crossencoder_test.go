package retrieval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd-core/internal/types"
)

type countingEncoder struct {
	mu    sync.Mutex
	calls int
	score float64
}

func (c *countingEncoder) Score(ctx context.Context, query, content string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.score, nil
}

var _ CrossEncoder = (*countingEncoder)(nil)

func TestCrossEncoderRerank_CachesRepeatedPairs(t *testing.T) {
	enc := &countingEncoder{score: 0.7}
	cache := NewCrossEncoderCache()
	chunks := []types.RetrievalChunk{
		{ChunkID: "c1", Content: "func Foo() {}"},
		{ChunkID: "c2", Content: "func Bar() {}"},
	}

	out, err := CrossEncoderRerank(context.Background(), enc, cache, "find foo", chunks, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, enc.calls)

	_, err = CrossEncoderRerank(context.Background(), enc, cache, "find foo", chunks, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, enc.calls, "second pass must be served from cache")
}

func TestCrossEncoderRerank_QueryCaseDoesNotMissCache(t *testing.T) {
	enc := &countingEncoder{score: 0.7}
	cache := NewCrossEncoderCache()
	chunks := []types.RetrievalChunk{{ChunkID: "c1", Content: "body"}}

	_, err := CrossEncoderRerank(context.Background(), enc, cache, "Find The Parser", chunks, 1)
	require.NoError(t, err)
	_, err = CrossEncoderRerank(context.Background(), enc, cache, "find the parser", chunks, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, enc.calls, "cache key lowercases the query")
}

func TestCrossEncoderRerank_OnlyTopNScored(t *testing.T) {
	enc := &countingEncoder{score: 0.9}
	cache := NewCrossEncoderCache()
	var chunks []types.RetrievalChunk
	for _, id := range []string{"a", "b", "c", "d"} {
		chunks = append(chunks, types.RetrievalChunk{ChunkID: id, Content: id, Score: 0.5})
	}

	out, err := CrossEncoderRerank(context.Background(), enc, cache, "q", chunks, 2)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, 2, enc.calls)
	// The tail keeps its stage-5 scores and order.
	assert.Equal(t, "c", out[2].ChunkID)
	assert.Equal(t, "d", out[3].ChunkID)
}

func TestCrossEncoderRerank_NilModelPassesThrough(t *testing.T) {
	chunks := []types.RetrievalChunk{{ChunkID: "a"}}
	out, err := CrossEncoderRerank(context.Background(), nil, NewCrossEncoderCache(), "q", chunks, 5)
	require.NoError(t, err)
	assert.Equal(t, chunks, out)
}

func TestFileScoreStore_RoundTrip(t *testing.T) {
	store, err := NewFileScoreStore(t.TempDir(), time.Hour)
	require.NoError(t, err)

	store.Set("abc123", 0.42)
	score, ok := store.Get("abc123")
	require.True(t, ok)
	assert.InDelta(t, 0.42, score, 1e-9)
}

func TestFileScoreStore_ExpiredEntryDropped(t *testing.T) {
	store, err := NewFileScoreStore(t.TempDir(), time.Nanosecond)
	require.NoError(t, err)

	store.Set("k", 0.5)
	time.Sleep(time.Millisecond)
	_, ok := store.Get("k")
	assert.False(t, ok)
}

func TestFileScoreStore_KeyCannotEscapeDir(t *testing.T) {
	store, err := NewFileScoreStore(t.TempDir(), time.Hour)
	require.NoError(t, err)

	store.Set("../../evil", 1.0)
	_, ok := store.Get("../../evil")
	assert.False(t, ok)
}

func TestCrossEncoderCache_PersistentTierSurvivesMemoryReset(t *testing.T) {
	persistent, err := NewFileScoreStore(t.TempDir(), time.Hour)
	require.NoError(t, err)

	c1 := NewCrossEncoderCacheWith(10, time.Hour, persistent)
	key := cacheKey("q", "chunk", "content")
	c1.put(key, 0.33)

	c2 := NewCrossEncoderCacheWith(10, time.Hour, persistent)
	score, ok := c2.get(key)
	require.True(t, ok)
	assert.InDelta(t, 0.33, score, 1e-9)
}
