package retrieval

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteEmbeddingStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteEmbeddingStore(filepath.Join(t.TempDir(), "emb.db"))
	require.NoError(t, err)
	defer store.Close()

	store.Set("term:handler", []float32{0.25, -1.5, 3.0})
	vec, ok := store.Get("term:handler")
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1.5, 3.0}, vec)
}

func TestSQLiteEmbeddingStore_OverwriteReplaces(t *testing.T) {
	store, err := NewSQLiteEmbeddingStore(filepath.Join(t.TempDir(), "emb.db"))
	require.NoError(t, err)
	defer store.Close()

	store.Set("k", []float32{1})
	store.Set("k", []float32{2, 3})
	vec, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, []float32{2, 3}, vec)
}

func TestSQLiteEmbeddingStore_MissingKey(t *testing.T) {
	store, err := NewSQLiteEmbeddingStore(filepath.Join(t.TempDir(), "emb.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Get("absent")
	assert.False(t, ok)
}

func TestFloat32BlobEncoding_RoundTrip(t *testing.T) {
	in := []float32{0, -0.5, 1e9, 3.14159}
	out := decodeFloat32Blob(encodeFloat32Blob(in))
	assert.Equal(t, in, out)
}
