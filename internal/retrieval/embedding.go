package retrieval

import (
	"context"
	"math"
	"time"
)

// EmbeddingModel produces per-token embeddings for a query or a
// document, the narrow interface late interaction (§4.3 stage 5) and
// contextual expansion (§4.3 stage 2) both depend on rather than any
// concrete model-serving SDK. Grounded in the original source's
// EmbeddingModelPort (encode_query/encode_document returning
// per-token arrays) and CodebaseVocabulary's embedding_model.encode
// use for single-term vectors; EncodeTerm covers the latter.
type EmbeddingModel interface {
	EncodeQuery(ctx context.Context, text string) ([][]float32, error)
	EncodeDocument(ctx context.Context, text string) ([][]float32, error)
	EncodeTerm(ctx context.Context, term string) ([]float32, error)
}

// DefaultEmbeddingCacheSize and DefaultEmbeddingCacheTTL match the
// teacher corpus's InMemoryEmbeddingCache default (maxsize=10000); the
// original carries no TTL on embeddings (they're content-addressed by
// chunk id and don't go stale the way a model's live score does), but
// this cache still exposes one so a long-lived process can reclaim
// memory for documents that drop out of the working set, defaulting to
// effectively unbounded (0 = no expiry).
const (
	DefaultEmbeddingCacheSize = 10000
	DefaultEmbeddingCacheTTL  = 0
)

// PersistentEmbeddingStore is the optional on-disk/shared-KV tier for
// EmbeddingCache (§4.3 "Embedding cache (stage 5-7)... optional
// persistent tier (on-disk or a shared KV store)"). SQLiteEmbeddingStore
// is the concrete implementation wired by this module.
type PersistentEmbeddingStore interface {
	Get(key string) ([]float32, bool)
	Set(key string, vec []float32)
}

// EmbeddingCache stores pre-computed token embeddings keyed by chunk id
// (or term, for vocabulary embeddings), with a bounded in-memory LRU
// tier and an optional persistent tier, and optional int-8 quantization
// of the in-memory copies to trade a small accuracy loss for about a
// quarter of the float32 memory (one byte per component instead of four,
// plus one float32 scale factor per vector).
type EmbeddingCache struct {
	mem        *ttlCache
	persistent PersistentEmbeddingStore
	quantize   bool
}

// NewEmbeddingCache returns a cache bounded at DefaultEmbeddingCacheSize
// entries with no persistent tier and no quantization.
func NewEmbeddingCache() *EmbeddingCache {
	return NewEmbeddingCacheWith(DefaultEmbeddingCacheSize, DefaultEmbeddingCacheTTL, nil, false)
}

// NewEmbeddingCacheWith returns a cache with explicit bounds, an
// optional persistent backend (nil disables it), and optional int-8
// quantization of in-memory vectors.
func NewEmbeddingCacheWith(maxSize int, ttl time.Duration, persistent PersistentEmbeddingStore, quantize bool) *EmbeddingCache {
	return &EmbeddingCache{mem: newTTLCache(maxSize, ttl), persistent: persistent, quantize: quantize}
}

// Get returns the cached multi-vector embedding for key (a chunk id)
// from the in-memory tier only; the persistent tier holds single term
// vectors (see GetTerm) and is not read here.
func (c *EmbeddingCache) Get(key string) ([][]float32, bool) {
	if v, ok := c.mem.get(key); ok {
		return decodeCachedEmbedding(v, c.quantize), true
	}
	if c.persistent != nil {
		// Persistent tier stores a flattened single vector per key by
		// design (see SQLiteEmbeddingStore); multi-vector documents are
		// cached in-memory only, matching the teacher's vec_compat.go
		// note that its own table is repopulated by a backfill step
		// rather than treated as the source of truth for transient
		// per-session state.
		return nil, false
	}
	return nil, false
}

// Set stores a multi-vector embedding for key in the in-memory tier,
// quantizing to int8 first if configured.
func (c *EmbeddingCache) Set(key string, vectors [][]float32) {
	c.mem.set(key, encodeCachedEmbedding(vectors, c.quantize))
}

// GetTerm returns a single cached vector for a vocabulary term,
// checking the persistent tier (which is keyed by single vectors) on a
// local miss.
func (c *EmbeddingCache) GetTerm(key string) ([]float32, bool) {
	if v, ok := c.mem.get(key); ok {
		vecs := decodeCachedEmbedding(v, c.quantize)
		if len(vecs) == 1 {
			return vecs[0], true
		}
	}
	if c.persistent != nil {
		if vec, ok := c.persistent.Get(key); ok {
			c.mem.set(key, encodeCachedEmbedding([][]float32{vec}, c.quantize))
			return vec, true
		}
	}
	return nil, false
}

// SetTerm stores a single term vector in both tiers.
func (c *EmbeddingCache) SetTerm(key string, vec []float32) {
	c.mem.set(key, encodeCachedEmbedding([][]float32{vec}, c.quantize))
	if c.persistent != nil {
		c.persistent.Set(key, vec)
	}
}

func (c *EmbeddingCache) Len() int { return c.mem.len() }

// cachedEmbedding is what actually lives in the in-memory tier: either
// float32 vectors, or their int8-quantized form plus per-vector scale
// factors when quantize is enabled.
type cachedEmbedding struct {
	float    [][]float32
	quant    [][]int8
	scales   []float32
}

func encodeCachedEmbedding(vectors [][]float32, quantize bool) *cachedEmbedding {
	if !quantize {
		return &cachedEmbedding{float: vectors}
	}
	q := make([][]int8, len(vectors))
	scales := make([]float32, len(vectors))
	for i, v := range vectors {
		q[i], scales[i] = quantizeInt8(v)
	}
	return &cachedEmbedding{quant: q, scales: scales}
}

func decodeCachedEmbedding(v any, quantize bool) [][]float32 {
	ce := v.(*cachedEmbedding)
	if ce.float != nil {
		return ce.float
	}
	out := make([][]float32, len(ce.quant))
	for i, q := range ce.quant {
		out[i] = dequantizeInt8(q, ce.scales[i])
	}
	return out
}

// quantizeInt8 maps v's components into [-127, 127] scaled by the
// vector's own max absolute value, the standard per-tensor symmetric
// int8 quantization scheme: one byte per component instead of float32's
// four (~75% memory reduction, plus one scale per vector) for a rounding
// error of at most half a quantization step per component.
func quantizeInt8(v []float32) ([]int8, float32) {
	maxAbs := float32(0)
	for _, f := range v {
		if a := float32(math.Abs(float64(f))); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return make([]int8, len(v)), 1
	}
	scale := maxAbs / 127
	q := make([]int8, len(v))
	for i, f := range v {
		q[i] = int8(math.Round(float64(f / scale)))
	}
	return q, scale
}

func dequantizeInt8(q []int8, scale float32) []float32 {
	out := make([]float32, len(q))
	for i, v := range q {
		out[i] = float32(v) * scale
	}
	return out
}
