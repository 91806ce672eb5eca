package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codenerd-core/internal/types"
)

// CrossEncoder scores a single (query, passage) pair, the narrow
// capability.* style interface: a consumer-shaped method set rather
// than a full model-serving SDK surface.
type CrossEncoder interface {
	Score(ctx context.Context, query, content string) (float64, error)
}

// PromptVersion is mixed into the cache key so a prompt-format change
// invalidates previously cached scores (§4.3 stage 7 cache key).
const PromptVersion = "v1"

// DefaultCrossEncoderCacheSize and DefaultCrossEncoderCacheTTL match the
// teacher corpus's own InMemoryLLMScoreCache defaults (maxsize=10000,
// default_ttl=3600s).
const (
	DefaultCrossEncoderCacheSize = 10000
	DefaultCrossEncoderCacheTTL  = time.Hour
)

// PersistentScoreStore is the optional on-disk tier for CrossEncoderCache
// (§4.3 stage 7: "TTL and optional persistent backend"), grounded in the
// original source's FileBasedLLMScoreCache: one file per cache key,
// TTL-checked on read.
type PersistentScoreStore interface {
	Get(key string) (float64, bool)
	Set(key string, score float64)
}

// FileScoreStore persists cross-encoder scores as one JSON file per
// cache key under dir, mirroring FileBasedLLMScoreCache's layout
// (pickle there, JSON here — Go idiom favors a self-describing format
// over a language-specific serialization) including its TTL-on-read
// check and its path-containment guard against a cache key that could
// escape dir via path traversal.
type FileScoreStore struct {
	dir string
	ttl time.Duration
}

// NewFileScoreStore returns a FileScoreStore rooted at dir, creating it
// if necessary. Entries older than ttl are treated as absent and removed
// on the next read (ttl<=0 disables expiry).
func NewFileScoreStore(dir string, ttl time.Duration) (*FileScoreStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("retrieval: create score cache dir: %w", err)
	}
	return &FileScoreStore{dir: dir, ttl: ttl}, nil
}

type persistedScore struct {
	Score    float64   `json:"score"`
	CachedAt time.Time `json:"cached_at"`
}

func (s *FileScoreStore) path(key string) (string, error) {
	p := filepath.Join(s.dir, key+".json")
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(abs, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("retrieval: cache key %q escapes cache dir", key)
	}
	return abs, nil
}

// Get reads a persisted score, returning (0, false) if absent, corrupt,
// or expired (an expired entry is removed from disk before returning).
func (s *FileScoreStore) Get(key string) (float64, bool) {
	p, err := s.path(key)
	if err != nil {
		return 0, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return 0, false
	}
	var rec persistedScore
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false
	}
	if s.ttl > 0 && time.Since(rec.CachedAt) > s.ttl {
		_ = os.Remove(p)
		return 0, false
	}
	return rec.Score, true
}

// Set persists score under key, overwriting any existing entry.
func (s *FileScoreStore) Set(key string, score float64) {
	p, err := s.path(key)
	if err != nil {
		return
	}
	data, err := json.Marshal(persistedScore{Score: score, CachedAt: time.Now()})
	if err != nil {
		return
	}
	_ = os.WriteFile(p, data, 0o644)
}

// CrossEncoderCache memoizes Score calls keyed by sha256(query, chunk
// ID, content hash, prompt version). It is bounded by maxSize with LRU
// eviction and expires entries after ttl, and may additionally consult
// a PersistentScoreStore so scores survive process restarts — all
// three controls named by §4.3 stage 7's "TTL and optional persistent
// backend... explicit eviction policy" invariant.
type CrossEncoderCache struct {
	mem        *ttlCache
	persistent PersistentScoreStore
}

// NewCrossEncoderCache returns a cache bounded at
// DefaultCrossEncoderCacheSize entries with DefaultCrossEncoderCacheTTL
// expiry and no persistent tier.
func NewCrossEncoderCache() *CrossEncoderCache {
	return NewCrossEncoderCacheWith(DefaultCrossEncoderCacheSize, DefaultCrossEncoderCacheTTL, nil)
}

// NewCrossEncoderCacheWith returns a cache with explicit bounds and an
// optional persistent backend (nil disables the persistent tier).
func NewCrossEncoderCacheWith(maxSize int, ttl time.Duration, persistent PersistentScoreStore) *CrossEncoderCache {
	return &CrossEncoderCache{mem: newTTLCache(maxSize, ttl), persistent: persistent}
}

// cacheKey hashes (lowercased query, chunk id, content hash, prompt
// version); the lowercasing means "Find the parser" and "find the parser"
// share a cache entry.
func cacheKey(query, chunkID, content string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(query)))
	h.Write([]byte{0})
	h.Write([]byte(chunkID))
	h.Write([]byte{0})
	contentHash := sha256.Sum256([]byte(content))
	h.Write(contentHash[:])
	h.Write([]byte{0})
	h.Write([]byte(PromptVersion))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CrossEncoderCache) get(key string) (float64, bool) {
	if v, ok := c.mem.get(key); ok {
		return v.(float64), true
	}
	if c.persistent != nil {
		if v, ok := c.persistent.Get(key); ok {
			c.mem.set(key, v)
			return v, true
		}
	}
	return 0, false
}

func (c *CrossEncoderCache) put(key string, score float64) {
	c.mem.set(key, score)
	if c.persistent != nil {
		c.persistent.Set(key, score)
	}
}

// CrossEncoderRerank implements stage 7: the top topN candidates (by
// prior score) are scored by the cross-encoder, with cache lookups
// skipping the model call for previously seen (query, chunk) pairs;
// everything beyond topN keeps its stage-5 score and ordering.
func CrossEncoderRerank(ctx context.Context, model CrossEncoder, cache *CrossEncoderCache, query string, chunks []types.RetrievalChunk, topN int) ([]types.RetrievalChunk, error) {
	if model == nil || len(chunks) == 0 {
		return chunks, nil
	}
	if topN > len(chunks) {
		topN = len(chunks)
	}

	head := make([]types.RetrievalChunk, topN)
	copy(head, chunks[:topN])
	tail := chunks[topN:]

	for i := range head {
		key := cacheKey(query, head[i].ChunkID, head[i].Content)
		if cached, ok := cache.get(key); ok {
			head[i].Score = cached
			continue
		}
		score, err := model.Score(ctx, query, head[i].Content)
		if err != nil {
			return nil, err
		}
		cache.put(key, score)
		head[i].Score = score
	}

	sort.SliceStable(head, func(i, j int) bool { return head[i].Score > head[j].Score })

	out := make([]types.RetrievalChunk, 0, len(chunks))
	out = append(out, head...)
	out = append(out, tail...)
	return out, nil
}
