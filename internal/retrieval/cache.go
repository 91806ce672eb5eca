package retrieval

import (
	"container/list"
	"sync"
	"time"
)

// ttlCache is a bounded, in-memory cache with an explicit LRU eviction
// policy and a per-entry TTL checked on Get. Both CrossEncoderCache
// (stage 7) and EmbeddingCache (stage 5-7) are built on this: the
// teacher corpus's own two score/embedding caches
// (InMemoryLLMScoreCache, InMemoryEmbeddingCache) share the same shape
// — insertion-ordered eviction once a maxsize is hit, TTL expiry
// checked at lookup time — refined here to move-to-back-on-hit so the
// evicted entry is genuinely least-recently-used rather than merely
// oldest-inserted.
type ttlCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
}

type ttlEntry struct {
	key      string
	value    any
	cachedAt time.Time
}

// newTTLCache returns a cache holding at most maxSize entries (<=0 means
// unbounded) where each entry expires ttl after being set or last
// refreshed (<=0 means entries never expire by time).
func newTTLCache(maxSize int, ttl time.Duration) *ttlCache {
	return &ttlCache{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *ttlCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*ttlEntry)
	if c.ttl > 0 && time.Since(e.cachedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToBack(el)
	return e.value, true
}

func (c *ttlCache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*ttlEntry)
		e.value = value
		e.cachedAt = time.Now()
		c.order.MoveToBack(el)
		return
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*ttlEntry).key)
		}
	}
	el := c.order.PushBack(&ttlEntry{key: key, value: value, cachedAt: time.Now()})
	c.entries[key] = el
}

func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}
