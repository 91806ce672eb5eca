package retrieval

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_GetSetRoundTrip(t *testing.T) {
	c := newTTLCache(10, time.Hour)
	c.set("k", 42)

	v, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestTTLCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newTTLCache(2, time.Hour)
	c.set("a", 1)
	c.set("b", 2)

	// Touch "a" so "b" becomes the LRU entry.
	_, ok := c.get("a")
	require.True(t, ok)

	c.set("c", 3)
	_, ok = c.get("b")
	assert.False(t, ok, "b was least recently used and should be evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestTTLCache_ExpiresByTime(t *testing.T) {
	c := newTTLCache(10, time.Nanosecond)
	c.set("k", 1)
	time.Sleep(time.Millisecond)

	_, ok := c.get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestTTLCache_ZeroTTLNeverExpires(t *testing.T) {
	c := newTTLCache(10, 0)
	c.set("k", 1)
	_, ok := c.get("k")
	assert.True(t, ok)
}

func TestTTLCache_SetRefreshesExistingEntry(t *testing.T) {
	c := newTTLCache(2, time.Hour)
	c.set("a", 1)
	c.set("b", 2)
	c.set("a", 10) // refresh, must not grow past maxSize or evict anything

	assert.Equal(t, 2, c.len())
	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestTTLCache_ClearEmptiesEverything(t *testing.T) {
	c := newTTLCache(10, time.Hour)
	for i := 0; i < 5; i++ {
		c.set(fmt.Sprintf("k%d", i), i)
	}
	c.clear()
	assert.Equal(t, 0, c.len())
}

func TestTTLCache_ConcurrentAccessIsSafe(t *testing.T) {
	c := newTTLCache(100, time.Hour)
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				c.set(fmt.Sprintf("g%d-k%d", g, i%10), i)
				c.get(fmt.Sprintf("g%d-k%d", g, i%10))
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	assert.LessOrEqual(t, c.len(), 100)
}
