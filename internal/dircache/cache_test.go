package dircache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachePutGet(t *testing.T) {
	c := New(4, time.Minute)

	c.Put("/movies/a", Entry{Size: 100, MTime: 1700000000})

	entry, ok := c.Get("/movies/a")
	assert.True(t, ok)
	assert.Equal(t, 100.0, entry.Size)
	assert.Equal(t, 1700000000.0, entry.MTime)

	_, ok = c.Get("/movies/missing")
	assert.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(4, time.Minute)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Put("/movies/a", Entry{Size: 1})

	current = current.Add(59 * time.Second)
	_, ok := c.Get("/movies/a")
	assert.True(t, ok)

	current = current.Add(2 * time.Second)
	_, ok = c.Get("/movies/a")
	assert.False(t, ok, "entry should expire after the TTL")
	assert.Equal(t, 0, c.Len(), "expired entry should be removed on read")
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(2, time.Minute)

	c.Put("a", Entry{Size: 1})
	c.Put("b", Entry{Size: 2})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Put("c", Entry{Size: 3})

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCacheOverwrite(t *testing.T) {
	c := New(2, time.Minute)

	c.Put("a", Entry{Size: 1})
	c.Put("a", Entry{Size: 9, Failed: true})

	entry, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 9.0, entry.Size)
	assert.True(t, entry.Failed)
	assert.Equal(t, 1, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(64, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("/dir/%d", j%32)
				c.Put(key, Entry{Size: float64(n)})
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
