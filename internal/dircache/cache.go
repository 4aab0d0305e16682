// Package dircache provides the bounded, time-expiring cache backing
// directory aggregation results.
package dircache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is an aggregated directory result
type Entry struct {
	Size   float64
	MTime  float64
	Failed bool
}

// Cache is a TTL + LRU bounded map from normalized directory path to Entry.
// It is safe for concurrent use. Callers racing on the same missing key may
// compute the value twice; the last Put wins.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	entries    map[string]*list.Element
	order      *list.List

	now func() time.Time
}

type cacheItem struct {
	key      string
	entry    Entry
	deadline time.Time
}

// New creates a cache bounded to maxEntries with the given TTL
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached entry for key if present and not expired
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	item := el.Value.(*cacheItem)
	if c.now().After(item.deadline) {
		c.order.Remove(el)
		delete(c.entries, key)
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	return item.entry, true
}

// Put stores entry under key, overwriting any existing value and evicting
// the least-recently-used entry once the bound is reached.
func (c *Cache) Put(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		item := el.Value.(*cacheItem)
		item.entry = entry
		item.deadline = deadline
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheItem).key)
	}

	el := c.order.PushFront(&cacheItem{key: key, entry: entry, deadline: deadline})
	c.entries[key] = el
}

// Len returns the number of cached entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
