package session

import (
	"sync"
	"sync/atomic"

	"github.com/funvibe/fir/internal/symbols"
)

// Cache holds the resolution results of one session: annotated trees per
// file and name lookups answered by dependency sessions, including
// negative ("no such name") entries. It is passed explicitly to whoever
// fills it and is emptied through its invalidation methods only.
type Cache struct {
	mu      sync.RWMutex
	trees   map[string]any
	lookups map[string][]*symbols.Symbol

	hits, misses atomic.Int64
}

// CacheStats is a point-in-time summary of a cache.
type CacheStats struct {
	Trees    int
	Lookups  int
	Negative int
	Hits     int64
	Misses   int64
}

func NewCache() *Cache {
	return &Cache{
		trees:   make(map[string]any),
		lookups: make(map[string][]*symbols.Symbol),
	}
}

// Tree returns the cached annotated tree of file.
func (c *Cache) Tree(file string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trees[file]
	c.count(ok)
	return t, ok
}

func (c *Cache) PutTree(file string, tree any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees[file] = tree
}

// Lookup returns a cached cross-module lookup. A hit with no symbols is a
// negative entry.
func (c *Cache) Lookup(qualified string) ([]*symbols.Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	syms, ok := c.lookups[qualified]
	c.count(ok)
	return syms, ok
}

func (c *Cache) PutLookup(qualified string, syms []*symbols.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups[qualified] = syms
}

// Forget drops the lookup entry for a name that has just been declared.
func (c *Cache) Forget(qualified string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lookups, qualified)
}

// DropTrees removes the annotated trees of the given files.
func (c *Cache) DropTrees(files ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		delete(c.trees, f)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees = make(map[string]any)
	c.lookups = make(map[string][]*symbols.Symbol)
}

func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := CacheStats{
		Trees:   len(c.trees),
		Lookups: len(c.lookups),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
	for _, syms := range c.lookups {
		if len(syms) == 0 {
			st.Negative++
		}
	}
	return st
}

func (c *Cache) count(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}
