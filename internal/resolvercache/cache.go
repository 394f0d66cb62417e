// Package resolvercache caches resource-path → entity-id lookups so repeated
// natural-key resolution during a run hits the server once. The executor sees
// every mutation, so invalidation is exact for the mutated path; the derived
// parent is dropped too because a mutation changes what the parent contains.
package resolvercache

import (
	"strings"
	"sync"
)

// Cache maps (path, object type) pairs to entity ids. Safe for concurrent
// use: the state loader reads while the executor coordinator invalidates.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]int64 // path → object type → id
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]map[string]int64)}
}

// Get returns the cached id for a path and object type. Zero means a miss.
func (c *Cache) Get(path, objectType string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types, ok := c.entries[path]
	if !ok {
		return 0, false
	}
	id, ok := types[objectType]
	return id, ok
}

// Put records a resolved id.
func (c *Cache) Put(path, objectType string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	types, ok := c.entries[path]
	if !ok {
		types = make(map[string]int64)
		c.entries[path] = types
	}
	types[objectType] = id
}

// Invalidate drops the (path, object type) entry and every entry under the
// derived parent path. The parent's type is unknown at this point, so all of
// its types go; stale ids are worse than re-resolving.
func (c *Cache) Invalidate(path, objectType string) {
	parent := ParentPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if types, ok := c.entries[path]; ok {
		delete(types, objectType)
		if len(types) == 0 {
			delete(c.entries, path)
		}
	}
	if parent != "" && parent != path {
		delete(c.entries, parent)
	}
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ParentPath derives the parent of a resource path. A path whose last
// segment is all digits is a CIDR-in-config form ("config/10.0.0.0/8"), and
// its parent is the config head; otherwise the parent is everything before
// the last separator. Paths without a separator have no parent.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	if isDigits(path[idx+1:]) {
		head, _, _ := strings.Cut(path, "/")
		return head
	}
	return path[:idx]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
