package store

import (
	"sync"
)

// CacheMap is the in-memory storage backend: a key table with per-key
// metadata and running size counters. It implements MetadataProvider.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Invariant: the size counters always equal the item count and the sum of
//   tracked metadata sizes.
// - Ownership: a CacheMap exclusively owns its tables; Clone yields an
//   independent copy sharing no mutable state.
type CacheMap struct {
	mu      sync.RWMutex
	entries map[string]Entry
	size    Size
	limits  Limits
}

// NewCacheMap creates an empty backend with the given limits.
func NewCacheMap(limits Limits) *CacheMap {
	return &CacheMap{
		entries: make(map[string]Entry),
		limits:  limits,
	}
}

// Capabilities reports what this backend supports.
func (c *CacheMap) Capabilities() Capabilities {
	return Capabilities{
		SupportsTTL:      true,
		SupportsEviction: true,
		Persistent:       false,
	}
}

// Get returns the entry for key.
func (c *CacheMap) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Set stores an entry, replacing any previous one and adjusting the size
// counters by the delta. An item that alone exceeds the byte limit can never
// fit and fails with ErrQuotaExceeded; making room for items that can fit is
// the eviction layer's job, not the backend's.
func (c *CacheMap) Set(key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limits.MaxSizeBytes > 0 && e.meta.SizeBytes > c.limits.MaxSizeBytes {
		return ErrQuotaExceeded
	}

	if prev, ok := c.entries[key]; ok {
		c.size.SizeBytes -= prev.meta.SizeBytes
	} else {
		c.size.ItemCount++
	}
	c.size.SizeBytes += e.meta.SizeBytes
	c.entries[key] = e
	return nil
}

// Delete removes an entry. Idempotent; reports whether anything was removed.
func (c *CacheMap) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(key)
}

func (c *CacheMap) deleteLocked(key string) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.size.ItemCount--
	c.size.SizeBytes -= e.meta.SizeBytes
	delete(c.entries, key)
	return true
}

// Query returns the keys of entries matched by the predicate.
func (c *CacheMap) Query(match func(key string, e Entry) bool) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for k, e := range c.entries {
		if match(k, e) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clear removes all entries and resets the counters. Idempotent.
func (c *CacheMap) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.size = Size{}
}

// Len returns the number of entries, placeholders included.
func (c *CacheMap) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clone returns an independent deep copy of the backend.
func (c *CacheMap) Clone() *CacheMap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &CacheMap{
		entries: make(map[string]Entry, len(c.entries)),
		size:    c.size,
		limits:  c.limits,
	}
	for k, e := range c.entries {
		if e.occupied {
			v := make([]byte, len(e.value))
			copy(v, e.value)
			e.value = v
		}
		out.entries[k] = e
	}
	return out
}

// GetMetadata implements MetadataProvider.
func (c *CacheMap) GetMetadata(key string) (ItemMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return ItemMetadata{}, false
	}
	return e.meta, true
}

// SetMetadata implements MetadataProvider. Updating an occupied entry keeps
// its value; an unknown key gets a metadata-only placeholder.
func (c *CacheMap) SetMetadata(key string, meta ItemMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.size.SizeBytes += meta.SizeBytes - e.meta.SizeBytes
		e.meta = meta
		c.entries[key] = e
		return
	}
	c.size.ItemCount++
	c.size.SizeBytes += meta.SizeBytes
	c.entries[key] = MetadataOnly(meta)
}

// DeleteMetadata implements MetadataProvider. Metadata exists iff the entry
// exists, so this removes the whole entry.
func (c *CacheMap) DeleteMetadata(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
}

// GetAllMetadata implements MetadataProvider; returns a snapshot.
func (c *CacheMap) GetAllMetadata() map[string]ItemMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]ItemMetadata, len(c.entries))
	for k, e := range c.entries {
		out[k] = e.meta
	}
	return out
}

// ClearMetadata implements MetadataProvider. Equivalent to Clear, since
// entries cannot outlive their metadata.
func (c *CacheMap) ClearMetadata() {
	c.Clear()
}

// GetCurrentSize implements MetadataProvider.
func (c *CacheMap) GetCurrentSize() Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// GetSizeLimits implements MetadataProvider.
func (c *CacheMap) GetSizeLimits() Limits {
	return c.limits
}

// Ensure CacheMap implements MetadataProvider
var _ MetadataProvider = (*CacheMap)(nil)
