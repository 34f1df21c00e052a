package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/hiercache/store"
	"github.com/jonwraymond/hiercache/ttl"
)

// ItemCache is the key-to-item layer: a CacheMap backend plus per-item TTL
// tracking. Expired entries are treated as absent and lazily deleted on
// read, so the layer heals itself without waiting for a sweep.
//
// Contract:
// - Concurrency: safe for concurrent use; a per-key singleflight guard
//   prevents duplicate concurrent expiry cleanup of the same key.
// - Errors: misses are (nil, false), never an error; backend failures
//   propagate unchanged.
type ItemCache struct {
	backend    *store.CacheMap
	ttlMgr     *ttl.Manager
	defaultTTL time.Duration
	now        func() time.Time
	expiry     singleflight.Group
}

// ItemCacheOption customizes an ItemCache.
type ItemCacheOption func(*ItemCache)

// WithItemClock overrides the clock, for tests.
func WithItemClock(now func() time.Time) ItemCacheOption {
	return func(c *ItemCache) { c.now = now }
}

// NewItemCache builds the item layer over a backend. The TTL manager owns
// all expiry decisions; defaultTTL applies to items stored without one.
func NewItemCache(backend *store.CacheMap, ttlMgr *ttl.Manager, defaultTTL time.Duration, opts ...ItemCacheOption) (*ItemCache, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if defaultTTL < 0 {
		return nil, ErrInvalidTTL
	}
	c := &ItemCache{
		backend:    backend,
		ttlMgr:     ttlMgr,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Set stores an item. The expiry is always re-derived from now, so an
// overwrite refreshes the TTL. A metadata-only placeholder's pre-seeded TTL
// is honored when the caller supplies none.
func (c *ItemCache) Set(_ context.Context, key string, value []byte, itemTTL time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if itemTTL < 0 {
		return ErrInvalidTTL
	}

	now := c.now()
	effective := itemTTL
	if effective == 0 {
		if prev, ok := c.backend.GetMetadata(key); ok && prev.TTL > 0 {
			effective = prev.TTL // TTL pre-seeded before the item existed
		} else {
			effective = c.defaultTTL
		}
	}

	meta := store.ItemMetadata{
		Key:            key,
		AddedAt:        now,
		LastAccessedAt: now,
		SizeBytes:      int64(len(value)),
	}
	if err := c.backend.Set(key, store.Occupied(value, meta)); err != nil {
		return err
	}
	c.ttlMgr.OnItemAdded(key, c.backend, effective)
	return nil
}

// Get retrieves an item. An expired entry counts as absent and is deleted
// lazily; metadata-only placeholders never serve. A hit bumps the access
// bookkeeping.
func (c *ItemCache) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.backend.Get(key)
	if !ok {
		return nil, false
	}
	value, occupied := entry.Value()
	if !occupied {
		return nil, false
	}

	if !c.ttlMgr.ValidateItem(key, c.backend) {
		c.deleteExpired(key)
		return nil, false
	}

	meta := entry.Metadata()
	meta.LastAccessedAt = c.now()
	meta.AccessCount++
	c.backend.SetMetadata(key, meta)
	return value, true
}

// Peek returns the raw value and metadata without expiry checks or access
// bookkeeping. Stale-while-revalidate callers use it to serve a value past
// its staleness threshold while a refresh runs elsewhere.
func (c *ItemCache) Peek(key string) ([]byte, store.ItemMetadata, bool) {
	entry, ok := c.backend.Get(key)
	if !ok {
		return nil, store.ItemMetadata{}, false
	}
	value, occupied := entry.Value()
	if !occupied {
		return nil, store.ItemMetadata{}, false
	}
	return value, entry.Metadata(), true
}

// IsStale reports whether the item has crossed its staleness threshold: 80%
// of its TTL elapsed. A stale item is still served; staleness is the signal
// to revalidate in the background.
func (c *ItemCache) IsStale(key string) bool {
	entry, ok := c.backend.Get(key)
	if !ok || !entry.IsOccupied() {
		return false
	}
	meta := entry.Metadata()
	if meta.TTL <= 0 {
		return false
	}
	return !c.now().Before(meta.AddedAt.Add(ttl.StaleAfter(meta.TTL)))
}

// Has reports whether a live item exists for the key, without touching the
// access bookkeeping.
func (c *ItemCache) Has(key string) bool {
	entry, ok := c.backend.Get(key)
	if !ok || !entry.IsOccupied() {
		return false
	}
	return c.ttlMgr.ValidateItem(key, c.backend)
}

// Delete removes an item. Idempotent; reports whether anything was removed.
func (c *ItemCache) Delete(_ context.Context, key string) bool {
	return c.backend.Delete(key)
}

// Clear removes all items. Idempotent.
func (c *ItemCache) Clear() {
	c.backend.Clear()
}

// Stats counts total, valid, and expired entries.
func (c *ItemCache) Stats() Stats {
	var s Stats
	now := c.now()
	for _, meta := range c.backend.GetAllMetadata() {
		s.Total++
		if !meta.ExpiresAt.IsZero() && !now.Before(meta.ExpiresAt) {
			s.Expired++
		} else {
			s.Valid++
		}
	}
	return s
}

// Cleanup removes every expired entry and returns the removed count. A
// second call right after reports zero.
func (c *ItemCache) Cleanup() int {
	removed := 0
	for _, key := range c.ttlMgr.FindExpiredItems(c.backend) {
		if c.deleteExpired(key) {
			removed++
		}
	}
	return removed
}

// deleteExpired removes an expired key exactly once even when several
// readers race on it; the singleflight group collapses concurrent cleanup
// of the same key into one deletion.
func (c *ItemCache) deleteExpired(key string) bool {
	deleted, _, _ := c.expiry.Do(key, func() (any, error) {
		return c.backend.Delete(key), nil
	})
	return deleted.(bool)
}
