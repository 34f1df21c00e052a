package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/hiercache/eviction"
	"github.com/jonwraymond/hiercache/events"
	"github.com/jonwraymond/hiercache/key"
	"github.com/jonwraymond/hiercache/observe"
	"github.com/jonwraymond/hiercache/store"
	"github.com/jonwraymond/hiercache/ttl"
)

// defaultCapacityHint sizes eviction bookkeeping when no item limit is
// configured.
const defaultCapacityHint = 1024

// TwoLayerCache composes the item layer, the query layer, and the storage
// backend behind one facade. Its defining behavior is write fan-out: every
// item mutation invalidates every stored query result referencing that key,
// so no subsequently served result contains stale data for it.
//
// Contract:
// - Concurrency: one logical mutator at a time; all cross-cutting state
//   (metadata, size counters, eviction bookkeeping, query invalidation)
//   changes within one locked section, so readers see pre- or post-write
//   state, never a partial one.
// - Errors: backend failures propagate unchanged; misses are (nil, false).
// - Shutdown: Close is idempotent and never blocks.
type TwoLayerCache struct {
	mu  sync.Mutex
	cfg Config

	name    string
	backend *store.CacheMap
	items   *ItemCache
	queries *QueryCache
	evict   *eviction.Manager
	ttlMgr  *ttl.Manager
	bus     *events.Bus
	inst    *observe.Instrumentor
	logger  observe.Logger
	now     func() time.Time

	// keys maps each canonical fingerprint back to its structured key, so
	// location invalidation can see the location chain again.
	keys map[string]key.Key

	// opts are the construction options, kept so Clone rebuilds with the
	// same calculator, bus, instrumentor and cleanup settings.
	opts []Option

	closeOnce sync.Once
}

// Option customizes a TwoLayerCache.
type Option func(*TwoLayerCache) error

// WithName names the cache instance for telemetry.
func WithName(name string) Option {
	return func(c *TwoLayerCache) error { c.name = name; return nil }
}

// WithLogger injects the logging context. Defaults to a nop logger.
func WithLogger(logger observe.Logger) Option {
	return func(c *TwoLayerCache) error { c.logger = logger; return nil }
}

// WithInstrumentor injects tracing/metrics/logging for operations.
func WithInstrumentor(inst *observe.Instrumentor) Option {
	return func(c *TwoLayerCache) error { c.inst = inst; return nil }
}

// WithBus injects an event bus shared with other components.
func WithBus(bus *events.Bus) Option {
	return func(c *TwoLayerCache) error { c.bus = bus; return nil }
}

// WithCalculator overrides the query-TTL calculator configuration.
func WithCalculator(cfg ttl.CalculatorConfig) Option {
	return func(c *TwoLayerCache) error {
		calc, err := ttl.NewCalculator(cfg)
		if err != nil {
			return err
		}
		queries, err := NewQueryCache(calc, WithQueryClock(c.now))
		if err != nil {
			return err
		}
		c.queries = queries
		return nil
	}
}

// WithAutoCleanup starts a periodic expiry sweep at the given interval.
func WithAutoCleanup(interval time.Duration) Option {
	return func(c *TwoLayerCache) error {
		mgr, err := ttl.NewManager(ttl.ManagerConfig{
			DefaultTTL:       c.cfg.TTL,
			AutoCleanup:      true,
			CleanupInterval:  interval,
			ValidateOnAccess: true,
		})
		if err != nil {
			return err
		}
		c.ttlMgr = mgr
		return nil
	}
}

// WithEvictionConfig tunes the eviction strategy named by the Config.
func WithEvictionConfig(ecfg eviction.Config) Option {
	return func(c *TwoLayerCache) error {
		if c.cfg.EvictionPolicy == "" {
			return nil
		}
		strategy, err := eviction.New(c.cfg.EvictionPolicy, c.capacityHint(), &ecfg)
		if err != nil {
			return err
		}
		c.evict = eviction.NewManager(strategy)
		return nil
	}
}

// New builds a TwoLayerCache from the recognized core configuration.
// Unknown eviction policy names and non-positive required values fail
// construction immediately.
func New(cfg Config, opts ...Option) (*TwoLayerCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &TwoLayerCache{
		cfg:     cfg,
		name:    "hiercache",
		backend: store.NewCacheMap(store.Limits{MaxItems: cfg.MaxItems, MaxSizeBytes: cfg.MaxSizeBytes}),
		logger:  observe.NopLogger(),
		now:     time.Now,
		keys:    make(map[string]key.Key),
	}

	ttlMgr, err := ttl.NewManager(ttl.ManagerConfig{
		DefaultTTL:       cfg.TTL,
		ValidateOnAccess: true,
	})
	if err != nil {
		return nil, err
	}
	c.ttlMgr = ttlMgr

	calc, err := ttl.NewCalculator(ttl.DefaultCalculatorConfig())
	if err != nil {
		return nil, err
	}
	c.queries, err = NewQueryCache(calc)
	if err != nil {
		return nil, err
	}

	if cfg.EvictionPolicy != "" {
		strategy, err := eviction.New(cfg.EvictionPolicy, c.capacityHint(), nil)
		if err != nil {
			return nil, fmt.Errorf("cache: building eviction strategy: %w", err)
		}
		c.evict = eviction.NewManager(strategy)
	} else {
		c.evict = eviction.NewDisabledManager()
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.opts = opts

	if c.inst == nil {
		c.inst = observe.NewInstrumentor(nil, nil, c.logger)
	}
	if c.bus == nil {
		c.bus = events.NewBus(c.logger)
	}

	c.items, err = NewItemCache(c.backend, c.ttlMgr, cfg.TTL)
	if err != nil {
		return nil, err
	}

	c.ttlMgr.StartCleanup(c.backend, c.removeExpired)
	return c, nil
}

func (c *TwoLayerCache) capacityHint() int {
	if c.cfg.MaxItems > 0 {
		return c.cfg.MaxItems
	}
	return defaultCapacityHint
}

func (c *TwoLayerCache) meta(op, fp string) observe.OpMeta {
	return observe.OpMeta{Cache: c.name, Op: op, Key: fp, Policy: c.evict.Policy()}
}

// Set writes an item and fans out: every stored query result whose
// membership contains the key is invalidated in the same operation.
func (c *TwoLayerCache) Set(ctx context.Context, k key.Key, value []byte) error {
	return c.SetWithTTL(ctx, k, value, 0)
}

// SetWithTTL is Set with an explicit per-item TTL overriding the default.
func (c *TwoLayerCache) SetWithTTL(ctx context.Context, k key.Key, value []byte, itemTTL time.Duration) error {
	fp, err := key.Fingerprint(k)
	if err != nil {
		return err
	}
	return c.inst.Do(ctx, c.meta("set", fp), func(ctx context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()

		ectx := eviction.Context{
			CurrentSize: c.backend.GetCurrentSize(),
			Limits:      c.backend.GetSizeLimits(),
			NewItemSize: int64(len(value)),
		}
		if entry, ok := c.backend.Get(fp); ok && entry.IsOccupied() {
			// An overwrite does not grow the item count and releases the
			// old value's bytes; it must not evict a live peer.
			ectx.Replacing = true
			old, _ := entry.Value()
			ectx.ReplacedSize = int64(len(old))
		}
		c.evictForLocked(ctx, ectx)

		if err := c.items.Set(ctx, fp, value, itemTTL); err != nil {
			return err
		}
		c.keys[fp] = k
		c.evict.OnItemAdded(fp)

		if n := c.queries.InvalidateQueriesContainingItem(fp); n > 0 {
			c.inst.Metrics().AddInvalidations(ctx, c.name, int64(n))
		}
		c.bus.Publish(events.Event{Kind: events.KindSet, Key: fp})
		return nil
	})
}

// Get reads an item; expired entries count as absent and are removed with
// their bookkeeping.
func (c *TwoLayerCache) Get(ctx context.Context, k key.Key) ([]byte, bool) {
	fp, err := key.Fingerprint(k)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	value, ok := c.items.Get(ctx, fp)
	if ok {
		c.evict.OnItemAccessed(fp)
	} else if _, tracked := c.keys[fp]; tracked {
		if _, still := c.backend.Get(fp); !still {
			// The item layer lazily removed an expired entry.
			c.dropBookkeepingLocked(ctx, fp, events.KindExpire)
		}
	}
	c.mu.Unlock()

	c.inst.Metrics().RecordLookup(ctx, c.meta("get", fp), ok)
	return value, ok
}

// Peek returns the raw value and timestamps with no expiry side effects,
// for stale-while-revalidate callers.
func (c *TwoLayerCache) Peek(k key.Key) ([]byte, store.ItemMetadata, bool) {
	fp, err := key.Fingerprint(k)
	if err != nil {
		return nil, store.ItemMetadata{}, false
	}
	return c.items.Peek(fp)
}

// IsStale reports whether the item crossed its 80% staleness threshold.
func (c *TwoLayerCache) IsStale(k key.Key) bool {
	fp, err := key.Fingerprint(k)
	if err != nil {
		return false
	}
	return c.items.IsStale(fp)
}

// Has reports whether a live item exists for the key.
func (c *TwoLayerCache) Has(k key.Key) bool {
	fp, err := key.Fingerprint(k)
	if err != nil {
		return false
	}
	return c.items.Has(fp)
}

// Delete fans out exactly like Set - every query result referencing the key
// is invalidated - then removes the item. Idempotent.
func (c *TwoLayerCache) Delete(ctx context.Context, k key.Key) error {
	fp, err := key.Fingerprint(k)
	if err != nil {
		return err
	}
	return c.inst.Do(ctx, c.meta("delete", fp), func(ctx context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()

		if n := c.queries.InvalidateQueriesContainingItem(fp); n > 0 {
			c.inst.Metrics().AddInvalidations(ctx, c.name, int64(n))
		}
		c.items.Delete(ctx, fp)
		c.dropBookkeepingLocked(ctx, fp, events.KindDelete)
		return nil
	})
}

// SetQueryResult caches a result set under its fingerprint; the TTL follows
// the result's query type and completeness.
func (c *TwoLayerCache) SetQueryResult(ctx context.Context, fingerprint string, result QueryResult) error {
	return c.inst.Do(ctx, c.meta("set-query", fingerprint), func(ctx context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.queries.SetResult(fingerprint, result)
	})
}

// GetQueryResult retrieves a result set, lazily expiring it on read.
func (c *TwoLayerCache) GetQueryResult(ctx context.Context, fingerprint string) (QueryResult, bool) {
	c.mu.Lock()
	result, ok := c.queries.GetResult(fingerprint)
	c.mu.Unlock()
	c.inst.Metrics().RecordLookup(ctx, c.meta("get-query", fingerprint), ok)
	return result, ok
}

// HasQueryResult reports whether a live result exists for the fingerprint.
func (c *TwoLayerCache) HasQueryResult(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries.HasResult(fingerprint)
}

// InvalidateQueryPattern drops results by fingerprint pattern: regex when it
// compiles, substring otherwise.
func (c *TwoLayerCache) InvalidateQueryPattern(ctx context.Context, pattern string) int {
	c.mu.Lock()
	n := c.queries.InvalidatePattern(pattern)
	c.mu.Unlock()
	if n > 0 {
		c.inst.Metrics().AddInvalidations(ctx, c.name, int64(n))
	}
	return n
}

// InvalidateLocation invalidates by location path. An empty path
// invalidates every primary key. A non-empty path invalidates the items
// under that prefix and then clears the entire query-result store: the
// conservative choice, correctness over precision, preserving the guarantee
// that no stale query result is ever served. A location-aware inverted
// index could tighten this without giving up the guarantee.
func (c *TwoLayerCache) InvalidateLocation(ctx context.Context, path []key.Locator) (int, error) {
	var removed int
	err := c.inst.Do(ctx, c.meta("invalidate-location", ""), func(ctx context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()

		var victims []string
		for fp, k := range c.keys {
			if len(path) == 0 {
				if k.Kind() == key.KindPrimary {
					victims = append(victims, fp)
				}
				continue
			}
			locs := k.Locations()
			if len(locs) >= len(path) && key.MatchLocation(path, locs[:len(path)]) {
				victims = append(victims, fp)
			}
		}

		for _, fp := range victims {
			c.items.Delete(ctx, fp)
			c.dropBookkeepingLocked(ctx, fp, events.KindDelete)
		}
		removed = len(victims)

		if len(path) > 0 {
			if n := c.queries.Len(); n > 0 {
				c.inst.Metrics().AddInvalidations(ctx, c.name, int64(n))
			}
			c.queries.Clear()
		} else {
			for _, fp := range victims {
				if n := c.queries.InvalidateQueriesContainingItem(fp); n > 0 {
					c.inst.Metrics().AddInvalidations(ctx, c.name, int64(n))
				}
			}
		}
		return nil
	})
	return removed, err
}

// Stats summarizes the item layer.
func (c *TwoLayerCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Stats()
}

// ItemBytes returns the bytes held by the item layer.
func (c *TwoLayerCache) ItemBytes() int64 {
	return c.backend.GetCurrentSize().SizeBytes
}

// QueryBytes returns the query layer's bookkeeping byte estimate, tracked
// separately from item bytes for capacity-aware eviction.
func (c *TwoLayerCache) QueryBytes() int64 {
	return c.queries.Bytes()
}

// Policy returns the active eviction policy name, for diagnostics.
func (c *TwoLayerCache) Policy() string { return c.evict.Policy() }

// Events returns the cache's event bus for subscribing to set/delete/evict
// /expire hooks.
func (c *TwoLayerCache) Events() *events.Bus { return c.bus }

// Cleanup removes every expired item and returns the removed count. Calling
// it twice in a row reports zero the second time.
func (c *TwoLayerCache) Cleanup(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	expired := c.ttlMgr.FindExpiredItems(c.backend)
	for _, fp := range expired {
		c.items.Delete(ctx, fp)
		c.dropBookkeepingLocked(ctx, fp, events.KindExpire)
	}
	if n := len(expired); n > 0 {
		c.inst.Metrics().AddExpirations(ctx, c.name, int64(n))
	}
	return len(expired)
}

// Clear empties both layers. Idempotent.
func (c *TwoLayerCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Clear()
	c.queries.Clear()
	c.keys = make(map[string]key.Key)
}

// Clone returns an independent copy sharing no mutable state with the
// original. The clone is built with the original's construction options, so
// an injected bus, instrumentor, calculator or cleanup interval carries
// over. It gets a fresh eviction strategy of the same policy;
// recency/frequency bookkeeping is rebuilt from its own traffic.
func (c *TwoLayerCache) Clone() (*TwoLayerCache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := append([]Option{WithName(c.name), WithLogger(c.logger)}, c.opts...)
	out, err := New(c.cfg, opts...)
	if err != nil {
		return nil, err
	}
	out.backend = c.backend.Clone()
	out.queries = c.queries.clone()
	out.items, err = NewItemCache(out.backend, out.ttlMgr, c.cfg.TTL)
	if err != nil {
		return nil, err
	}
	for fp, k := range c.keys {
		out.keys[fp] = k
		out.evict.OnItemAdded(fp)
	}
	return out, nil
}

// Close stops background work. Idempotent; never blocks shutdown.
func (c *TwoLayerCache) Close() {
	c.closeOnce.Do(func() {
		c.ttlMgr.Destroy()
	})
}

// evictForLocked makes room for the incoming write described by ectx by
// delegating victim selection to the strategy and removing the victims with
// full fan-out.
func (c *TwoLayerCache) evictForLocked(ctx context.Context, ectx eviction.Context) {
	if !ectx.ExceedsCapacity() {
		return
	}
	victims := c.evict.SelectForEviction(c.backend, ectx)
	for _, fp := range victims {
		if n := c.queries.InvalidateQueriesContainingItem(fp); n > 0 {
			c.inst.Metrics().AddInvalidations(ctx, c.name, int64(n))
		}
		c.backend.Delete(fp)
		c.dropBookkeepingLocked(ctx, fp, events.KindEvict)
	}
	if n := len(victims); n > 0 {
		c.inst.Metrics().AddEvictions(ctx, c.name, int64(n))
	}
}

// dropBookkeepingLocked forgets a key everywhere but the item layer (which
// the caller has already handled) and publishes the mutation event.
func (c *TwoLayerCache) dropBookkeepingLocked(_ context.Context, fp string, kind events.Kind) {
	delete(c.keys, fp)
	c.evict.OnItemRemoved(fp)
	e := events.Event{Kind: kind, Key: fp}
	if kind == events.KindEvict {
		e.Reason = c.evict.Policy()
	}
	c.bus.Publish(e)
}

// removeExpired is the periodic-sweep callback: the sweep detects, the
// cache deletes.
func (c *TwoLayerCache) removeExpired(keys []string) {
	ctx := context.Background()
	c.mu.Lock()
	for _, fp := range keys {
		c.backend.Delete(fp)
		c.dropBookkeepingLocked(ctx, fp, events.KindExpire)
	}
	c.mu.Unlock()
	c.inst.Metrics().AddExpirations(ctx, c.name, int64(len(keys)))
}
