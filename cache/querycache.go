package cache

import (
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/hiercache/ttl"
)

// ResultMeta describes a cached query result. IsComplete drives TTL
// selection: a complete collection result outlives a faceted or partial one,
// which is the primary defense against serving a partial result set long
// after it has gone stale.
type ResultMeta struct {
	QueryType  string
	IsComplete bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Filter     string
	Params     map[string]any
}

// QueryResult is a cached result set: the ordered item keys it contains plus
// its metadata. Values live in the item layer; the result only records
// membership.
type QueryResult struct {
	ItemKeys []string
	Meta     ResultMeta
}

// QueryCache is the query-fingerprint-to-result-set layer.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: misses are (zero, false); an unparseable invalidation pattern
//   degrades to substring matching instead of failing.
type QueryCache struct {
	mu      sync.RWMutex
	results map[string]QueryResult
	calc    *ttl.Calculator
	bytes   int64
	now     func() time.Time
}

// QueryCacheOption customizes a QueryCache.
type QueryCacheOption func(*QueryCache)

// WithQueryClock overrides the clock, for tests.
func WithQueryClock(now func() time.Time) QueryCacheOption {
	return func(c *QueryCache) { c.now = now }
}

// NewQueryCache builds the query layer. The calculator decides each
// result's TTL from its query type and completeness.
func NewQueryCache(calc *ttl.Calculator, opts ...QueryCacheOption) (*QueryCache, error) {
	if calc == nil {
		return nil, ErrNilBackend
	}
	c := &QueryCache{
		results: make(map[string]QueryResult),
		calc:    calc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetResult stores a result set under its fingerprint. CreatedAt and
// ExpiresAt are stamped here; completeness picks the TTL.
func (c *QueryCache) SetResult(fingerprint string, result QueryResult) error {
	if fingerprint == "" {
		return ErrEmptyKey
	}

	res, err := c.calc.Explain(ttl.Context{
		QueryType:  result.Meta.QueryType,
		IsComplete: result.Meta.IsComplete,
	})
	if err != nil {
		return err
	}

	now := c.now()
	result.Meta.CreatedAt = now
	result.Meta.ExpiresAt = now.Add(res.FinalTTL)
	result.ItemKeys = slices.Clone(result.ItemKeys)

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.results[fingerprint]; ok {
		c.bytes -= resultBytes(fingerprint, prev)
	}
	c.results[fingerprint] = result
	c.bytes += resultBytes(fingerprint, result)
	return nil
}

// GetResult retrieves a result set. Expired results count as absent and are
// deleted lazily.
func (c *QueryCache) GetResult(fingerprint string) (QueryResult, bool) {
	c.mu.RLock()
	result, ok := c.results[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return QueryResult{}, false
	}
	if !c.now().Before(result.Meta.ExpiresAt) {
		c.mu.Lock()
		if cur, still := c.results[fingerprint]; still && !c.now().Before(cur.Meta.ExpiresAt) {
			c.bytes -= resultBytes(fingerprint, cur)
			delete(c.results, fingerprint)
		}
		c.mu.Unlock()
		return QueryResult{}, false
	}
	return result, true
}

// HasResult reports whether a live result exists for the fingerprint.
func (c *QueryCache) HasResult(fingerprint string) bool {
	_, ok := c.GetResult(fingerprint)
	return ok
}

// InvalidatePattern drops every result whose fingerprint matches the
// pattern. The pattern is tried as a regular expression first; if it does
// not compile, plain substring matching is used rather than failing the
// invalidation.
func (c *QueryCache) InvalidatePattern(pattern string) int {
	match := func(fp string) bool { return strings.Contains(fp, pattern) }
	if re, err := regexp.Compile(pattern); err == nil {
		match = re.MatchString
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for fp, result := range c.results {
		if match(fp) {
			c.bytes -= resultBytes(fp, result)
			delete(c.results, fp)
			removed++
		}
	}
	return removed
}

// FindQueriesContainingItem returns the fingerprints of all results whose
// membership includes the key. This is the fan-out scan from one item
// mutation to the query layer.
func (c *QueryCache) FindQueriesContainingItem(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var fps []string
	for fp, result := range c.results {
		if slices.Contains(result.ItemKeys, key) {
			fps = append(fps, fp)
		}
	}
	return fps
}

// InvalidateQueriesContainingItem drops every result whose membership
// includes the key and returns how many were dropped. Results not containing
// the key are untouched.
func (c *QueryCache) InvalidateQueriesContainingItem(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for fp, result := range c.results {
		if slices.Contains(result.ItemKeys, key) {
			c.bytes -= resultBytes(fp, result)
			delete(c.results, fp)
			removed++
		}
	}
	return removed
}

// Clear drops all results. Idempotent.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[string]QueryResult)
	c.bytes = 0
}

// Len returns the number of stored results, expired included.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Bytes returns the bookkeeping byte estimate for the query layer. It is
// tracked separately from item bytes so capacity-aware eviction never
// charges item quota for result-set bookkeeping.
func (c *QueryCache) Bytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

// clone returns an independent copy sharing no mutable state.
func (c *QueryCache) clone() *QueryCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &QueryCache{
		results: make(map[string]QueryResult, len(c.results)),
		calc:    c.calc,
		bytes:   c.bytes,
		now:     c.now,
	}
	for fp, result := range c.results {
		result.ItemKeys = slices.Clone(result.ItemKeys)
		out.results[fp] = result
	}
	return out
}

// resultBytes estimates the bookkeeping cost of one stored result.
func resultBytes(fingerprint string, r QueryResult) int64 {
	n := int64(len(fingerprint))
	for _, k := range r.ItemKeys {
		n += int64(len(k))
	}
	return n
}
