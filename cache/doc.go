// Package cache provides the two-layer cache engine: an item layer with
// per-item TTL and self-healing expiry, a query layer whose result sets
// carry completeness-aware TTLs, and a TwoLayerCache facade that invalidates
// every query result referencing a key whenever that key is written or
// deleted.
package cache
