// Package store provides the in-memory storage backend for the cache engine.
//
// A CacheMap holds the key table, per-key metadata, and running size
// counters, and implements the MetadataProvider contract consumed by the
// eviction and TTL layers. Backends advertise support via a Capabilities
// flags struct rather than being probed at runtime.
package store
