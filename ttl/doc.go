// Package ttl computes and tracks time-to-live for cached entries.
//
// Calculator is a pure function from context (item type, or query type plus
// completeness) to base TTL, peak-hour-adjusted TTL, and the 80% staleness
// threshold that drives stale-while-revalidate. Manager tracks per-key
// deadlines through an injected store.MetadataProvider and runs the optional
// periodic sweep; it detects expiry but never deletes.
package ttl
