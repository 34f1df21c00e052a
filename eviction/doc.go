// Package eviction provides pluggable cache eviction strategies.
//
// Seven policies are available: LRU, MRU, LFU (with an optional decayed
// count-min sketch mode), FIFO, Random, ARC, and TwoQueue. Strategies read
// per-key metadata through the store.MetadataProvider contract and are
// constructed by policy name through New; a Manager wraps one strategy for
// the cache to delegate to.
package eviction
