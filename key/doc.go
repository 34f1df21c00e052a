// Package key normalizes hierarchical cache keys.
//
// It provides a Key value with primary and composite variants, a canonical
// string form under which numeric and textual id encodings of the same
// logical value compare equal, SHA-256-based fingerprinting, and
// prefix-semantics location matching.
package key
