package store

import (
	"errors"
	"time"
)

// Sentinel errors for backend operations.
var (
	ErrQuotaExceeded = errors.New("store: item exceeds backend size limit")
)

// Size is the current occupancy of a backend.
type Size struct {
	ItemCount int
	SizeBytes int64
}

// Limits are the configured capacity bounds of a backend. Zero means
// unlimited for that dimension.
type Limits struct {
	MaxItems     int
	MaxSizeBytes int64
}

// ItemMetadata is the per-key bookkeeping record. It exists iff the item
// exists, or a metadata-only placeholder was explicitly created. Every
// access and write mutates it.
type ItemMetadata struct {
	Key            string
	AddedAt        time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	SizeBytes      int64

	// ExpiresAt is the hard expiry deadline; zero means no expiry was set.
	ExpiresAt time.Time

	// TTL is the duration the expiry was derived from; zero means none.
	TTL time.Duration
}

// MetadataProvider is the contract consumed by the eviction and TTL layers.
// A CacheMap implements it; tests may substitute fakes.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Ownership: GetAllMetadata returns a snapshot; mutating it has no effect
//   on the provider.
// - Errors: lookups report absence via the bool return, never an error.
type MetadataProvider interface {
	GetMetadata(key string) (ItemMetadata, bool)
	SetMetadata(key string, meta ItemMetadata)
	DeleteMetadata(key string)
	GetAllMetadata() map[string]ItemMetadata
	ClearMetadata()
	GetCurrentSize() Size
	GetSizeLimits() Limits
}

// Capabilities describes what a backend supports, so composing code can
// branch on flags instead of probing behavior at runtime.
type Capabilities struct {
	SupportsTTL      bool
	SupportsEviction bool
	Persistent       bool
}

// Entry is a tagged slot in the backend: either an occupied item with its
// metadata, or a metadata-only placeholder (TTL pre-seeded before the item
// exists). There is no nil-value sentinel.
type Entry struct {
	value    []byte
	occupied bool
	meta     ItemMetadata
}

// Occupied builds an entry holding an item and its metadata.
func Occupied(value []byte, meta ItemMetadata) Entry {
	return Entry{value: value, occupied: true, meta: meta}
}

// MetadataOnly builds a placeholder entry carrying metadata but no item.
func MetadataOnly(meta ItemMetadata) Entry {
	return Entry{meta: meta}
}

// Value returns the stored item and whether the entry is occupied.
func (e Entry) Value() ([]byte, bool) { return e.value, e.occupied }

// Metadata returns the entry's metadata.
func (e Entry) Metadata() ItemMetadata { return e.meta }

// IsOccupied reports whether the entry holds an item.
func (e Entry) IsOccupied() bool { return e.occupied }
