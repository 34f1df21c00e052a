package eviction

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/hiercache/store"
)

// Policy names accepted by New.
const (
	PolicyLRU      = "lru"
	PolicyMRU      = "mru"
	PolicyLFU      = "lfu"
	PolicyFIFO     = "fifo"
	PolicyRandom   = "random"
	PolicyARC      = "arc"
	PolicyTwoQueue = "two-queue"
)

// Sentinel errors for strategy construction.
var (
	ErrUnknownPolicy   = errors.New("eviction: unknown policy")
	ErrInvalidCapacity = errors.New("eviction: capacity must be positive")
)

// Context describes the capacity pressure at the moment an eviction decision
// is requested.
type Context struct {
	CurrentSize store.Size
	Limits      store.Limits
	NewItemSize int64

	// Replacing marks a write to an already-occupied key: the item count
	// does not grow, and ReplacedSize bytes are released by the overwrite.
	Replacing    bool
	ReplacedSize int64
}

// ExceedsCapacity reports whether admitting the new item would violate a
// configured limit.
func (c Context) ExceedsCapacity() bool {
	items, bytes := c.deficit()
	return items > 0 || bytes > 0
}

// deficit returns how many items and how many bytes must be freed before the
// new item fits. Zero/zero means no eviction is needed.
func (c Context) deficit() (items int, bytes int64) {
	count := c.CurrentSize.ItemCount
	if !c.Replacing {
		count++
	}
	if c.Limits.MaxItems > 0 && count > c.Limits.MaxItems {
		items = count - c.Limits.MaxItems
	}
	projected := c.CurrentSize.SizeBytes + c.NewItemSize - c.ReplacedSize
	if c.Limits.MaxSizeBytes > 0 && projected > c.Limits.MaxSizeBytes {
		bytes = projected - c.Limits.MaxSizeBytes
	}
	return items, bytes
}

// Strategy chooses eviction candidates from per-key metadata.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: SelectForEviction never errors; it returns an empty slice when
//   capacity is not exceeded or nothing qualifies.
// - State: the On* callbacks are the only write path into a strategy's
//   internal bookkeeping; the cache invokes them on every add/access/remove.
type Strategy interface {
	// Policy returns the policy name the strategy was built from.
	Policy() string

	// SelectForEviction returns the keys to evict so the new item described
	// by ctx fits within the configured limits.
	SelectForEviction(p store.MetadataProvider, ctx Context) []string

	OnItemAdded(key string)
	OnItemAccessed(key string)
	OnItemRemoved(key string)
}

// Config carries optional per-strategy tuning.
type Config struct {
	// LFUDecay enables the probabilistic-sketch LFU mode: access counts are
	// kept in a count-min sketch whose counters halve every LFUDecay. Zero
	// selects the deterministic metadata-count mode.
	LFUDecay time.Duration

	// GhostCapacity bounds the ARC and TwoQueue ghost lists. Zero derives
	// the standard default: ghost lists sized to the main capacity.
	GhostCapacity int
}

// New constructs a strategy by policy name. The capacity hint sizes internal
// structures for the adaptive strategies. An unknown policy name is a fatal
// configuration error.
func New(policy string, capacity int, cfg *Config) (Strategy, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	ghosts := c.GhostCapacity
	if ghosts <= 0 {
		ghosts = capacity
	}

	switch policy {
	case PolicyLRU:
		return newScanStrategy(PolicyLRU, leastRecentlyAccessed), nil
	case PolicyMRU:
		return newScanStrategy(PolicyMRU, mostRecentlyAccessed), nil
	case PolicyFIFO:
		return newScanStrategy(PolicyFIFO, earliestAdded), nil
	case PolicyLFU:
		return newLFU(capacity, c.LFUDecay), nil
	case PolicyRandom:
		return newRandom(), nil
	case PolicyARC:
		return newARC(capacity, ghosts), nil
	case PolicyTwoQueue:
		return newTwoQueue(capacity, ghosts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}
