package cache

import (
	"errors"
	"time"
)

// Sentinel errors for cache operations.
var (
	ErrNilBackend = errors.New("cache: backend is nil")
	ErrInvalidTTL = errors.New("cache: TTL must not be negative")
	ErrEmptyKey   = errors.New("cache: key is empty")
)

// Config is the recognized core configuration. Backend selection and
// retry/sync settings belong to collaborators, not the core.
type Config struct {
	// TTL is the default item TTL. Zero means items without their own TTL
	// never expire.
	TTL time.Duration

	// MaxItems bounds the number of cached items. Zero means unlimited.
	MaxItems int

	// MaxSizeBytes bounds the total cached bytes. Zero means unlimited.
	MaxSizeBytes int64

	// EvictionPolicy names the strategy to run when a limit is exceeded.
	// Empty disables eviction. Unknown names fail construction.
	EvictionPolicy string
}

// Validate fails fast on non-positive values where positive is required.
func (c Config) Validate() error {
	if c.TTL < 0 {
		return ErrInvalidTTL
	}
	if c.MaxItems < 0 {
		return errors.New("cache: max items must not be negative")
	}
	if c.MaxSizeBytes < 0 {
		return errors.New("cache: max size bytes must not be negative")
	}
	return nil
}

// Stats summarizes the item layer: total entries, still-valid entries, and
// entries past their deadline but not yet cleaned.
type Stats struct {
	Total   int
	Valid   int
	Expired int
}
