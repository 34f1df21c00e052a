package ttl

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/hiercache/store"
)

// Sentinel errors for manager operations.
var (
	ErrNoTTL       = errors.New("ttl: no TTL has been set for key")
	ErrKeyNotFound = errors.New("ttl: key has no metadata")
)

// ManagerConfig configures expiration tracking.
type ManagerConfig struct {
	// DefaultTTL applies when an item supplies no TTL of its own. Zero
	// means items without a TTL never expire.
	DefaultTTL time.Duration

	// AutoCleanup starts a periodic sweep reporting expired keys.
	AutoCleanup bool

	// CleanupInterval is the sweep period. Required when AutoCleanup is set.
	CleanupInterval time.Duration

	// ValidateOnAccess controls whether reads check expiry. When false,
	// every item validates regardless of state - an explicit escape hatch
	// for callers that handle staleness themselves.
	ValidateOnAccess bool
}

// Manager tracks expiration per key. All metadata mutation goes through the
// injected MetadataProvider; the manager holds no item state of its own.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Cleanup: the sweep only detects expired keys; deleting them is the
//   owning cache's responsibility, via the callback.
// - Shutdown: Destroy is idempotent and never blocks.
type Manager struct {
	cfg ManagerConfig
	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  sync.Once
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager validates the configuration and builds a manager.
func NewManager(cfg ManagerConfig, opts ...ManagerOption) (*Manager, error) {
	if cfg.DefaultTTL < 0 {
		return nil, fmt.Errorf("%w: default TTL must not be negative", ErrInvalidConfig)
	}
	if cfg.AutoCleanup && cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("%w: auto cleanup requires a positive interval", ErrInvalidConfig)
	}
	m := &Manager{
		cfg:  cfg,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// OnItemAdded stamps the expiry for a newly written key:
// expiresAt = addedAt + (itemTTL if positive, else the default). When
// neither is positive the key never expires and this is a no-op.
func (m *Manager) OnItemAdded(key string, p store.MetadataProvider, itemTTL time.Duration) {
	ttl := itemTTL
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	if ttl <= 0 {
		return
	}
	meta, ok := p.GetMetadata(key)
	if !ok {
		return
	}
	meta.TTL = ttl
	meta.ExpiresAt = meta.AddedAt.Add(ttl)
	p.SetMetadata(key, meta)
}

// IsExpired reports whether the key's deadline has passed. Keys without a
// deadline, or unknown keys, are never expired.
func (m *Manager) IsExpired(key string, p store.MetadataProvider) bool {
	meta, ok := p.GetMetadata(key)
	if !ok || meta.ExpiresAt.IsZero() {
		return false
	}
	return !m.now().Before(meta.ExpiresAt)
}

// ValidateItem reports whether the key may be served. With ValidateOnAccess
// disabled every item is valid regardless of state.
func (m *Manager) ValidateItem(key string, p store.MetadataProvider) bool {
	if !m.cfg.ValidateOnAccess {
		return true
	}
	return !m.IsExpired(key, p)
}

// FindExpiredItems scans all metadata and returns the expired keys. Both
// manual and periodic cleanup use it; the manager never deletes.
func (m *Manager) FindExpiredItems(p store.MetadataProvider) []string {
	now := m.now()
	var expired []string
	for k, meta := range p.GetAllMetadata() {
		if !meta.ExpiresAt.IsZero() && !now.Before(meta.ExpiresAt) {
			expired = append(expired, k)
		}
	}
	return expired
}

// ExtendTTL pushes the existing deadline forward by delta. It fails if no
// TTL was ever set for the key - extending nothing is a caller bug.
func (m *Manager) ExtendTTL(key string, p store.MetadataProvider, delta time.Duration) error {
	meta, ok := p.GetMetadata(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if meta.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: %s", ErrNoTTL, key)
	}
	meta.ExpiresAt = meta.ExpiresAt.Add(delta)
	p.SetMetadata(key, meta)
	return nil
}

// RefreshTTL recomputes the deadline from now: the supplied TTL if positive,
// else the TTL stored on the key, else the default. Unlike ExtendTTL it
// works on already-expired keys, which is what enables revival.
func (m *Manager) RefreshTTL(key string, p store.MetadataProvider, ttl time.Duration) error {
	meta, ok := p.GetMetadata(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	effective := ttl
	if effective <= 0 {
		effective = meta.TTL
	}
	if effective <= 0 {
		effective = m.cfg.DefaultTTL
	}
	if effective <= 0 {
		return fmt.Errorf("%w: %s", ErrNoTTL, key)
	}
	meta.TTL = effective
	meta.ExpiresAt = m.now().Add(effective)
	p.SetMetadata(key, meta)
	return nil
}

// StartCleanup launches the periodic sweep when AutoCleanup is configured.
// Each tick reports the expired keys to onExpired; a second call is a no-op.
func (m *Manager) StartCleanup(p store.MetadataProvider, onExpired func(keys []string)) {
	if !m.cfg.AutoCleanup {
		return
	}
	m.started.Do(func() {
		go m.sweep(p, onExpired)
	})
}

func (m *Manager) sweep(p store.MetadataProvider, onExpired func(keys []string)) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if expired := m.FindExpiredItems(p); len(expired) > 0 && onExpired != nil {
				onExpired(expired)
			}
		}
	}
}

// Destroy stops the periodic sweep. Idempotent; never blocks shutdown.
func (m *Manager) Destroy() {
	m.stopOnce.Do(func() {
		close(m.stop)
		// Mark done for managers whose sweep never started.
		m.started.Do(func() { close(m.done) })
	})
}
