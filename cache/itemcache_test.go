package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/hiercache/store"
	"github.com/jonwraymond/hiercache/ttl"
)

// fakeClock is a settable clock shared between an ItemCache and its TTL
// manager so tests control expiry without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestItemCache(t *testing.T, defaultTTL time.Duration) (*ItemCache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	mgr, err := ttl.NewManager(ttl.ManagerConfig{ValidateOnAccess: true}, ttl.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("ttl.NewManager: %v", err)
	}
	c, err := NewItemCache(store.NewCacheMap(store.Limits{}), mgr, defaultTTL, WithItemClock(clock.Now))
	if err != nil {
		t.Fatalf("NewItemCache: %v", err)
	}
	return c, clock
}

func TestItemCache_ExpiryLifecycle(t *testing.T) {
	c, clock := newTestItemCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 100*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clock.Advance(50 * time.Millisecond)
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get at half TTL = (%q, %v), want hit", v, ok)
	}

	clock.Advance(100 * time.Millisecond)
	if got := c.Cleanup(); got != 1 {
		t.Errorf("Cleanup = %d, want 1", got)
	}
	if got := c.Cleanup(); got != 0 {
		t.Errorf("second Cleanup = %d, want 0", got)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get after expiry returned a hit")
	}
}

func TestItemCache_GetLazilyDeletesExpired(t *testing.T) {
	c, clock := newTestItemCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(2 * time.Second)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expired item served")
	}
	// The read itself removed the entry.
	if _, _, ok := c.Peek("k"); ok {
		t.Error("expired entry still present after lazy delete")
	}
	if got := c.Cleanup(); got != 0 {
		t.Errorf("Cleanup after lazy delete = %d, want 0", got)
	}
}

func TestItemCache_OverwriteRefreshesTTL(t *testing.T) {
	c, clock := newTestItemCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(45 * time.Second)
	if err := c.Set(ctx, "k", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	clock.Advance(45 * time.Second)

	// 90s after the first write, 45s after the second: still live.
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v2" {
		t.Errorf("Get = (%q, %v), want the refreshed value", v, ok)
	}
}

func TestItemCache_DefaultTTLApplies(t *testing.T) {
	c, clock := newTestItemCache(t, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("item outlived the default TTL")
	}
}

func TestItemCache_HonorsPreSeededTTL(t *testing.T) {
	clock := newFakeClock()
	mgr, _ := ttl.NewManager(ttl.ManagerConfig{ValidateOnAccess: true}, ttl.WithClock(clock.Now))
	backend := store.NewCacheMap(store.Limits{})
	c, err := NewItemCache(backend, mgr, time.Hour, WithItemClock(clock.Now))
	if err != nil {
		t.Fatalf("NewItemCache: %v", err)
	}
	ctx := context.Background()

	// A placeholder created ahead of the value carries its own TTL.
	backend.SetMetadata("k", store.ItemMetadata{Key: "k", AddedAt: clock.Now(), TTL: time.Minute})

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("pre-seeded TTL was ignored in favor of the default")
	}
}

func TestItemCache_PeekHasNoSideEffects(t *testing.T) {
	c, clock := newTestItemCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(time.Hour)

	// Peek serves the expired value without deleting it or bumping counters.
	v, meta, ok := c.Peek("k")
	if !ok || string(v) != "v" {
		t.Fatalf("Peek = (%q, %v), want the raw value", v, ok)
	}
	if meta.AccessCount != 0 {
		t.Errorf("Peek bumped AccessCount to %d", meta.AccessCount)
	}
	if _, _, ok := c.Peek("k"); !ok {
		t.Error("Peek removed the entry")
	}
}

func TestItemCache_IsStaleAtEightyPercent(t *testing.T) {
	c, clock := newTestItemCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 100*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clock.Advance(80*time.Second - time.Nanosecond)
	if c.IsStale("k") {
		t.Error("item stale before the 80% threshold")
	}
	clock.Advance(time.Nanosecond)
	if !c.IsStale("k") {
		t.Error("item not stale at exactly 80% of its TTL")
	}
	// Stale is not expired: the item still serves.
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("stale item no longer served")
	}
}

func TestItemCache_GetBumpsAccessBookkeeping(t *testing.T) {
	c, _ := newTestItemCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Get(ctx, "k")
	c.Get(ctx, "k")

	_, meta, ok := c.Peek("k")
	if !ok {
		t.Fatal("Peek missed")
	}
	if meta.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", meta.AccessCount)
	}
}

func TestItemCache_MetadataOnlyPlaceholderNeverServes(t *testing.T) {
	clock := newFakeClock()
	mgr, _ := ttl.NewManager(ttl.ManagerConfig{ValidateOnAccess: true}, ttl.WithClock(clock.Now))
	backend := store.NewCacheMap(store.Limits{})
	c, _ := NewItemCache(backend, mgr, 0, WithItemClock(clock.Now))

	backend.SetMetadata("ghost", store.ItemMetadata{Key: "ghost", AddedAt: clock.Now()})

	if _, ok := c.Get(context.Background(), "ghost"); ok {
		t.Error("metadata-only placeholder served a value")
	}
	if c.Has("ghost") {
		t.Error("Has reported a placeholder as live")
	}
}

func TestItemCache_SetValidation(t *testing.T) {
	c, _ := newTestItemCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "", []byte("v"), 0); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Set(empty key) error = %v, want ErrEmptyKey", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), -time.Second); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("Set(negative TTL) error = %v, want ErrInvalidTTL", err)
	}
}

func TestNewItemCache_Validation(t *testing.T) {
	mgr, _ := ttl.NewManager(ttl.ManagerConfig{})
	if _, err := NewItemCache(nil, mgr, 0); !errors.Is(err, ErrNilBackend) {
		t.Errorf("nil backend error = %v, want ErrNilBackend", err)
	}
	if _, err := NewItemCache(store.NewCacheMap(store.Limits{}), mgr, -1); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("negative default TTL error = %v, want ErrInvalidTTL", err)
	}
}

func TestItemCache_Stats(t *testing.T) {
	c, clock := newTestItemCache(t, 0)
	ctx := context.Background()

	c.Set(ctx, "live", []byte("v"), time.Hour)
	c.Set(ctx, "dead", []byte("v"), time.Second)
	c.Set(ctx, "immortal", []byte("v"), 0)
	clock.Advance(time.Minute)

	s := c.Stats()
	if s.Total != 3 || s.Valid != 2 || s.Expired != 1 {
		t.Errorf("Stats = %+v, want {Total:3 Valid:2 Expired:1}", s)
	}
}
