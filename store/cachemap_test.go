package store

import (
	"errors"
	"testing"
	"time"
)

func meta(key string, size int64) ItemMetadata {
	now := time.Now()
	return ItemMetadata{Key: key, AddedAt: now, LastAccessedAt: now, SizeBytes: size}
}

func TestCacheMap_SetGetDelete(t *testing.T) {
	m := NewCacheMap(Limits{})

	if _, ok := m.Get("a"); ok {
		t.Error("Get on empty map should return ok=false")
	}

	if err := m.Set("a", Occupied([]byte("hello"), meta("a", 5))); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	e, ok := m.Get("a")
	if !ok {
		t.Fatal("Get after Set should return ok=true")
	}
	v, occupied := e.Value()
	if !occupied || string(v) != "hello" {
		t.Errorf("Value() = %q, %v; want \"hello\", true", v, occupied)
	}

	if !m.Delete("a") {
		t.Error("Delete should report true for existing key")
	}
	if m.Delete("a") {
		t.Error("second Delete should report false")
	}
}

func TestCacheMap_SizeCountersMatchMetadata(t *testing.T) {
	m := NewCacheMap(Limits{})

	m.Set("a", Occupied([]byte("12345"), meta("a", 5)))
	m.Set("b", Occupied([]byte("123"), meta("b", 3)))

	size := m.GetCurrentSize()
	if size.ItemCount != 2 || size.SizeBytes != 8 {
		t.Errorf("size = %+v, want {2 8}", size)
	}

	// Overwrite adjusts by delta, not by sum.
	m.Set("a", Occupied([]byte("12"), meta("a", 2)))
	size = m.GetCurrentSize()
	if size.ItemCount != 2 || size.SizeBytes != 5 {
		t.Errorf("size after overwrite = %+v, want {2 5}", size)
	}

	m.Delete("b")
	size = m.GetCurrentSize()
	if size.ItemCount != 1 || size.SizeBytes != 2 {
		t.Errorf("size after delete = %+v, want {1 2}", size)
	}

	// Counters always equal the sum of tracked metadata sizes.
	var sum int64
	for _, md := range m.GetAllMetadata() {
		sum += md.SizeBytes
	}
	if sum != size.SizeBytes {
		t.Errorf("metadata sum = %d, counter = %d", sum, size.SizeBytes)
	}
}

func TestCacheMap_QuotaExceeded(t *testing.T) {
	m := NewCacheMap(Limits{MaxSizeBytes: 4})
	err := m.Set("big", Occupied([]byte("12345"), meta("big", 5)))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Set oversized item: error = %v, want ErrQuotaExceeded", err)
	}
	if m.GetCurrentSize().ItemCount != 0 {
		t.Error("failed Set must not change counters")
	}
}

func TestCacheMap_MetadataOnlyPlaceholder(t *testing.T) {
	m := NewCacheMap(Limits{})

	md := meta("a", 0)
	md.TTL = time.Minute
	m.SetMetadata("a", md)

	e, ok := m.Get("a")
	if !ok {
		t.Fatal("placeholder entry should exist")
	}
	if e.IsOccupied() {
		t.Error("placeholder entry must not report occupied")
	}
	if _, occupied := e.Value(); occupied {
		t.Error("placeholder entry must not hold a value")
	}
	if got := e.Metadata().TTL; got != time.Minute {
		t.Errorf("placeholder TTL = %v, want 1m", got)
	}

	// DeleteMetadata removes the whole entry: metadata exists iff the
	// entry exists.
	m.DeleteMetadata("a")
	if _, ok := m.Get("a"); ok {
		t.Error("entry should be gone after DeleteMetadata")
	}
}

func TestCacheMap_Query(t *testing.T) {
	m := NewCacheMap(Limits{})
	m.Set("user:1", Occupied([]byte("a"), meta("user:1", 1)))
	m.Set("user:2", Occupied([]byte("b"), meta("user:2", 1)))
	m.Set("order:1", Occupied([]byte("c"), meta("order:1", 1)))

	got := m.Query(func(k string, _ Entry) bool {
		return len(k) >= 5 && k[:5] == "user:"
	})
	if len(got) != 2 {
		t.Errorf("Query matched %d keys, want 2: %v", len(got), got)
	}
}

func TestCacheMap_CloneSharesNoState(t *testing.T) {
	m := NewCacheMap(Limits{MaxItems: 10})
	m.Set("a", Occupied([]byte("orig"), meta("a", 4)))

	clone := m.Clone()

	// Mutate the original; the clone must not see it.
	m.Set("b", Occupied([]byte("new"), meta("b", 3)))
	m.Delete("a")

	if _, ok := clone.Get("b"); ok {
		t.Error("clone should not see writes to the original")
	}
	e, ok := clone.Get("a")
	if !ok {
		t.Fatal("clone should retain entries deleted from the original")
	}
	v, _ := e.Value()
	if string(v) != "orig" {
		t.Errorf("clone value = %q, want \"orig\"", v)
	}

	if clone.GetSizeLimits() != m.GetSizeLimits() {
		t.Error("clone should keep the same limits")
	}
}

func TestCacheMap_ClearIdempotent(t *testing.T) {
	m := NewCacheMap(Limits{})
	m.Set("a", Occupied([]byte("x"), meta("a", 1)))

	m.Clear()
	if m.Len() != 0 || m.GetCurrentSize().ItemCount != 0 {
		t.Error("Clear should empty the map and reset counters")
	}
	m.Clear() // second call is a no-op
	if m.Len() != 0 {
		t.Error("second Clear should still be empty")
	}
}

func TestCacheMap_Capabilities(t *testing.T) {
	caps := NewCacheMap(Limits{}).Capabilities()
	if !caps.SupportsTTL || !caps.SupportsEviction {
		t.Errorf("capabilities = %+v; memory backend supports TTL and eviction", caps)
	}
	if caps.Persistent {
		t.Error("memory backend must not claim persistence")
	}
}
