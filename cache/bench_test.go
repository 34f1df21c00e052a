package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonwraymond/hiercache/eviction"
	"github.com/jonwraymond/hiercache/key"
	"github.com/jonwraymond/hiercache/ttl"
)

func benchKey(b *testing.B, id any) key.Key {
	b.Helper()
	k, err := key.Primary("product", id)
	if err != nil {
		b.Fatalf("key.Primary: %v", err)
	}
	return k
}

// BenchmarkTwoLayer_Get_Hit measures the hit path including eviction
// bookkeeping.
func BenchmarkTwoLayer_Get_Hit(b *testing.B) {
	c, _ := New(Config{TTL: time.Hour, MaxItems: 1 << 16, EvictionPolicy: eviction.PolicyLRU})
	defer c.Close()
	ctx := context.Background()

	k := benchKey(b, 1)
	_ = c.Set(ctx, k, []byte("value"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, k)
	}
}

// BenchmarkTwoLayer_Get_Miss measures the miss path.
func BenchmarkTwoLayer_Get_Miss(b *testing.B) {
	c, _ := New(Config{})
	defer c.Close()
	ctx := context.Background()
	k := benchKey(b, "absent")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, k)
	}
}

// BenchmarkTwoLayer_Set measures writes with fan-out against an empty query
// layer.
func BenchmarkTwoLayer_Set(b *testing.B) {
	c, _ := New(Config{TTL: time.Hour})
	defer c.Close()
	ctx := context.Background()
	value := []byte("value")

	keys := make([]key.Key, 1024)
	for i := range keys {
		keys[i] = benchKey(b, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Set(ctx, keys[i%len(keys)], value)
	}
}

// BenchmarkTwoLayer_Set_FanOut measures writes when every write invalidates a
// populated query layer.
func BenchmarkTwoLayer_Set_FanOut(b *testing.B) {
	c, _ := New(Config{TTL: time.Hour})
	defer c.Close()
	ctx := context.Background()

	k := benchKey(b, 1)
	fp, _ := key.Fingerprint(k)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.SetQueryResult(ctx, fmt.Sprintf("q:%d", i), QueryResult{
			ItemKeys: []string{fp},
			Meta:     ResultMeta{QueryType: "listing", IsComplete: true},
		})
		_ = c.Set(ctx, k, []byte("value"))
	}
}

// BenchmarkTwoLayer_Concurrent measures a mixed read-heavy workload.
func BenchmarkTwoLayer_Concurrent(b *testing.B) {
	c, _ := New(Config{TTL: time.Hour, MaxItems: 1 << 16, EvictionPolicy: eviction.PolicyLRU})
	defer c.Close()
	ctx := context.Background()

	keys := make([]key.Key, 128)
	for i := range keys {
		keys[i] = benchKey(b, i)
		_ = c.Set(ctx, keys[i], []byte("value"))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			k := keys[i%len(keys)]
			if i%4 == 0 {
				_ = c.Set(ctx, k, []byte("new-value"))
			} else {
				_, _ = c.Get(ctx, k)
			}
			i++
		}
	})
}

// BenchmarkQueryCache_FindContaining measures the membership fan-out scan.
func BenchmarkQueryCache_FindContaining(b *testing.B) {
	calc, err := ttl.NewCalculator(ttl.DefaultCalculatorConfig())
	if err != nil {
		b.Fatalf("calculator: %v", err)
	}
	qc, err := NewQueryCache(calc)
	if err != nil {
		b.Fatalf("NewQueryCache: %v", err)
	}
	for i := 0; i < 1024; i++ {
		_ = qc.SetResult(fmt.Sprintf("q:%d", i), QueryResult{
			ItemKeys: []string{fmt.Sprintf("item:%d", i), "item:shared"},
			Meta:     ResultMeta{QueryType: "listing", IsComplete: true},
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = qc.FindQueriesContainingItem("item:shared")
	}
}
