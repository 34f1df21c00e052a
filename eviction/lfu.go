package eviction

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/jonwraymond/hiercache/store"
)

// lfuStrategy evicts the least frequently used entry. In the default mode
// the frequency is the exact AccessCount from metadata, with recency as the
// tie-breaker. With decay > 0 it switches to a count-min sketch whose
// counters halve every decay interval, so stale popularity ages out.
type lfuStrategy struct {
	mu     sync.Mutex
	decay  time.Duration
	sketch *countMinSketch
	now    func() time.Time

	lastDecay time.Time
}

func newLFU(capacity int, decay time.Duration) *lfuStrategy {
	s := &lfuStrategy{decay: decay, now: time.Now}
	if decay > 0 {
		s.sketch = newCountMinSketch(capacity)
		s.lastDecay = s.now()
	}
	return s
}

func (s *lfuStrategy) Policy() string { return PolicyLFU }

func (s *lfuStrategy) SelectForEviction(p store.MetadataProvider, ctx Context) []string {
	needItems, needBytes := ctx.deficit()
	if needItems == 0 && needBytes == 0 {
		return nil
	}
	all := p.GetAllMetadata()

	if s.sketch == nil {
		return rankAndTake(all, leastFrequentlyUsed, needItems, needBytes)
	}

	s.mu.Lock()
	s.maybeDecayLocked()
	estimates := make(map[string]uint32, len(all))
	for k := range all {
		estimates[k] = s.sketch.estimate(k)
	}
	s.mu.Unlock()

	return rankAndTake(all, func(a, b store.ItemMetadata) bool {
		ea, eb := estimates[a.Key], estimates[b.Key]
		if ea != eb {
			return ea < eb
		}
		return a.LastAccessedAt.Before(b.LastAccessedAt)
	}, needItems, needBytes)
}

func leastFrequentlyUsed(a, b store.ItemMetadata) bool {
	if a.AccessCount != b.AccessCount {
		return a.AccessCount < b.AccessCount
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}

func (s *lfuStrategy) OnItemAdded(key string)    { s.observe(key) }
func (s *lfuStrategy) OnItemAccessed(key string) { s.observe(key) }
func (s *lfuStrategy) OnItemRemoved(string)      {}

func (s *lfuStrategy) observe(key string) {
	if s.sketch == nil {
		return
	}
	s.mu.Lock()
	s.maybeDecayLocked()
	s.sketch.add(key)
	s.mu.Unlock()
}

func (s *lfuStrategy) maybeDecayLocked() {
	if s.decay <= 0 {
		return
	}
	now := s.now()
	for now.Sub(s.lastDecay) >= s.decay {
		s.sketch.halve()
		s.lastDecay = s.lastDecay.Add(s.decay)
	}
}

// countMinSketch is a fixed-depth count-min sketch over string keys.
type countMinSketch struct {
	width uint32
	rows  [4][]uint32
}

func newCountMinSketch(capacity int) *countMinSketch {
	width := uint32(64)
	for int(width) < capacity*4 {
		width <<= 1
	}
	s := &countMinSketch{width: width}
	for i := range s.rows {
		s.rows[i] = make([]uint32, width)
	}
	return s
}

func (s *countMinSketch) add(key string) {
	for i := range s.rows {
		idx := s.index(key, uint32(i))
		if s.rows[i][idx] < ^uint32(0) {
			s.rows[i][idx]++
		}
	}
}

func (s *countMinSketch) estimate(key string) uint32 {
	min := ^uint32(0)
	for i := range s.rows {
		if v := s.rows[i][s.index(key, uint32(i))]; v < min {
			min = v
		}
	}
	return min
}

func (s *countMinSketch) halve() {
	for i := range s.rows {
		for j := range s.rows[i] {
			s.rows[i][j] >>= 1
		}
	}
}

func (s *countMinSketch) index(key string, row uint32) uint32 {
	h := fnv.New32a()
	h.Write([]byte{byte(row)})
	h.Write([]byte(key))
	return h.Sum32() & (s.width - 1)
}
