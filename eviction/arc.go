package eviction

import (
	"container/list"
	"sync"

	"github.com/jonwraymond/hiercache/store"
)

// arcStrategy implements Adaptive Replacement Cache bookkeeping. It keeps
// two real lists - t1 for keys seen once (recency) and t2 for keys seen
// more than once (frequency) - plus two bounded ghost lists, b1 and b2, of
// keys recently evicted from each. A re-insertion that hits a ghost list
// shifts the adaptive target toward the list that would have kept it.
//
// Ghost lists default to the main capacity, the classic ARC sizing where
// |t1|+|b1| and |t2|+|b2| are each bounded by c.
type arcStrategy struct {
	mu       sync.Mutex
	capacity int
	target   int // preferred size of t1; adapts on ghost hits

	t1, t2       *list.List
	t1idx, t2idx map[string]*list.Element
	b1, b2       *ghostList
}

func newARC(capacity, ghostCapacity int) *arcStrategy {
	return &arcStrategy{
		capacity: capacity,
		t1:       list.New(),
		t2:       list.New(),
		t1idx:    make(map[string]*list.Element),
		t2idx:    make(map[string]*list.Element),
		b1:       newGhostList(ghostCapacity),
		b2:       newGhostList(ghostCapacity),
	}
}

func (s *arcStrategy) Policy() string { return PolicyARC }

func (s *arcStrategy) OnItemAdded(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.t1idx[key] != nil || s.t2idx[key] != nil {
		return
	}
	switch {
	case s.b1.remove(key):
		// Recency ghost hit: recency was undersized.
		s.target = min(s.capacity, s.target+stepSize(s.b2.len(), s.b1.len()))
		s.t2idx[key] = s.t2.PushFront(key)
	case s.b2.remove(key):
		// Frequency ghost hit: frequency was undersized.
		s.target = max(0, s.target-stepSize(s.b1.len(), s.b2.len()))
		s.t2idx[key] = s.t2.PushFront(key)
	default:
		s.t1idx[key] = s.t1.PushFront(key)
	}
}

func (s *arcStrategy) OnItemAccessed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.t1idx[key]; ok {
		// Second touch promotes from recency to frequency.
		s.t1.Remove(elem)
		delete(s.t1idx, key)
		s.t2idx[key] = s.t2.PushFront(key)
		return
	}
	if elem, ok := s.t2idx[key]; ok {
		s.t2.MoveToFront(elem)
	}
}

func (s *arcStrategy) OnItemRemoved(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.t1idx[key]; ok {
		s.t1.Remove(elem)
		delete(s.t1idx, key)
		s.b1.add(key)
		return
	}
	if elem, ok := s.t2idx[key]; ok {
		s.t2.Remove(elem)
		delete(s.t2idx, key)
		s.b2.add(key)
	}
}

func (s *arcStrategy) SelectForEviction(p store.MetadataProvider, ctx Context) []string {
	needItems, needBytes := ctx.deficit()
	if needItems == 0 && needBytes == 0 {
		return nil
	}

	s.mu.Lock()
	order := s.victimOrderLocked()
	s.mu.Unlock()

	return takeFromOrder(order, p.GetAllMetadata(), needItems, needBytes)
}

// victimOrderLocked merges t1 and t2 back-to-front into a single candidate
// order: t1 victims while t1 exceeds the adaptive target (or t2 has nothing
// to offer), then t2, then whatever remains of t1.
func (s *arcStrategy) victimOrderLocked() []string {
	order := make([]string, 0, s.t1.Len()+s.t2.Len())
	t1len := s.t1.Len()
	e1, e2 := s.t1.Back(), s.t2.Back()

	for e1 != nil && (t1len > s.target || e2 == nil) {
		order = append(order, e1.Value.(string))
		e1 = e1.Prev()
		t1len--
	}
	for ; e2 != nil; e2 = e2.Prev() {
		order = append(order, e2.Value.(string))
	}
	for ; e1 != nil; e1 = e1.Prev() {
		order = append(order, e1.Value.(string))
	}
	return order
}

// stepSize is the classic ARC adaptation delta: at least one, scaled by the
// relative size of the opposing ghost list.
func stepSize(other, hit int) int {
	if hit <= 0 {
		return 1
	}
	return max(1, other/hit)
}
