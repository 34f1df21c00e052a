package eviction

import (
	"container/list"
	"sync"

	"github.com/jonwraymond/hiercache/store"
)

// twoQueueStrategy implements the 2Q policy. New keys enter a probationary
// recent queue in FIFO order; a re-access before eviction promotes to the
// hot queue, which is managed LRU. Keys evicted from the recent queue leave
// a ghost behind, so a fast re-insertion is recognized and admitted straight
// to hot instead of churning through probation again.
//
// The ghost queue defaults to the main capacity, matching the standard 2Q
// Kout sizing.
type twoQueueStrategy struct {
	mu sync.Mutex

	recent    *list.List // probationary, FIFO
	recentIdx map[string]*list.Element
	hot       *list.List // LRU
	hotIdx    map[string]*list.Element
	ghost     *ghostList
}

func newTwoQueue(capacity, ghostCapacity int) *twoQueueStrategy {
	_ = capacity
	return &twoQueueStrategy{
		recent:    list.New(),
		recentIdx: make(map[string]*list.Element),
		hot:       list.New(),
		hotIdx:    make(map[string]*list.Element),
		ghost:     newGhostList(ghostCapacity),
	}
}

func (s *twoQueueStrategy) Policy() string { return PolicyTwoQueue }

func (s *twoQueueStrategy) OnItemAdded(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recentIdx[key] != nil || s.hotIdx[key] != nil {
		return
	}
	if s.ghost.remove(key) {
		// Evicted recently and back already: treat as hot.
		s.hotIdx[key] = s.hot.PushFront(key)
		return
	}
	s.recentIdx[key] = s.recent.PushFront(key)
}

func (s *twoQueueStrategy) OnItemAccessed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.recentIdx[key]; ok {
		// Survived probation.
		s.recent.Remove(elem)
		delete(s.recentIdx, key)
		s.hotIdx[key] = s.hot.PushFront(key)
		return
	}
	if elem, ok := s.hotIdx[key]; ok {
		s.hot.MoveToFront(elem)
	}
}

func (s *twoQueueStrategy) OnItemRemoved(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.recentIdx[key]; ok {
		s.recent.Remove(elem)
		delete(s.recentIdx, key)
		s.ghost.add(key)
		return
	}
	if elem, ok := s.hotIdx[key]; ok {
		s.hot.Remove(elem)
		delete(s.hotIdx, key)
	}
}

func (s *twoQueueStrategy) SelectForEviction(p store.MetadataProvider, ctx Context) []string {
	needItems, needBytes := ctx.deficit()
	if needItems == 0 && needBytes == 0 {
		return nil
	}

	s.mu.Lock()
	order := make([]string, 0, s.recent.Len()+s.hot.Len())
	for e := s.recent.Back(); e != nil; e = e.Prev() {
		order = append(order, e.Value.(string))
	}
	for e := s.hot.Back(); e != nil; e = e.Prev() {
		order = append(order, e.Value.(string))
	}
	s.mu.Unlock()

	return takeFromOrder(order, p.GetAllMetadata(), needItems, needBytes)
}
