package eviction

import "container/list"

// ghostList is a bounded FIFO record of recently evicted keys. It holds keys
// only, no values; membership signals that a re-inserted key was evicted
// recently enough to count as a frequency hit.
type ghostList struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newGhostList(capacity int) *ghostList {
	return &ghostList{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (g *ghostList) len() int { return g.order.Len() }

// add records an evicted key, displacing the oldest ghost at capacity.
func (g *ghostList) add(key string) {
	if g.capacity <= 0 {
		return
	}
	if elem, ok := g.index[key]; ok {
		g.order.MoveToFront(elem)
		return
	}
	for g.order.Len() >= g.capacity {
		oldest := g.order.Back()
		g.order.Remove(oldest)
		delete(g.index, oldest.Value.(string))
	}
	g.index[key] = g.order.PushFront(key)
}

// remove reports whether the key was a ghost, forgetting it either way.
func (g *ghostList) remove(key string) bool {
	elem, ok := g.index[key]
	if !ok {
		return false
	}
	g.order.Remove(elem)
	delete(g.index, key)
	return true
}
