package eviction

import (
	"sort"

	"github.com/jonwraymond/hiercache/store"
)

// candidateLess orders two metadata records; true means a is the better
// eviction candidate.
type candidateLess func(a, b store.ItemMetadata) bool

func leastRecentlyAccessed(a, b store.ItemMetadata) bool {
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}

func mostRecentlyAccessed(a, b store.ItemMetadata) bool {
	return a.LastAccessedAt.After(b.LastAccessedAt)
}

func earliestAdded(a, b store.ItemMetadata) bool {
	return a.AddedAt.Before(b.AddedAt)
}

// scanStrategy implements the stateless policies (LRU, MRU, FIFO) by ranking
// a metadata snapshot with a comparator. It keeps no bookkeeping of its own,
// so the On* callbacks are no-ops.
type scanStrategy struct {
	policy string
	less   candidateLess
}

func newScanStrategy(policy string, less candidateLess) *scanStrategy {
	return &scanStrategy{policy: policy, less: less}
}

func (s *scanStrategy) Policy() string { return s.policy }

func (s *scanStrategy) SelectForEviction(p store.MetadataProvider, ctx Context) []string {
	needItems, needBytes := ctx.deficit()
	if needItems == 0 && needBytes == 0 {
		return nil
	}
	return rankAndTake(p.GetAllMetadata(), s.less, needItems, needBytes)
}

func (s *scanStrategy) OnItemAdded(string)    {}
func (s *scanStrategy) OnItemAccessed(string) {}
func (s *scanStrategy) OnItemRemoved(string)  {}

// rankAndTake sorts the snapshot by the comparator and takes candidates
// until both deficits are satisfied. Ties break on the key so selection is
// deterministic.
func rankAndTake(all map[string]store.ItemMetadata, less candidateLess, needItems int, needBytes int64) []string {
	if len(all) == 0 {
		return nil
	}
	ranked := make([]store.ItemMetadata, 0, len(all))
	for _, meta := range all {
		ranked = append(ranked, meta)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if less(ranked[i], ranked[j]) {
			return true
		}
		if less(ranked[j], ranked[i]) {
			return false
		}
		return ranked[i].Key < ranked[j].Key
	})

	var selected []string
	for _, meta := range ranked {
		if needItems <= 0 && needBytes <= 0 {
			break
		}
		selected = append(selected, meta.Key)
		needItems--
		needBytes -= meta.SizeBytes
	}
	return selected
}

// takeFromOrder walks a precomputed candidate order, skipping keys no longer
// tracked by the provider, until the deficits are satisfied. Used by the
// list-based strategies.
func takeFromOrder(order []string, all map[string]store.ItemMetadata, needItems int, needBytes int64) []string {
	var selected []string
	taken := make(map[string]bool, len(order))
	for _, k := range order {
		if needItems <= 0 && needBytes <= 0 {
			return selected
		}
		meta, live := all[k]
		if !live || taken[k] {
			continue
		}
		taken[k] = true
		selected = append(selected, k)
		needItems--
		needBytes -= meta.SizeBytes
	}
	if needItems <= 0 && needBytes <= 0 {
		return selected
	}
	// Keys the strategy never saw (tracked before it was attached) are
	// ranked least-recently-accessed as a fallback.
	rest := make(map[string]store.ItemMetadata, len(all))
	for k, meta := range all {
		if !taken[k] {
			rest[k] = meta
		}
	}
	return append(selected, rankAndTake(rest, leastRecentlyAccessed, needItems, needBytes)...)
}
