package eviction

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/jonwraymond/hiercache/store"
)

// randomStrategy evicts uniformly over live entries. Over many decisions
// every entry is a candidate with non-negligible probability, which makes it
// a useful baseline against the access-pattern strategies.
type randomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newRandom() *randomStrategy {
	return &randomStrategy{rng: rand.New(rand.NewSource(rand.Int63()))}
}

func (s *randomStrategy) Policy() string { return PolicyRandom }

func (s *randomStrategy) SelectForEviction(p store.MetadataProvider, ctx Context) []string {
	needItems, needBytes := ctx.deficit()
	if needItems == 0 && needBytes == 0 {
		return nil
	}
	all := p.GetAllMetadata()
	if len(all) == 0 {
		return nil
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	// Map order is not uniform; sort then shuffle for a well-defined
	// distribution.
	sort.Strings(keys)

	s.mu.Lock()
	s.rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	s.mu.Unlock()

	var selected []string
	for _, k := range keys {
		if needItems <= 0 && needBytes <= 0 {
			break
		}
		selected = append(selected, k)
		needItems--
		needBytes -= all[k].SizeBytes
	}
	return selected
}

func (s *randomStrategy) OnItemAdded(string)    {}
func (s *randomStrategy) OnItemAccessed(string) {}
func (s *randomStrategy) OnItemRemoved(string)  {}
