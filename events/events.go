package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/hiercache/observe"
)

// Kind classifies a cache mutation event.
type Kind string

const (
	KindSet    Kind = "set"
	KindDelete Kind = "delete"
	KindEvict  Kind = "evict"
	KindExpire Kind = "expire"
)

// Event describes one cache mutation.
type Event struct {
	Kind   Kind
	Key    string // canonical key fingerprint
	Reason string // optional detail, e.g. the eviction policy
	At     time.Time
}

// Listener consumes events. A returned error is routed to the subscription's
// error hook, or logged when none is set; it never affects other listeners.
type Listener func(Event) error

// Handle identifies a subscription. Handles are generation-tagged: a handle
// from a previous generation of the same slot is stale and cannot
// unsubscribe the current occupant.
type Handle struct {
	id         uint64
	generation uint64
}

type subscription struct {
	kinds      map[Kind]bool // nil means all kinds
	fn         Listener
	onError    func(error)
	generation uint64
	closed     bool
}

// SubOption customizes a subscription.
type SubOption func(*subscription)

// WithErrorHook routes the subscription's listener errors to fn instead of
// the bus logger.
func WithErrorHook(fn func(error)) SubOption {
	return func(s *subscription) { s.onError = fn }
}

// Bus delivers cache mutation events to subscribed listeners.
//
// Contract:
// - Concurrency: safe for concurrent use; delivery happens on the
//   publisher's goroutine in subscription order.
// - Isolation: one listener's error or panic never blocks delivery to the
//   others.
// - Lifecycle: Unsubscribe is mandatory; Prune is the primary cleanup
//   mechanism for closed slots, not a garbage-collection backstop.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*subscription
	order      []uint64
	nextID     uint64
	generation uint64
	logger     observe.Logger
}

// NewBus creates a bus logging unrouted listener errors to logger.
func NewBus(logger observe.Logger) *Bus {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Bus{
		subs:   make(map[uint64]*subscription),
		logger: logger.WithScope("events"),
	}
}

// Subscribe registers a listener for the given kinds; no kinds means all.
func (b *Bus) Subscribe(kinds []Kind, fn Listener, opts ...SubOption) Handle {
	sub := &subscription{fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.generation++
	sub.generation = b.generation
	b.subs[b.nextID] = sub
	b.order = append(b.order, b.nextID)
	return Handle{id: b.nextID, generation: b.generation}
}

// Unsubscribe closes the subscription the handle refers to. Stale handles
// (wrong generation) and unknown ids report false.
func (b *Bus) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[h.id]
	if !ok || sub.generation != h.generation || sub.closed {
		return false
	}
	sub.closed = true
	return true
}

// Publish delivers the event to every live subscription interested in its
// kind. Listener failures are isolated per subscription.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.order))
	for _, id := range b.order {
		sub := b.subs[id]
		if sub == nil || sub.closed {
			continue
		}
		if sub.kinds != nil && !sub.kinds[e.Kind] {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.report(sub, fmt.Errorf("events: listener panic: %v", r))
		}
	}()
	if err := sub.fn(e); err != nil {
		b.report(sub, err)
	}
}

func (b *Bus) report(sub *subscription, err error) {
	if sub.onError != nil {
		sub.onError(err)
		return
	}
	b.logger.Error(context.Background(), "event listener failed",
		observe.Field{Key: "error", Value: err.Error()})
}

// Prune removes closed subscriptions and returns how many were dropped.
func (b *Bus) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	pruned := 0
	live := b.order[:0]
	for _, id := range b.order {
		if sub := b.subs[id]; sub != nil && !sub.closed {
			live = append(live, id)
			continue
		}
		delete(b.subs, id)
		pruned++
	}
	b.order = live
	return pruned
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if !sub.closed {
			n++
		}
	}
	return n
}
