package events

import (
	"errors"
	"testing"
)

func TestBus_KindFiltering(t *testing.T) {
	b := NewBus(nil)

	var sets, all int
	b.Subscribe([]Kind{KindSet}, func(Event) error { sets++; return nil })
	b.Subscribe(nil, func(Event) error { all++; return nil })

	b.Publish(Event{Kind: KindSet, Key: "a"})
	b.Publish(Event{Kind: KindDelete, Key: "a"})
	b.Publish(Event{Kind: KindEvict, Key: "a"})

	if sets != 1 {
		t.Errorf("filtered listener saw %d events, want 1", sets)
	}
	if all != 3 {
		t.Errorf("unfiltered listener saw %d events, want 3", all)
	}
}

func TestBus_PublishStampsTime(t *testing.T) {
	b := NewBus(nil)
	var got Event
	b.Subscribe(nil, func(e Event) error { got = e; return nil })

	b.Publish(Event{Kind: KindSet, Key: "a"})
	if got.At.IsZero() {
		t.Error("Publish left At unset")
	}
}

func TestBus_ListenerErrorIsolation(t *testing.T) {
	b := NewBus(nil)

	var hooked error
	delivered := 0
	b.Subscribe(nil, func(Event) error { return errors.New("boom") },
		WithErrorHook(func(err error) { hooked = err }))
	b.Subscribe(nil, func(Event) error { delivered++; return nil })

	b.Publish(Event{Kind: KindSet, Key: "a"})

	if hooked == nil || hooked.Error() != "boom" {
		t.Errorf("error hook got %v, want boom", hooked)
	}
	if delivered != 1 {
		t.Errorf("later listener saw %d events, want 1 despite the earlier failure", delivered)
	}
}

func TestBus_ListenerPanicIsolation(t *testing.T) {
	b := NewBus(nil)

	var hooked error
	delivered := 0
	b.Subscribe(nil, func(Event) error { panic("listener bug") },
		WithErrorHook(func(err error) { hooked = err }))
	b.Subscribe(nil, func(Event) error { delivered++; return nil })

	b.Publish(Event{Kind: KindSet, Key: "a"})

	if hooked == nil {
		t.Error("panic was not routed to the error hook")
	}
	if delivered != 1 {
		t.Errorf("later listener saw %d events, want 1 despite the panic", delivered)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(nil)

	count := 0
	h := b.Subscribe(nil, func(Event) error { count++; return nil })

	if !b.Unsubscribe(h) {
		t.Fatal("Unsubscribe(valid handle) = false")
	}
	if b.Unsubscribe(h) {
		t.Error("second Unsubscribe = true, want false")
	}

	b.Publish(Event{Kind: KindSet, Key: "a"})
	if count != 0 {
		t.Errorf("unsubscribed listener saw %d events", count)
	}
}

func TestBus_StaleGenerationHandle(t *testing.T) {
	b := NewBus(nil)

	h1 := b.Subscribe(nil, func(Event) error { return nil })
	h2 := b.Subscribe(nil, func(Event) error { return nil })

	// A forged handle pairing one slot's id with another generation must not
	// unsubscribe anyone.
	forged := Handle{id: h1.id, generation: h2.generation}
	if b.Unsubscribe(forged) {
		t.Error("stale-generation handle unsubscribed a live listener")
	}
	if b.Len() != 2 {
		t.Errorf("Len = %d, want 2", b.Len())
	}
}

func TestBus_Prune(t *testing.T) {
	b := NewBus(nil)

	h1 := b.Subscribe(nil, func(Event) error { return nil })
	b.Subscribe(nil, func(Event) error { return nil })
	b.Unsubscribe(h1)

	if got := b.Prune(); got != 1 {
		t.Errorf("Prune = %d, want 1", got)
	}
	if got := b.Prune(); got != 0 {
		t.Errorf("second Prune = %d, want 0", got)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}
