package store

import (
	"sync"

	"github.com/jacentio/canopy/model"
)

// Status is the user-visible state of a store.
type Status struct {
	// Loading is true while at least one operation is in flight.
	Loading bool
	// Err is the error of the most recent operation, reset when the next
	// operation starts.
	Err error
}

// EventKind identifies a cache change.
type EventKind int

const (
	// EventUpserted means an entity was inserted or overwritten.
	EventUpserted EventKind = iota + 1
	// EventRemoved means an entity left the cache.
	EventRemoved
	// EventGroupLoaded means a group was replaced by a fetch.
	EventGroupLoaded
	// EventReordered means a group sequence was reordered locally.
	EventReordered
)

func (k EventKind) String() string {
	switch k {
	case EventUpserted:
		return "upserted"
	case EventRemoved:
		return "removed"
	case EventGroupLoaded:
		return "group_loaded"
	case EventReordered:
		return "reordered"
	default:
		return "unknown"
	}
}

// Event describes one cache change. ID is empty for group events.
type Event struct {
	Kind  EventKind
	ID    string
	Group model.Ref
}

// tracker holds the status and the subscribers of a store.
type tracker struct {
	stateMu  sync.Mutex
	inflight int
	lastErr  error
	subs     map[int]func(Event)
	nextSub  int
}

// begin marks an operation as started and clears the last error.
func (t *tracker) begin() {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.inflight++
	t.lastErr = nil
}

// end marks an operation as finished. A nil err keeps the slot clear.
// Callers end after the cache write and its events, so Loading stays true
// until the cache reflects the result.
func (t *tracker) end(err error) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.inflight--
	if err != nil {
		t.lastErr = err
	}
}

// Status returns the current status.
func (t *tracker) Status() Status {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return Status{Loading: t.inflight > 0, Err: t.lastErr}
}

// Subscribe registers fn for cache events. The returned function cancels the
// subscription.
func (t *tracker) Subscribe(fn func(Event)) (cancel func()) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(Event))
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.stateMu.Lock()
		defer t.stateMu.Unlock()
		delete(t.subs, id)
	}
}

// emit delivers events to every subscriber. It must not be called with the
// cache lock held.
func (t *tracker) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	t.stateMu.Lock()
	subs := make([]func(Event), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.stateMu.Unlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func removedEvents(group model.Ref, ids []string) []Event {
	events := make([]Event, 0, len(ids))
	for _, id := range ids {
		events = append(events, Event{Kind: EventRemoved, ID: id, Group: group})
	}
	return events
}
