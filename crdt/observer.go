package crdt

import "sync"

// Subscription is a scoped handle returned by every observe call in this
// package. Disposal is idempotent via sync.Once; the back-reference to
// the target is simply the closure captured at subscribe time, which is
// a no-op once the target has already removed itself from its own
// subscriber map.
type Subscription struct {
	once   sync.Once
	remove func()
}

// Unsubscribe detaches the callback. Safe to call multiple times or
// concurrently; only the first call has an effect.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.remove != nil {
			s.remove()
		}
	})
}

// subscribers is a generic fan-out list, one per emitter (Doc.updateSubs,
// and one per shared-type handle for Event delivery).
type subscribers[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

func newSubscribers[T any]() *subscribers[T] {
	return &subscribers[T]{subs: make(map[int]func(T))}
}

func (s *subscribers[T]) subscribe(cb func(T)) *Subscription {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = cb
	s.mu.Unlock()

	return &Subscription{remove: func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}}
}

// emit fires every currently-registered callback, in ascending
// subscription-id (i.e. registration) order. A subscriber that
// unsubscribes from within its own callback completes first, then
// detaches. A panicking callback is recovered and the remaining callbacks
// still run.
func (s *subscribers[T]) emit(v T) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	cbs := make([]func(T), 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, s.subs[id])
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() { _ = recover() }()
			cb(v)
		}()
	}
}

func (s *subscribers[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// ChangeKind identifies one entry of an Event's delta.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeDelete
	ChangeRetain
	ChangeAttribute
)

// Change is one entry of an Event's delta.
type Change struct {
	Kind   ChangeKind
	Length int   // Delete, Retain: number of elements affected
	Values []any // Insert: the inserted values, in order
	Key    string
// Attribute: the map/attribute key written; "" otherwise
	Attributes map[string]any // Attribute: the new value under Attributes[Key]; Insert (XML): initial attrs
}

// Event is delivered to a shared type's observers once per commit that
// touched it.
type Event struct {
	Target  any
	Origin  string
	Changes []Change
}

// eventEmitter is embedded by every shared-type handle to provide
// Observe/fire without repeating the subscribers[Event] boilerplate.
type eventEmitter struct {
	subs *subscribers[Event]
}

func newEventEmitter() eventEmitter {
	return eventEmitter{subs: newSubscribers[Event]()}
}

// Observe registers cb to run once per commit that changed this shared
// type through its local mutators, after every mutation in that
// transaction has been applied. Remote changes integrated by ApplyUpdate
// do not fire these observers.
func (e *eventEmitter) Observe(cb func(Event)) *Subscription {
	return e.subs.subscribe(cb)
}

func (e *eventEmitter) fire(ev Event) {
	if len(ev.Changes) == 0 {
		return
	}
	e.subs.emit(ev)
}
