package store

import "github.com/starford/sumi/internal/tree"

// State is the engine's position in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateUnlocked
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	}
	return "unknown"
}

// EventType identifies an engine notification.
type EventType int

const (
	// EventTreeChanged forwards a change raised anywhere in the real tree,
	// including while it is hidden by a lock.
	EventTreeChanged EventType = iota + 1
	EventSaved
	EventLocked
	EventUnlocked
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventTreeChanged:
		return "tree_changed"
	case EventSaved:
		return "saved"
	case EventLocked:
		return "locked"
	case EventUnlocked:
		return "unlocked"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// Event is delivered to engine subscribers. Tree is set for
// EventTreeChanged, Path for the others.
type Event struct {
	Type EventType
	Path string
	Tree tree.Event
}

// Subscribe registers fn for engine events. Events are delivered
// synchronously, possibly while the engine is mid-transition, so fn must
// not call back into the engine.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()

	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

func (e *Engine) emit(ev Event) {
	e.subsMu.Lock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
