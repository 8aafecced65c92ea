package tree

// EventType identifies a change delivered to observers.
type EventType int

// Change notifications. ChildAdded and ChildRemoved are structural; the
// rest are attribute changes.
const (
	ChildAdded EventType = iota + 1
	ChildRemoved
	LabelChanged
	ContentChanged
	DirtyChanged
)

func (t EventType) String() string {
	switch t {
	case ChildAdded:
		return "child_added"
	case ChildRemoved:
		return "child_removed"
	case LabelChanged:
		return "label_changed"
	case ContentChanged:
		return "content_changed"
	case DirtyChanged:
		return "dirty_changed"
	}
	return "unknown"
}

// Event describes a change on Node. Child is set for structural events.
type Event struct {
	Type  EventType
	Node  *Node
	Child *Node
}

type subscription struct {
	fn func(Event)
}

// Subscribe registers fn for events raised on n or any of its descendants.
// Events are delivered synchronously, before the mutating call returns.
// The returned func removes the subscription.
func (n *Node) Subscribe(fn func(Event)) (cancel func()) {
	s := &subscription{fn: fn}
	n.subs = append(n.subs, s)
	return func() {
		for i, cur := range n.subs {
			if cur == s {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// notify delivers ev to observers of ev.Node and of every ancestor.
func notify(ev Event) {
	for p := ev.Node; p != nil; p = p.parent {
		if len(p.subs) == 0 {
			continue
		}
		subs := make([]*subscription, len(p.subs))
		copy(subs, p.subs)
		for _, s := range subs {
			s.fn(ev)
		}
	}
}
