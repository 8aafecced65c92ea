package tree

import (
	"fmt"

	"github.com/starford/sumi/internal/apperr"
)

// Option adjusts a mutating call.
type Option func(*mutation)

type mutation struct {
	index int
	quiet bool
}

// At inserts the attached child at position i instead of appending it.
func At(i int) Option {
	return func(m *mutation) { m.index = i }
}

// Quietly leaves the dirty flag untouched. Loading and cloning use it to
// build subtrees without tainting a fresh load.
func Quietly() Option {
	return func(m *mutation) { m.quiet = true }
}

func apply(opts []Option) mutation {
	m := mutation{index: -1}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Attach adds child to n. It fails when child already has a parent, when
// child is n or one of its ancestors, or when n's kind does not accept
// child's kind.
func (n *Node) Attach(child *Node, opts ...Option) error {
	m := apply(opts)
	switch {
	case child == nil:
		return fmt.Errorf("tree: attach nil child: %w", apperr.ErrInvalidOperation)
	case child.parent != nil:
		return fmt.Errorf("tree: %s %s already has a parent: %w", child.kind, child.id, apperr.ErrInvalidOperation)
	case child == n || child.isAncestorOf(n):
		return fmt.Errorf("tree: attaching %s under %s would create a cycle: %w", child.id, n.id, apperr.ErrInvalidOperation)
	case !n.kind.Accepts(child.kind):
		return fmt.Errorf("tree: %s cannot hold %s: %w", n.kind, child.kind, apperr.ErrInvalidOperation)
	}

	idx := m.index
	if idx < 0 {
		idx = len(n.children)
	}
	if idx > len(n.children) {
		return fmt.Errorf("tree: index %d out of range [0,%d]: %w", idx, len(n.children), apperr.ErrInvalidOperation)
	}
	n.children = append(n.children, nil)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = child
	child.parent = n

	notify(Event{Type: ChildAdded, Node: n, Child: child})
	if !m.quiet {
		n.MarkDirty()
	}
	return nil
}

// Detach removes child from n. It returns false when child is not one of
// n's children.
func (n *Node) Detach(child *Node, opts ...Option) bool {
	i := n.IndexOf(child)
	if i < 0 {
		return false
	}
	_, ok := n.DetachAt(i, opts...)
	return ok
}

// DetachAt removes and returns the child at position i.
func (n *Node) DetachAt(i int, opts ...Option) (*Node, bool) {
	if i < 0 || i >= len(n.children) {
		return nil, false
	}
	m := apply(opts)
	child := n.children[i]
	n.children = append(n.children[:i], n.children[i+1:]...)
	child.parent = nil

	notify(Event{Type: ChildRemoved, Node: n, Child: child})
	if !m.quiet {
		n.MarkDirty()
	}
	return child, true
}

// DetachAll removes every child of n.
func (n *Node) DetachAll(opts ...Option) {
	for len(n.children) > 0 {
		n.DetachAt(len(n.children)-1, opts...)
	}
}

// SetLabel replaces the label of n.
func (n *Node) SetLabel(label string, opts ...Option) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	if label == n.label {
		return nil
	}
	n.label = label
	notify(Event{Type: LabelChanged, Node: n})
	if !apply(opts).quiet {
		n.MarkDirty()
	}
	return nil
}

// SetContent replaces the text of an entry.
func (n *Node) SetContent(text string, opts ...Option) error {
	switch n.kind {
	case KindSingleLine:
		if err := checkSingleLine("content", text); err != nil {
			return err
		}
	case KindMultiLine:
		if err := checkText("content", text); err != nil {
			return err
		}
		text = normalizeLines(text)
	default:
		return fmt.Errorf("tree: %s has no content: %w", n.kind, apperr.ErrInvalidOperation)
	}
	if text == n.content {
		return nil
	}
	n.content = text
	notify(Event{Type: ContentChanged, Node: n})
	if !apply(opts).quiet {
		n.MarkDirty()
	}
	return nil
}

// SetPassword replaces the password carried by a cabinet.
func (n *Node) SetPassword(password string, opts ...Option) error {
	if n.kind != KindCabinet {
		return fmt.Errorf("tree: %s has no password: %w", n.kind, apperr.ErrInvalidOperation)
	}
	if err := checkText("password", password); err != nil {
		return err
	}
	if password == n.password {
		return nil
	}
	n.password = password
	notify(Event{Type: ContentChanged, Node: n})
	if !apply(opts).quiet {
		n.MarkDirty()
	}
	return nil
}

// MarkDirty flags n and every ancestor as dirty and advances their
// modification time.
func (n *Node) MarkDirty() {
	t := now()
	for p := n; p != nil; p = p.parent {
		if t.After(p.modified) {
			p.modified = t
		}
		if !p.dirty {
			p.dirty = true
			notify(Event{Type: DirtyChanged, Node: p})
		}
	}
}

// ClearDirty clears the dirty flag of n and all its descendants.
func (n *Node) ClearDirty() {
	for _, c := range n.children {
		c.ClearDirty()
	}
	if n.dirty {
		n.dirty = false
		notify(Event{Type: DirtyChanged, Node: n})
	}
}
