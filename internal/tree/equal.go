package tree

// Equal reports whether a and b hold the same content: kind, label,
// entry text, cabinet password and, recursively, the same children in the
// same order. Identifiers, timestamps and dirty flags are ignored.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind ||
		a.label != b.label ||
		a.content != b.content ||
		a.password != b.password ||
		len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !Equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent deep copy of n's subtree with the same
// identifiers, timestamps, content and dirty flags. The copy has no parent
// and no observers.
func (n *Node) Clone() *Node {
	c := &Node{
		id:       n.id,
		kind:     n.kind,
		created:  n.created,
		modified: n.modified,
		dirty:    n.dirty,
		label:    n.label,
		content:  n.content,
		password: n.password,
	}
	if len(n.children) > 0 {
		c.children = make([]*Node, len(n.children))
		for i, child := range n.children {
			cc := child.Clone()
			cc.parent = c
			c.children[i] = cc
		}
	}
	return c
}
