package tree

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/starford/sumi/internal/apperr"
)

// now is the clock used for fresh nodes and dirty timestamps.
var now = func() time.Time { return time.Now().UTC() }

// Node is one element of the document tree. A node belongs to at most one
// parent; its children are ordered.
//
// Node is not safe for concurrent use.
type Node struct {
	id       string
	kind     Kind
	created  time.Time
	modified time.Time
	dirty    bool

	label    string
	content  string // entries only
	password string // cabinet only

	parent   *Node
	children []*Node
	subs     []*subscription
}

// Record is the persisted form of a single node, without its children.
type Record struct {
	ID       string
	Kind     Kind
	Created  time.Time
	Modified time.Time
	Label    string
	Content  string
	Password string
}

func newNode(kind Kind, label string) (*Node, error) {
	if err := checkLabel(label); err != nil {
		return nil, err
	}
	t := now()
	return &Node{
		id:       uuid.NewString(),
		kind:     kind,
		created:  t,
		modified: t,
		dirty:    true,
		label:    label,
	}, nil
}

// NewCabinet creates a fresh, dirty cabinet root carrying the store password.
func NewCabinet(label, password string) (*Node, error) {
	n, err := newNode(KindCabinet, label)
	if err != nil {
		return nil, err
	}
	if err := checkText("password", password); err != nil {
		return nil, err
	}
	n.password = password
	return n, nil
}

// NewFolder creates a fresh, dirty folder.
func NewFolder(label string) (*Node, error) {
	return newNode(KindFolder, label)
}

// NewCard creates a fresh, dirty card.
func NewCard(label string) (*Node, error) {
	return newNode(KindCard, label)
}

// NewSingleLineEntry creates an entry whose text may not contain line breaks.
func NewSingleLineEntry(label, text string) (*Node, error) {
	if err := checkSingleLine("content", text); err != nil {
		return nil, err
	}
	n, err := newNode(KindSingleLine, label)
	if err != nil {
		return nil, err
	}
	n.content = text
	return n, nil
}

// NewMultiLineEntry creates an entry holding free text. CR-LF pairs are
// stored as a single LF.
func NewMultiLineEntry(label, text string) (*Node, error) {
	if err := checkText("content", text); err != nil {
		return nil, err
	}
	n, err := newNode(KindMultiLine, label)
	if err != nil {
		return nil, err
	}
	n.content = normalizeLines(text)
	return n, nil
}

// New creates a fresh node of any non-cabinet kind. content is only valid
// for entries.
func New(kind Kind, label, content string) (*Node, error) {
	switch kind {
	case KindFolder, KindCard:
		if content != "" {
			return nil, fmt.Errorf("tree: %s has no content: %w", kind, apperr.ErrInvalidOperation)
		}
		return newNode(kind, label)
	case KindSingleLine:
		return NewSingleLineEntry(label, content)
	case KindMultiLine:
		return NewMultiLineEntry(label, content)
	default:
		return nil, fmt.Errorf("tree: cannot create %s: %w", kind, apperr.ErrInvalidOperation)
	}
}

// Restore rebuilds a clean node from its persisted record. The record must
// satisfy created <= modified <= now.
func Restore(r Record) (*Node, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("tree: record without id: %w", apperr.ErrCorrupt)
	}
	if !r.Kind.Valid() {
		return nil, fmt.Errorf("tree: record %s has unknown kind: %w", r.ID, apperr.ErrCorrupt)
	}
	if r.Created.After(r.Modified) || r.Modified.After(now()) {
		return nil, fmt.Errorf("tree: record %s has inconsistent timestamps: %w", r.ID, apperr.ErrCorrupt)
	}
	if checkLabel(r.Label) != nil {
		return nil, fmt.Errorf("tree: record %s has invalid label: %w", r.ID, apperr.ErrCorrupt)
	}
	n := &Node{
		id:       r.ID,
		kind:     r.Kind,
		created:  r.Created,
		modified: r.Modified,
		label:    r.Label,
	}
	switch r.Kind {
	case KindCabinet:
		if checkText("password", r.Password) != nil {
			return nil, fmt.Errorf("tree: record %s has invalid password: %w", r.ID, apperr.ErrCorrupt)
		}
		n.password = r.Password
	case KindSingleLine:
		if checkSingleLine("content", r.Content) != nil {
			return nil, fmt.Errorf("tree: record %s has invalid single-line content: %w", r.ID, apperr.ErrCorrupt)
		}
		n.content = r.Content
	case KindMultiLine:
		if checkText("content", r.Content) != nil {
			return nil, fmt.Errorf("tree: record %s has invalid content: %w", r.ID, apperr.ErrCorrupt)
		}
		n.content = normalizeLines(r.Content)
	}
	return n, nil
}

// Record returns the persisted form of n.
func (n *Node) Record() Record {
	return Record{
		ID:       n.id,
		Kind:     n.kind,
		Created:  n.created,
		Modified: n.modified,
		Label:    n.label,
		Content:  n.content,
		Password: n.password,
	}
}

func (n *Node) ID() string { return n.id }
func (n *Node) Kind() Kind { return n.kind }
func (n *Node) Label() string { return n.label }
func (n *Node) Content() string { return n.content }
func (n *Node) Password() string { return n.password }
func (n *Node) Created() time.Time { return n.created }
func (n *Node) Modified() time.Time { return n.modified }
func (n *Node) Dirty() bool { return n.dirty }
func (n *Node) Parent() *Node { return n.parent }
func (n *Node) Len() int { return len(n.children) }
func (n *Node) Child(i int) *Node { return n.children[i] }
func (n *Node) IsAttached() bool { return n.parent != nil }
func (n *Node) Accepts(kind Kind) bool { return n.kind.Accepts(kind) }

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// IndexOf returns the position of child among n's children, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// Root returns the top-most ancestor of n (n itself when detached).
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Path returns the labels from the root down to n.
func (n *Node) Path() []string {
	var out []string
	for p := n; p != nil; p = p.parent {
		out = append(out, p.label)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Walk visits n and its descendants in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Find returns the node with the given id in n's subtree.
func (n *Node) Find(id string) (*Node, bool) {
	if n.id == id {
		return n, true
	}
	for _, c := range n.children {
		if found, ok := c.Find(id); ok {
			return found, true
		}
	}
	return nil, false
}

// isAncestorOf reports whether n is a proper ancestor of other.
func (n *Node) isAncestorOf(other *Node) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

func checkLabel(label string) error {
	if label == "" {
		return fmt.Errorf("tree: empty label: %w", apperr.ErrInvalidOperation)
	}
	return checkSingleLine("label", label)
}

func checkSingleLine(field, s string) error {
	if err := checkText(field, s); err != nil {
		return err
	}
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("tree: %s contains a line break: %w", field, apperr.ErrInvalidOperation)
	}
	return nil
}

// checkText rejects strings the store file cannot carry: invalid UTF-8 and
// code points outside the XML 1.0 Char production.
func checkText(field, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("tree: %s is not valid UTF-8: %w", field, apperr.ErrInvalidOperation)
	}
	for i, r := range s {
		if !isXMLChar(r) {
			return fmt.Errorf("tree: %s has disallowed character %U at byte %d: %w", field, r, i, apperr.ErrInvalidOperation)
		}
	}
	return nil
}

func isXMLChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= utf8.MaxRune
}

func normalizeLines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
