// Package tree implements the cabinet document tree: a closed set of node
// variants composed under an allowed-children table, with dirty tracking
// and synchronous change notification.
package tree

import (
	"fmt"
	"strings"

	"github.com/starford/sumi/internal/apperr"
)

// Kind is the variant of a node.
type Kind int

// Node variants.
const (
	KindCabinet Kind = iota + 1
	KindFolder
	KindCard
	KindSingleLine
	KindMultiLine
)

var kindNames = map[Kind]string{
	KindCabinet:    "cabinet",
	KindFolder:     "folder",
	KindCard:       "card",
	KindSingleLine: "line",
	KindMultiLine:  "text",
}

type edge struct{ parent, child Kind }

// allowed is the composition table: a parent kind accepts exactly the
// child kinds listed for it.
var allowed = map[edge]bool{
	{KindCabinet, KindFolder}:  true,
	{KindFolder, KindFolder}:   true,
	{KindFolder, KindCard}:     true,
	{KindCard, KindSingleLine}: true,
	{KindCard, KindMultiLine}:  true,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared variants.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsEntry reports whether k is a leaf entry carrying text content.
func (k Kind) IsEntry() bool {
	return k == KindSingleLine || k == KindMultiLine
}

// Accepts reports whether a node of kind k may hold a child of kind child.
func (k Kind) Accepts(child Kind) bool {
	return allowed[edge{k, child}]
}

// ParseKind maps a kind name ("folder", "card", "line", "text", "cabinet")
// back to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("tree: unknown kind %q: %w", s, apperr.ErrInvalidOperation)
}
