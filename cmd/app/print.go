package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/starford/sumi/internal/service"
)

// printTree writes v as an indented outline. Entries show their text;
// multi-line text continues on indented lines.
func printTree(w io.Writer, v *service.NodeView, depth int) {
	pad := strings.Repeat("  ", depth)
	switch v.Kind {
	case "line":
		fmt.Fprintf(w, "%s%s: %s\n", pad, v.Label, v.Content)
	case "text":
		lines := strings.Split(v.Content, "\n")
		fmt.Fprintf(w, "%s%s: %s\n", pad, v.Label, lines[0])
		for _, l := range lines[1:] {
			fmt.Fprintf(w, "%s  %s\n", pad, l)
		}
	default:
		fmt.Fprintf(w, "%s%s [%s %s]\n", pad, v.Label, v.Kind, v.ID)
	}
	for i := range v.Children {
		printTree(w, &v.Children[i], depth+1)
	}
}
