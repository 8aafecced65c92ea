// Package testutil provides shared test helpers for building stores, trees
// and search indexes.
package testutil

import (
	"testing"

	"github.com/starford/sumi/internal/index"
	"github.com/starford/sumi/internal/storage"
	"github.com/starford/sumi/internal/tree"
)

// Password is an 8-character password accepted by the engine.
const Password = "sumi1234"

// TestIndex creates an in-memory search index that is closed on cleanup.
func TestIndex(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRoot creates a temporary directory with a storage.FS rooted at it.
func TestRoot(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// SampleTree builds cabinet -> folder "f1" -> card "c1" with a single-line
// entry "s1" = "hello" and a multi-line entry "notes".
func SampleTree(t *testing.T, password string) *tree.Node {
	t.Helper()
	cab, err := tree.NewCabinet("store", password)
	if err != nil {
		t.Fatal(err)
	}
	folder := must(t)(tree.NewFolder("f1"))
	card := must(t)(tree.NewCard("c1"))
	line := must(t)(tree.NewSingleLineEntry("s1", "hello"))
	text := must(t)(tree.NewMultiLineEntry("notes", "first line #work\nsee [[c2]]"))

	for _, step := range []struct{ parent, child *tree.Node }{
		{cab, folder}, {folder, card}, {card, line}, {card, text},
	} {
		if err := step.parent.Attach(step.child); err != nil {
			t.Fatal(err)
		}
	}
	return cab
}

func must(t *testing.T) func(*tree.Node, error) *tree.Node {
	return func(n *tree.Node, err error) *tree.Node {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return n
	}
}
