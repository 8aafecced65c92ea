package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/sumi/internal/apperr"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

// providers returns every implementation so contract tests run on both.
func providers(t *testing.T) map[string]Provider {
	t.Helper()
	return map[string]Provider{
		"fs":     tempRoot(t),
		"memory": NewMemory(),
	}
}

func TestWriteAndRead(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		content := []byte("<Folder/>")
		if err := WriteAll(ctx, p, `\store.sumi`, content); err != nil {
			t.Fatalf("%s WriteAll: %v", name, err)
		}
		got, err := ReadAll(ctx, p, `\store.sumi`)
		if err != nil {
			t.Fatalf("%s ReadAll: %v", name, err)
		}
		if string(got) != string(content) {
			t.Errorf("%s content mismatch: got %q", name, got)
		}
	}
}

func TestCreateTruncates(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		_ = WriteAll(ctx, p, `\a.sumi`, []byte("long original content"))
		_ = WriteAll(ctx, p, `\a.sumi`, []byte("short"))
		got, _ := ReadAll(ctx, p, `\a.sumi`)
		if string(got) != "short" {
			t.Errorf("%s content = %q, want short", name, got)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		if _, err := p.Open(ctx, `\nope.sumi`); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s err = %v, want ErrNotFound", name, err)
		}
		if _, err := p.Stat(ctx, `\nope.sumi`); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s stat err = %v, want ErrNotFound", name, err)
		}
	}
}

func TestDeleteAndExists(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		_ = WriteAll(ctx, p, `\del.sumi`, []byte("bye"))
		if ok, _ := p.Exists(ctx, `\del.sumi`); !ok {
			t.Errorf("%s file should exist", name)
		}
		ok, err := p.Delete(ctx, `\del.sumi`)
		if err != nil || !ok {
			t.Fatalf("%s Delete = %v, %v", name, ok, err)
		}
		if ok, _ := p.Exists(ctx, `\del.sumi`); ok {
			t.Errorf("%s file should be gone", name)
		}
		if ok, _ := p.Delete(ctx, `\del.sumi`); ok {
			t.Errorf("%s second delete should report false", name)
		}
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		_ = WriteAll(ctx, p, `\a.sumi`, []byte("a"))
		_ = WriteAll(ctx, p, `\sub\b.sumi`, []byte("b"))

		all, err := p.List(ctx, `\`, true, true)
		if err != nil {
			t.Fatalf("%s List: %v", name, err)
		}
		if len(all) != 2 {
			t.Errorf("%s len = %d, want 2: %v", name, len(all), all)
		}
		folders, _ := p.List(ctx, `\`, true, false)
		if len(folders) != 1 || folders[0].Name != "sub" || folders[0].Kind != KindFolder {
			t.Errorf("%s folders = %v", name, folders)
		}
		files, _ := p.List(ctx, `\\sub\`, false, true)
		if len(files) != 1 || files[0].Name != "b.sumi" || files[0].Kind != KindFile {
			t.Errorf("%s files = %v", name, files)
		}
	}
}

func TestStatChangesOnWrite(t *testing.T) {
	ctx := context.Background()
	p := NewMemory()
	_ = WriteAll(ctx, p, `\s.sumi`, []byte("one"))
	before, err := p.Stat(ctx, `\s.sumi`)
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Put(`\s.sumi`, []byte("one"))
	after, _ := p.Stat(ctx, `\s.sumi`)
	if before.Equal(after) {
		t.Error("attributes should change after an external write")
	}
	if !before.Created.Equal(after.Created) {
		t.Error("created time should survive overwrites")
	}
}

func TestWriteFilter(t *testing.T) {
	ctx := context.Background()
	p := NewMemory()
	p.SetWriteFilter(func(_ string, data []byte) []byte { return append(data, '!') })
	_ = WriteAll(ctx, p, `\f.sumi`, []byte("x"))
	got, _ := p.Get(`\f.sumi`)
	if string(got) != "x!" {
		t.Errorf("got %q", got)
	}
}

func TestTraversalBlocked(t *testing.T) {
	ctx := context.Background()
	s := tempRoot(t)

	cases := []string{
		`\..\..\etc\passwd`,
		`..\outside.sumi`,
		`\a\.\b.sumi`,
		`\dir\`,
	}
	for _, p := range cases {
		if _, err := s.Open(ctx, p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.Create(ctx, p); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	ctx := context.Background()
	s := tempRoot(t)
	_ = WriteAll(ctx, s, `\atomic.sumi`, []byte("original content"))
	if err := WriteAll(ctx, s, `\atomic.sumi`, []byte("updated content")); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	got, _ := ReadAll(ctx, s, `\atomic.sumi`)
	if string(got) != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".sumi-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/sumi-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "sumi-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
