// Package storage defines the byte-stream provider the store engine reads
// and writes through, and ships local-disk and in-memory implementations.
package storage

import (
	"context"
	"io"
	"time"
)

// EntryKind tags an enumerated child as a folder or a file.
type EntryKind int

const (
	KindFile EntryKind = iota + 1
	KindFolder
)

func (k EntryKind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// Entry is one child returned by Provider.List.
type Entry struct {
	Name string
	Kind EntryKind
}

// Attributes is the on-disk fingerprint of a file used to detect
// external changes.
type Attributes struct {
	Size     int64
	Created  time.Time
	Modified time.Time
}

// Equal reports whether a and b describe the same file state.
func (a Attributes) Equal(b Attributes) bool {
	return a.Size == b.Size && a.Created.Equal(b.Created) && a.Modified.Equal(b.Modified)
}

// Provider is the interface for store file operations. Paths are
// backslash-delimited and rooted at `\` (see CleanFile and CleanFolder).
// Missing files are reported with apperr.ErrNotFound.
type Provider interface {
	// Open returns a reader over the file at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Create creates or truncates the file at path. Written bytes are
	// committed when the writer is closed.
	Create(ctx context.Context, path string) (io.WriteCloser, error)
	// Delete removes the file at path and reports whether it existed.
	Delete(ctx context.Context, path string) (bool, error)
	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) (bool, error)
	// List enumerates the direct children of folder.
	List(ctx context.Context, folder string, wantFolders, wantFiles bool) ([]Entry, error)
	// Stat returns the attributes of the file at path.
	Stat(ctx context.Context, path string) (Attributes, error)
}

// ReadAll reads the whole file at path.
func ReadAll(ctx context.Context, p Provider, path string) ([]byte, error) {
	r, err := p.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteAll replaces the content of the file at path with data.
func WriteAll(ctx context.Context, p Provider, path string, data []byte) error {
	w, err := p.Create(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
