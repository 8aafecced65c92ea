package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/sumi/internal/apperr"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path mapped to `\`
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute directory backing `\`.
func (f *FS) Root() string {
	return f.root
}

// LocalPath maps a provider file path to its location on disk.
func (f *FS) LocalPath(path string) (string, error) {
	clean, err := CleanFile(path)
	if err != nil {
		return "", err
	}
	return f.safePath(clean)
}

// safePath resolves a clean provider path against the root and rejects
// any result that escapes it.
func (f *FS) safePath(clean string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(strings.TrimPrefix(clean, Separator), Separator, "/"))
	if rel == "" {
		return f.root, nil
	}
	abs, err := filepath.Abs(filepath.Join(f.root, rel))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", clean)
	}
	return abs, nil
}

func wrapIO(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, path, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w: %v", op, path, apperr.ErrProviderFailure, err)
}

// Open returns a reader over a file.
func (f *FS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.LocalPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, wrapIO("open", path, err)
	}
	return file, nil
}

// Create returns a writer that replaces the file on Close:
// tmp file → fsync → rename.
func (f *FS) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.LocalPath(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapIO("mkdir", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".sumi-tmp-*")
	if err != nil {
		return nil, wrapIO("create temp", path, err)
	}
	return &atomicWriter{tmp: tmp, target: abs, path: path}, nil
}

type atomicWriter struct {
	tmp    *os.File
	target string
	path   string
	failed bool
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	if err != nil {
		w.failed = true
		return n, wrapIO("write temp", w.path, err)
	}
	return n, nil
}

func (w *atomicWriter) Close() error {
	tmpName := w.tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = w.tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if w.failed {
		return fmt.Errorf("storage: write %s: %w: aborted after failed write", w.path, apperr.ErrProviderFailure)
	}
	if err := w.tmp.Sync(); err != nil {
		return wrapIO("fsync", w.path, err)
	}
	if err := w.tmp.Close(); err != nil {
		return wrapIO("close temp", w.path, err)
	}
	if err := os.Rename(tmpName, w.target); err != nil {
		return wrapIO("rename", w.path, err)
	}
	success = true
	return nil
}

// Delete removes a file.
func (f *FS) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	abs, err := f.LocalPath(path)
	if err != nil {
		return false, err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, wrapIO("delete", path, err)
	}
	return true, nil
}

// Exists reports whether a regular file exists at path.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	abs, err := f.LocalPath(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, wrapIO("stat", path, err)
	}
	return !info.IsDir(), nil
}

// List enumerates the direct children of a folder. Temp files left by
// Create are skipped.
func (f *FS) List(ctx context.Context, folder string, wantFolders, wantFiles bool) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := CleanFolder(folder)
	if err != nil {
		return nil, err
	}
	abs, err := f.safePath(clean)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, wrapIO("list", clean, err)
	}
	var out []Entry
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".sumi-tmp-") {
			continue
		}
		switch {
		case d.IsDir() && wantFolders:
			out = append(out, Entry{Name: d.Name(), Kind: KindFolder})
		case !d.IsDir() && wantFiles:
			out = append(out, Entry{Name: d.Name(), Kind: KindFile})
		}
	}
	return out, nil
}

// Stat returns size and timestamps of a file.
func (f *FS) Stat(ctx context.Context, path string) (Attributes, error) {
	if err := ctx.Err(); err != nil {
		return Attributes{}, err
	}
	abs, err := f.LocalPath(path)
	if err != nil {
		return Attributes{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Attributes{}, wrapIO("stat", path, err)
	}
	created, modified := fileTimes(info)
	return Attributes{Size: info.Size(), Created: created, Modified: modified}, nil
}
