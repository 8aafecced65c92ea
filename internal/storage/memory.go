package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/sumi/internal/apperr"
)

// Memory is an in-process Provider. It stands in for roaming or remote
// storage and backs the tests.
type Memory struct {
	mu     sync.Mutex
	files  map[string]*memFile
	last   time.Time
	filter func(path string, data []byte) []byte
}

type memFile struct {
	data     []byte
	created  time.Time
	modified time.Time
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]*memFile)}
}

// SetWriteFilter installs fn to rewrite bytes as they are committed by a
// Create writer. A nil fn removes the filter.
func (m *Memory) SetWriteFilter(fn func(path string, data []byte) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = fn
}

// Put replaces a file's content directly, as another device would.
func (m *Memory) Put(path string, data []byte) error {
	clean, err := CleanFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commit(clean, data)
	return nil
}

// Get returns a copy of a file's content.
func (m *Memory) Get(path string) ([]byte, bool) {
	clean, err := CleanFile(path)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean]
	if !ok {
		return nil, false
	}
	return bytes.Clone(f.data), true
}

// tick returns a strictly increasing timestamp so every commit changes
// the file attributes.
func (m *Memory) tick() time.Time {
	t := time.Now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Nanosecond)
	}
	m.last = t
	return t
}

func (m *Memory) commit(clean string, data []byte) {
	t := m.tick()
	f, ok := m.files[clean]
	if !ok {
		f = &memFile{created: t}
		m.files[clean] = f
	}
	f.data = bytes.Clone(data)
	f.modified = t
}

func (m *Memory) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := m.Get(path)
	if !ok {
		return nil, fmt.Errorf("storage: open %s: %w", path, apperr.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := CleanFile(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.commit(clean, nil)
	m.mu.Unlock()
	return &memWriter{m: m, path: clean}, nil
}

type memWriter struct {
	m      *Memory
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("storage: write %s: %w: writer closed", w.path, apperr.ErrProviderFailure)
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	data := w.buf.Bytes()
	if w.m.filter != nil {
		data = w.m.filter(w.path, data)
	}
	w.m.commit(w.path, data)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	clean, err := CleanFile(path)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[clean]; !ok {
		return false, nil
	}
	delete(m.files, clean)
	return true, nil
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := m.Get(path)
	return ok, nil
}

func (m *Memory) List(ctx context.Context, folder string, wantFolders, wantFiles bool) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := CleanFolder(folder)
	if err != nil {
		return nil, err
	}
	prefix := clean
	if prefix != Separator {
		prefix += Separator
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]EntryKind)
	for p := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if i := strings.Index(rest, Separator); i >= 0 {
			seen[rest[:i]] = KindFolder
		} else if _, ok := seen[rest]; !ok {
			seen[rest] = KindFile
		}
	}
	var out []Entry
	for name, kind := range seen {
		if (kind == KindFolder && wantFolders) || (kind == KindFile && wantFiles) {
			out = append(out, Entry{Name: name, Kind: kind})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Stat(ctx context.Context, path string) (Attributes, error) {
	if err := ctx.Err(); err != nil {
		return Attributes{}, err
	}
	clean, err := CleanFile(path)
	if err != nil {
		return Attributes{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean]
	if !ok {
		return Attributes{}, fmt.Errorf("storage: stat %s: %w", path, apperr.ErrNotFound)
	}
	return Attributes{Size: int64(len(f.data)), Created: f.created, Modified: f.modified}, nil
}
