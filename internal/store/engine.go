// Package store implements the storage engine: one password-protected
// cabinet file, loaded into a tree, with lock masking, verified writes and
// external-change detection.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/sumi/internal/apperr"
	"github.com/starford/sumi/internal/storage"
	"github.com/starford/sumi/internal/tree"
)

// TempSuffix is appended to the target path for the file written before
// verification.
const TempSuffix = ".tmp"

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithLegacyUpgrade rewrites a legacy-cipher store with the primary cipher
// as soon as it is unlocked. Without it the store is only marked dirty.
func WithLegacyUpgrade(on bool) Option {
	return func(e *Engine) {
		e.upgradeLegacy = on
	}
}

// Engine owns at most one open store. All transitions run inside a
// per-instance exclusion region.
type Engine struct {
	provider      storage.Provider
	logger        *slog.Logger
	upgradeLegacy bool

	mu          sync.Mutex
	initialized bool
	path        string
	password    string
	locked      bool
	real        *tree.Node
	mask        *tree.Node
	snapshot    *storage.Attributes
	unwatch     func()

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New returns an uninitialized engine reading and writing through p.
func New(p storage.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider: p,
		logger:   slog.Default(),
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create writes a fresh cabinet at path, replacing any existing file, and
// leaves the store locked.
func (e *Engine) Create(ctx context.Context, path, password string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return apperr.ErrAlreadyInitialized
	}
	clean, err := storage.CleanFile(path)
	if err != nil {
		return fmt.Errorf("store: create: %v: %w", err, apperr.ErrInvalidOperation)
	}
	if err := CheckKeyLength(password); err != nil {
		return err
	}
	if _, err := e.provider.Delete(ctx, clean); err != nil {
		return err
	}
	root, err := tree.NewCabinet(storage.DisplayName(clean), password)
	if err != nil {
		return err
	}

	e.initialized = true
	e.path = clean
	e.password = password
	e.install(root)
	if err := e.saveAs(ctx, clean, password, false); err != nil {
		e.reset()
		return err
	}
	e.lock()
	e.logger.Debug("store created", slog.String("path", clean))
	return nil
}

// Open attaches the engine to an existing file without reading it.
// Unlock loads the tree.
func (e *Engine) Open(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return apperr.ErrAlreadyInitialized
	}
	clean, err := storage.CleanFile(path)
	if err != nil {
		return fmt.Errorf("store: open: %v: %w", err, apperr.ErrInvalidOperation)
	}
	ok, err := e.provider.Exists(ctx, clean)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("store: open %s: %w", clean, apperr.ErrNotFound)
	}
	e.initialized = true
	e.path = clean
	e.locked = false
	e.logger.Debug("store opened", slog.String("path", clean))
	return nil
}

// Unlock loads the tree on first use, otherwise checks password against
// the current one and reveals the held tree.
func (e *Engine) Unlock(ctx context.Context, password string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return apperr.ErrNotInitialized
	}
	if err := CheckKeyLength(password); err != nil {
		return err
	}
	if e.real == nil {
		if err := e.load(ctx, password); err != nil {
			return err
		}
	} else if password != e.password {
		return fmt.Errorf("store: unlock: %w", apperr.ErrIncorrectPassword)
	}
	e.locked = false
	e.mask = nil
	e.emit(Event{Type: EventUnlocked, Path: e.path})
	return nil
}

// load reads and decodes the file. Nothing is installed unless every step
// succeeds.
func (e *Engine) load(ctx context.Context, password string) error {
	data, err := storage.ReadAll(ctx, e.provider, e.path)
	if err != nil {
		return err
	}
	root, legacy, err := Decode(data, password)
	if err != nil {
		return err
	}
	attrs, err := e.provider.Stat(ctx, e.path)
	if err != nil {
		return err
	}

	root.ClearDirty()
	e.install(root)
	e.password = password
	e.snapshot = &attrs
	if legacy {
		root.MarkDirty()
		if !e.upgradeLegacy {
			e.logger.Info("store uses the legacy cipher; it will be rewritten on next save",
				slog.String("path", e.path))
		} else if err := e.saveAs(ctx, e.path, password, false); err != nil {
			e.logger.Warn("legacy store upgrade failed; it stays dirty",
				slog.String("path", e.path),
				slog.String("error", err.Error()))
		} else {
			e.logger.Info("legacy store rewritten with the primary cipher", slog.String("path", e.path))
		}
	}
	e.logger.Debug("store loaded", slog.String("path", e.path), slog.Int64("size", attrs.Size))
	return nil
}

// Lock hides the tree behind an empty placeholder folder.
func (e *Engine) Lock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return
	}
	e.lock()
}

func (e *Engine) lock() {
	if e.mask == nil {
		mask, err := tree.NewFolder(storage.DisplayName(e.path))
		if err != nil {
			mask, _ = tree.NewFolder("Locked")
		}
		e.mask = mask
	}
	e.locked = true
	e.emit(Event{Type: EventLocked, Path: e.path})
}

// Save writes the tree if it has unsaved changes.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return apperr.ErrNotInitialized
	}
	if e.real == nil || !e.real.Dirty() {
		return nil
	}
	return e.saveAs(ctx, e.path, e.password, false)
}

// SaveAs writes the tree to path under password. With checkSync set the
// write is refused when the current file changed on disk since it was
// last read or written.
func (e *Engine) SaveAs(ctx context.Context, path, password string, checkSync bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized || e.real == nil {
		return apperr.ErrNotInitialized
	}
	clean, err := storage.CleanFile(path)
	if err != nil {
		return fmt.Errorf("store: save: %v: %w", err, apperr.ErrInvalidOperation)
	}
	return e.saveAs(ctx, clean, password, checkSync)
}

func (e *Engine) saveAs(ctx context.Context, path, password string, checkSync bool) error {
	if err := CheckKeyLength(password); err != nil {
		return err
	}
	if checkSync && !e.inSync(ctx) {
		return fmt.Errorf("store: save %s: %w", e.path, apperr.ErrOutOfSync)
	}

	expected := e.real.Clone()
	if err := expected.SetPassword(password, tree.Quietly()); err != nil {
		return err
	}
	data, err := Encode(expected, password)
	if err != nil {
		return err
	}

	tmp := path + TempSuffix
	if err := storage.WriteAll(ctx, e.provider, tmp, data); err != nil {
		return err
	}
	written, err := storage.ReadAll(ctx, e.provider, tmp)
	if err == nil {
		err = Verify(written, password, expected)
	} else {
		err = fmt.Errorf("store: read back %s: %v: %w", tmp, err, apperr.ErrIntegrityCheckFailed)
	}
	if err != nil {
		e.removeTemp(ctx, tmp)
		return err
	}

	if err := storage.WriteAll(ctx, e.provider, path, written); err != nil {
		e.removeTemp(ctx, tmp)
		return err
	}
	e.removeTemp(ctx, tmp)

	attrs, err := e.provider.Stat(ctx, path)
	if err != nil {
		return err
	}
	e.snapshot = &attrs
	e.path = path
	e.password = password
	_ = e.real.SetPassword(password, tree.Quietly())
	e.real.ClearDirty()
	e.logger.Debug("store saved", slog.String("path", path), slog.Int64("size", attrs.Size))
	e.emit(Event{Type: EventSaved, Path: path})
	return nil
}

func (e *Engine) removeTemp(ctx context.Context, tmp string) {
	if _, err := e.provider.Delete(ctx, tmp); err != nil {
		e.logger.Warn("failed to remove temp file",
			slog.String("path", tmp),
			slog.String("error", err.Error()))
	}
}

// Close drops the tree, relocks and returns the engine to its
// uninitialized state. With saveFirst set, unsaved changes are written
// first. If that save fails Close returns its error and does not close:
// the tree, the lock state and the dirty flag stay as they were, so the
// caller can retry or close again without saving.
func (e *Engine) Close(ctx context.Context, saveFirst bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.close(ctx, saveFirst)
}

func (e *Engine) close(ctx context.Context, saveFirst bool) error {
	if !e.initialized {
		return nil
	}
	if saveFirst && e.real != nil && e.real.Dirty() {
		if err := e.saveAs(ctx, e.path, e.password, false); err != nil {
			return err
		}
	}
	path := e.path
	e.reset()
	e.logger.Debug("store closed", slog.String("path", path))
	e.emit(Event{Type: EventClosed, Path: path})
	return nil
}

// IsInSync reports whether the file on disk still matches the last read
// or write. Probe failures count as out of sync.
func (e *Engine) IsInSync(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inSync(ctx)
}

func (e *Engine) inSync(ctx context.Context) bool {
	if e.snapshot == nil {
		return true
	}
	attrs, err := e.provider.Stat(ctx, e.path)
	if err != nil {
		e.logger.Debug("stat failed, treating store as out of sync",
			slog.String("path", e.path),
			slog.String("error", err.Error()))
		return false
	}
	return attrs.Equal(*e.snapshot)
}

// Sync reconciles with an external change. A clean store that went stale
// is closed and true is returned; the caller reopens it. A dirty stale
// store is left alone and false is returned.
func (e *Engine) Sync(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snapshot == nil {
		return false
	}
	if e.inSync(ctx) {
		return true
	}
	if e.real != nil && e.real.Dirty() {
		e.logger.Warn("store changed on disk but has unsaved edits", slog.String("path", e.path))
		return false
	}
	e.logger.Info("store changed on disk, discarding loaded tree", slog.String("path", e.path))
	return e.close(ctx, false) == nil
}

// install makes root the held tree and forwards its events.
func (e *Engine) install(root *tree.Node) {
	if e.unwatch != nil {
		e.unwatch()
	}
	e.real = root
	e.unwatch = root.Subscribe(func(ev tree.Event) {
		e.emit(Event{Type: EventTreeChanged, Tree: ev})
	})
}

func (e *Engine) reset() {
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
	e.initialized = false
	e.path = ""
	e.password = ""
	e.locked = false
	e.real = nil
	e.mask = nil
	e.snapshot = nil
}

// Root returns the visible root: the real cabinet when unlocked, the
// placeholder when locked, nil when nothing is loaded.
func (e *Engine) Root() *tree.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized || e.real == nil {
		return nil
	}
	if e.locked {
		return e.mask
	}
	return e.real
}

// Dirty mirrors the real tree's dirty flag, locked or not.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.real != nil && e.real.Dirty()
}

func (e *Engine) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Loaded reports whether a tree has been read or created.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.real != nil
}

func (e *Engine) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// Name is the display name of the open store.
func (e *Engine) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.path == "" {
		return ""
	}
	return storage.DisplayName(e.path)
}

// Encrypted reports whether the open store has a password.
func (e *Engine) Encrypted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.password != ""
}

// State summarizes the engine for status displays.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.initialized:
		return StateUninitialized
	case e.real == nil:
		return StateInitialized
	case e.locked:
		return StateLocked
	}
	return StateUnlocked
}
