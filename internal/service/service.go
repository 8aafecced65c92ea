// Package service coordinates the storage engine, the search index and
// change notifications for every front end. Callers never touch the engine
// directly; the service serializes them.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/sumi/internal/apperr"
	"github.com/starford/sumi/internal/index"
	"github.com/starford/sumi/internal/store"
	"github.com/starford/sumi/internal/tree"
)

// Notifier receives change notifications. *sse.Broker implements it.
type Notifier interface {
	PublishNodeEvent(kind, id, parent string)
	PublishStoreEvent(kind, name string)
}

// Node event kinds passed to Notifier.PublishNodeEvent.
const (
	NodeAdded   = "added"
	NodeRemoved = "removed"
	NodeChanged = "changed"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier sets the change sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithAutosave saves after every successful mutation.
func WithAutosave(on bool) Option {
	return func(s *Service) { s.autosave = on }
}

// Service owns one engine bound to one store path.
type Service struct {
	mu       sync.Mutex
	engine   *store.Engine
	db       index.CardIndex
	path     string
	logger   *slog.Logger
	notify   Notifier
	autosave bool
	cancel   func()
}

// New wires engine, index and notifier. path is the store file the service
// opens on demand.
func New(engine *store.Engine, db index.CardIndex, path string, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		db:     db,
		path:   path,
		logger: slog.Default(),
		notify: nopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cancel = engine.Subscribe(s.onEngineEvent)
	return s
}

// Shutdown detaches the service from the engine.
func (s *Service) Shutdown() {
	s.cancel()
}

// onEngineEvent runs inside engine transitions and must not call the
// engine.
func (s *Service) onEngineEvent(ev store.Event) {
	switch ev.Type {
	case store.EventTreeChanged:
		s.forwardTreeEvent(ev.Tree)
	case store.EventLocked, store.EventClosed:
		if err := s.db.Clear(); err != nil {
			s.logger.Warn("clear index failed", slog.String("error", err.Error()))
		}
		s.notify.PublishStoreEvent(ev.Type.String(), storeName(ev.Path))
	case store.EventUnlocked, store.EventSaved:
		s.notify.PublishStoreEvent(ev.Type.String(), storeName(ev.Path))
	}
}

func (s *Service) forwardTreeEvent(ev tree.Event) {
	switch ev.Type {
	case tree.ChildAdded:
		s.notify.PublishNodeEvent(NodeAdded, ev.Child.ID(), ev.Node.ID())
	case tree.ChildRemoved:
		s.notify.PublishNodeEvent(NodeRemoved, ev.Child.ID(), ev.Node.ID())
	case tree.LabelChanged, tree.ContentChanged:
		parent := ""
		if p := ev.Node.Parent(); p != nil {
			parent = p.ID()
		}
		s.notify.PublishNodeEvent(NodeChanged, ev.Node.ID(), parent)
	case tree.DirtyChanged:
		if ev.Node.Parent() == nil {
			kind := "clean"
			if ev.Node.Dirty() {
				kind = "dirty"
			}
			s.notify.PublishStoreEvent(kind, ev.Node.Label())
		}
	}
}

// Create writes a new store at the configured path and unlocks it.
func (s *Service) Create(ctx context.Context, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Create(ctx, s.path, password); err != nil {
		return err
	}
	return s.unlock(ctx, password)
}

// Open attaches to the existing store file without reading it. The store
// stays hidden until Unlock.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Open(ctx, s.path)
}

// Unlock opens the configured store if needed and reveals its tree.
func (s *Service) Unlock(ctx context.Context, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlock(ctx, password)
}

func (s *Service) unlock(ctx context.Context, password string) error {
	if !s.engine.Initialized() {
		if err := s.engine.Open(ctx, s.path); err != nil {
			return err
		}
	}
	if err := s.engine.Unlock(ctx, password); err != nil {
		return err
	}
	s.reindex()
	return nil
}

// Lock hides the tree and empties the index.
func (s *Service) Lock(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Lock()
}

// Save writes pending changes.
func (s *Service) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Save(ctx)
}

// ChangePassword re-encrypts the store under password. It is refused when
// the file changed on disk since it was loaded.
func (s *Service) ChangePassword(ctx context.Context, current, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.unlockedRoot(); err != nil {
		return err
	}
	if err := s.engine.Unlock(ctx, current); err != nil {
		return err
	}
	return s.engine.SaveAs(ctx, s.engine.Path(), password, true)
}

// Sync reconciles with changes made to the file elsewhere. When a clean
// store went stale it is closed and reopened locked, ready for Unlock.
func (s *Service) Sync(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.engine.Sync(ctx) {
		return false, nil
	}
	if s.engine.Initialized() {
		return true, nil
	}
	s.logger.Info("store reloaded after external change", slog.String("path", s.path))
	if err := s.engine.Open(ctx, s.path); err != nil {
		return true, err
	}
	return true, nil
}

// Close saves if asked and releases the store.
func (s *Service) Close(ctx context.Context, save bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close(ctx, save)
}

// Dirty reports whether the held tree has unsaved changes.
func (s *Service) Dirty(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Dirty()
}

// Status describes the store for front ends.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:     s.engine.State().String(),
		Name:      s.engine.Name(),
		Path:      s.engine.Path(),
		Dirty:     s.engine.Dirty(),
		Encrypted: s.engine.Encrypted(),
		InSync:    s.engine.IsInSync(ctx),
	}
	if st.Path == "" {
		st.Path = s.path
	}
	if root := s.engine.Root(); root != nil && !s.engine.Locked() {
		root.Walk(func(n *tree.Node) {
			if n.Kind() == tree.KindCard {
				st.Cards++
			}
		})
	}
	return st
}

// unlockedRoot returns the real tree or the reason it is not available.
func (s *Service) unlockedRoot() (*tree.Node, error) {
	switch s.engine.State() {
	case store.StateUninitialized, store.StateInitialized:
		return nil, apperr.ErrNotInitialized
	case store.StateLocked:
		return nil, apperr.ErrLocked
	}
	return s.engine.Root(), nil
}

// reindex brings the index in line with the visible tree.
func (s *Service) reindex() {
	root, err := s.unlockedRoot()
	if err != nil {
		return
	}
	if err := index.Sync(s.db, root, s.logger); err != nil {
		s.logger.Warn("reindex failed", slog.String("error", err.Error()))
	}
}

// afterMutation reindexes and, with autosave on, writes the store.
func (s *Service) afterMutation(ctx context.Context) error {
	s.reindex()
	if !s.autosave {
		return nil
	}
	if err := s.engine.Save(ctx); err != nil {
		return fmt.Errorf("service: autosave: %w", err)
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) PublishNodeEvent(string, string, string) {}
func (nopNotifier) PublishStoreEvent(string, string)        {}
