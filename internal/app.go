package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/sumi/internal/alert"
	"github.com/starford/sumi/internal/apperr"
	"github.com/starford/sumi/internal/index"
	"github.com/starford/sumi/internal/service"
	"github.com/starford/sumi/internal/sse"
	"github.com/starford/sumi/internal/storage"
	"github.com/starford/sumi/internal/store"
)

// App is the application context shared by every front end.
type App struct {
	Config   *Config
	Logger   *slog.Logger
	Provider storage.Provider
	Service  *service.Service
	Broker   *sse.Broker
	Alerts   *alert.Reporter

	db *index.DB
}

// Open builds the application context from opts and, when a password was
// given, unlocks the store.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	out := app.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := newLogger(out, app.config.App.LogLevel)
	slog.SetDefault(logger)

	a, err := NewApp(app.config, logger)
	if err != nil {
		return nil, err
	}
	if app.password != nil {
		if err := a.Service.Unlock(ctx, *app.password); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("unlock %s: %w", app.config.Store.Path, err)
		}
		return a, nil
	}
	switch err := a.Service.Open(ctx); {
	case errors.Is(err, apperr.ErrNotFound):
		logger.Info("no store yet", slog.String("path", app.config.Store.Path))
	case err != nil:
		a.Close(ctx)
		return nil, fmt.Errorf("open %s: %w", app.config.Store.Path, err)
	}
	return a, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewApp wires provider, index, broker and service for cfg.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	provider, err := newProvider(cfg.Store)
	if err != nil {
		return nil, err
	}

	db, err := index.Open()
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	broker := sse.NewBroker()
	engine := store.New(provider,
		store.WithLogger(logger),
		store.WithLegacyUpgrade(cfg.Store.UpgradeLegacy))
	svc := service.New(engine, db, cfg.Store.Path,
		service.WithLogger(logger),
		service.WithNotifier(broker),
		service.WithAutosave(cfg.Store.Autosave),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Provider: provider,
		Service:  svc,
		Broker:   broker,
		Alerts:   alert.New(logger, cfg),
		db:       db,
	}, nil
}

func newProvider(cfg StoreConfig) (storage.Provider, error) {
	switch cfg.Provider {
	case ProviderMemory:
		return storage.NewMemory(), nil
	case ProviderLocal, "":
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
}

// StoreFile returns the store's location on local disk, if it has one.
func (a *App) StoreFile() (string, bool) {
	fs, ok := a.Provider.(*storage.FS)
	if !ok {
		return "", false
	}
	p, err := fs.LocalPath(a.Config.Store.Path)
	if err != nil {
		return "", false
	}
	return p, true
}

// Close releases the store. Unsaved edits are written when autosave is on
// and discarded otherwise.
func (a *App) Close(ctx context.Context) {
	st := a.Service.Status(ctx)
	if st.Dirty && !a.Config.Store.Autosave {
		a.Logger.Warn("discarding unsaved changes", slog.String("path", st.Path))
	}
	if err := a.Service.Close(ctx, a.Config.Store.Autosave); err != nil {
		a.Alerts.Report("close store failed", err)
		_ = a.Service.Close(ctx, false)
	}
	a.Service.Shutdown()
	a.Broker.Close()
	if err := a.db.Close(); err != nil {
		a.Logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}
