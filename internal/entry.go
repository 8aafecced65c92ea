// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/sumi/internal/api"
	"github.com/starford/sumi/internal/mcpserver"
	"github.com/starford/sumi/internal/storage"
	"github.com/starford/sumi/internal/watch"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	cfg := app.Config
	logger := app.Logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_provider", cfg.Store.Provider),
		slog.String("store_root", cfg.Store.Root),
		slog.String("store_path", cfg.Store.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: NewHandler(app),
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	startWatcher(gCtx, g, app)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append(opts, WithLogOutput(os.Stderr))
	app, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	g, gCtx := errgroup.WithContext(ctx)
	startWatcher(gCtx, g, app)
	g.Go(func() error {
		if err := mcpserver.New(app.Service, app.Alerts).ServeStdio(); err != nil {
			return err
		}
		return errShutdown
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// errShutdown ends the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// NewHandler builds the root HTTP handler: health checks plus the API
// under /api.
func NewHandler(app *App) http.Handler {
	cfg := app.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		st := app.Service.Status(req.Context())
		if st.State == "uninitialized" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no store"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(app.Service, app.Alerts, cfg.Auth.AuthEnabled(), cfg.Auth.Token, app.Broker))
	return r
}

// startWatcher follows external edits of a local store file.
func startWatcher(ctx context.Context, g *errgroup.Group, app *App) {
	if !app.Config.Store.Watch {
		return
	}
	file, ok := app.StoreFile()
	if !ok {
		app.Logger.Info("watcher disabled: store is not on local disk")
		return
	}
	name := storage.DisplayName(app.Config.Store.Path)
	g.Go(func() error {
		err := watch.Watch(ctx, file, app.Service, watch.DefaultDebounce, app.Logger, func(o watch.Outcome, err error) {
			if err == nil && o == watch.Conflict {
				app.Broker.PublishStoreEvent("conflict", name)
			}
		})
		if err != nil {
			app.Logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})
}
