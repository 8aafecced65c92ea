// Package watch notices when the store file is changed by something other
// than this process and asks the service to reconcile.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups the burst of events a single save produces.
const DefaultDebounce = 200 * time.Millisecond

// Syncer is the service operation the watcher drives. Dirty tells a real
// conflict apart from a store that has nothing loaded yet, since Sync
// returns false for both.
type Syncer interface {
	Sync(ctx context.Context) (bool, error)
	Dirty(ctx context.Context) bool
}

// Outcome is the result of one reconciliation.
type Outcome int

const (
	// Synced: the file matches, or a clean store was reloaded.
	Synced Outcome = iota
	// Conflict: the file changed while the store has unsaved edits.
	Conflict
	// NotLoaded: no tree has been read yet, so there is nothing to compare.
	NotLoaded
)

func (o Outcome) String() string {
	switch o {
	case Synced:
		return "synced"
	case Conflict:
		return "conflict"
	case NotLoaded:
		return "not loaded"
	default:
		return "unknown"
	}
}

// Callback is called after every reconciliation with its outcome.
type Callback func(o Outcome, err error)

// Watch observes the directory holding file and calls s.Sync after
// changes to file settle. It returns when ctx is cancelled.
//
// The directory is watched rather than the file because saves replace
// the file by rename.
func Watch(ctx context.Context, file string, s Syncer, debounce time.Duration, logger *slog.Logger, cb Callback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("file", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			o, err := reconcile(ctx, s)
			switch {
			case err != nil:
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
			case o == Conflict:
				logger.Warn("watcher: store changed on disk while it has unsaved edits",
					slog.String("file", abs))
			case o == NotLoaded:
				logger.Info("watcher: store changed on disk before it was unlocked",
					slog.String("file", abs))
			default:
				logger.Debug("watcher: synced", slog.String("file", abs))
			}
			if cb != nil {
				cb(o, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: change", slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reconcile(ctx context.Context, s Syncer) (Outcome, error) {
	ok, err := s.Sync(ctx)
	switch {
	case ok:
		return Synced, err
	case s.Dirty(ctx):
		return Conflict, err
	default:
		return NotLoaded, err
	}
}
