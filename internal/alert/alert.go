// Package alert turns errors into log records and user-facing messages.
// How much detail reaches the user depends on the verbose error preference.
package alert

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/sumi/internal/apperr"
)

// Preferences is the part of the user settings alert reads.
type Preferences interface {
	VerboseErrors() bool
}

// Static is a fixed Preferences value.
type Static bool

func (s Static) VerboseErrors() bool { return bool(s) }

var messages = []struct {
	kind error
	text string
}{
	{apperr.ErrIntegrityCheckFailed, "the store could not be verified after writing; nothing was changed"},
	{apperr.ErrIncorrectPassword, "incorrect password"},
	{apperr.ErrOutOfSync, "the store was changed elsewhere; reload it before saving"},
	{apperr.ErrLocked, "the store is locked"},
	{apperr.ErrNotInitialized, "no store is open"},
	{apperr.ErrAlreadyInitialized, "a store is already open"},
	{apperr.ErrNotFound, "not found"},
	{apperr.ErrStorageEmpty, "the store file is empty"},
	{apperr.ErrCorrupt, "the store file is damaged"},
	{apperr.ErrInvalidOperation, "operation not allowed"},
	{apperr.ErrProviderFailure, "storage is unavailable"},
}

// Reporter logs errors and phrases them for users.
type Reporter struct {
	logger *slog.Logger
	prefs  Preferences
}

// New returns a Reporter. A nil logger means slog.Default().
func New(logger *slog.Logger, prefs Preferences) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if prefs == nil {
		prefs = Static(false)
	}
	return &Reporter{logger: logger, prefs: prefs}
}

// Message returns the text to show for err: the full chain when verbose
// errors are on, otherwise a fixed phrase for its kind.
func (r *Reporter) Message(err error) string {
	if err == nil {
		return ""
	}
	if r.prefs.VerboseErrors() {
		return err.Error()
	}
	return Summary(err)
}

// Summary is the fixed phrase for err's kind.
func Summary(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.kind) {
			return m.text
		}
	}
	return "internal error"
}

// Report logs err under msg and returns the user-facing text. Expected
// conditions are logged at warn, everything else at error.
func (r *Reporter) Report(msg string, err error, attrs ...slog.Attr) string {
	if err == nil {
		return ""
	}
	level := slog.LevelError
	if Expected(err) {
		level = slog.LevelWarn
	}
	attrs = append(attrs, slog.String("error", err.Error()))
	r.logger.LogAttrs(context.Background(), level, msg, attrs...)
	return r.Message(err)
}

// Expected reports whether err is a condition the user can resolve by
// retrying with different input.
func Expected(err error) bool {
	for _, kind := range []error{
		apperr.ErrIncorrectPassword,
		apperr.ErrOutOfSync,
		apperr.ErrLocked,
		apperr.ErrNotFound,
		apperr.ErrNotInitialized,
		apperr.ErrAlreadyInitialized,
		apperr.ErrInvalidOperation,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
