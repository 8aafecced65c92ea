// Package apperr defines the error kinds shared by the tree, the storage
// engine and the adapters built on top of them. Callers match them with
// errors.Is; producers wrap them with fmt.Errorf("...: %w", err).
package apperr

import "errors"

// Store state errors.
var (
	ErrAlreadyInitialized = errors.New("store already initialized")
	ErrNotInitialized     = errors.New("store not initialized")
	ErrNotFound           = errors.New("not found")
	ErrLocked             = errors.New("store locked")
)

// Content errors. ErrIncorrectPassword covers a wrong key, a wrong key
// length and a password-echo mismatch alike.
var (
	ErrIncorrectPassword    = errors.New("incorrect password")
	ErrStorageEmpty         = errors.New("storage empty")
	ErrCorrupt              = errors.New("corrupt record")
	ErrOutOfSync            = errors.New("out of sync")
	ErrIntegrityCheckFailed = errors.New("integrity check failed")
)

var (
	// ErrInvalidOperation marks caller misuse of the tree: cycles, wrong
	// variant children, duplicate attach, bad labels or content.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrProviderFailure wraps I/O errors coming from a storage provider.
	ErrProviderFailure = errors.New("provider failure")
)
