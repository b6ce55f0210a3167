// Package apperr defines the sentinel errors shared across tabula.
package apperr

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid argument")

	// Content collaborator failures. All are scoped to one tab.
	ErrIO               = errors.New("i/o error")
	ErrPermissionDenied = errors.New("permission denied")

	// Engine misuse reachable from remote callers.
	ErrUnknownTab   = errors.New("unknown tab")
	ErrUnknownPane  = errors.New("unknown pane")
	ErrInvalidOrder = errors.New("order is not a permutation of the pane's tabs")
)

// Classify wraps err with the matching content sentinel while keeping the
// original cause in the chain. Already classified errors are returned as is.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrIO), errors.Is(err, ErrPermissionDenied):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}

// TabError records a failed read or write for one tab.
type TabError struct {
	TabID string
	Op    string // "read" or "write"
	Err   error
}

func (e *TabError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.TabID, e.Err)
}

func (e *TabError) Unwrap() error { return e.Err }
