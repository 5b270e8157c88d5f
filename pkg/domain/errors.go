package domain

import (
	"errors"
	"fmt"
)

// ErrNoPatches is returned when a merge is attempted over an empty patch set.
var ErrNoPatches = errors.New("at least one patch required")

// ErrStackEmpty is returned when undo or redo is invoked with no history.
var ErrStackEmpty = errors.New("history stack empty")

// IDMismatchError reports an attempt to merge patches addressing different
// records.
type IDMismatchError struct {
	Want string
	Got  string
}

func (e IDMismatchError) Error() string {
	return fmt.Sprintf("patch id mismatch: want %q, got %q", e.Want, e.Got)
}

// UnknownFieldError reports a field name outside the client field set.
type UnknownFieldError struct {
	Name string
}

func (e UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown client field %q", e.Name)
}

// NotFoundError reports that the target record was absent at read time.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("client %s not found", e.ID)
}

// ConflictError reports that the store refused a write: zero rows affected
// or an underlying persistence failure.
type ConflictError struct {
	ID     string
	Reason string
}

func (e ConflictError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("client %s: update affected no rows", e.ID)
	}
	return fmt.Sprintf("client %s: %s", e.ID, e.Reason)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var c ConflictError
	return errors.As(err, &c)
}
