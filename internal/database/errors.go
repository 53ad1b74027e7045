package database

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation targets a row that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrKindConflict is returned by UpsertPrimary together with the existing id
	// when a primary source is re-registered with a different kind. The first
	// registration is kept.
	ErrKindConflict = errors.New("primary source already registered with a different kind")
)

// StorageError is a failure of the persistence layer itself (disk, permissions,
// corruption). It is fatal for a discovery pass.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrKindConflict) || errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
