package services

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrValidation marks a request rejected before anything was written.
	ErrValidation = errors.New("validation failed")

	// ErrStorageUnavailable marks a failure of a storage collaborator.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrGone is returned by a Pusher when the recipient no longer exists.
	ErrGone = errors.New("connection gone")
)

func validationError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// StorageError wraps a store failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
