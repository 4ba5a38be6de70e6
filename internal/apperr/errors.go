// Package apperr defines the error taxonomy shared by every layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrRemote          = errors.New("remote store error")
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrTimeout         = errors.New("remote call timed out")
	ErrSuperseded      = errors.New("superseded by a newer request")
	ErrAlreadyExists   = errors.New("already exists")
)

// ValidationError is a local, pre-network rejection of user input.
type ValidationError struct {
	Err error
}

// NewValidation wraps err as a ValidationError; nil stays nil.
func NewValidation(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RemoteError reports that the store rejected an operation or could not be reached.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// NotFoundError reports an operation on an id that is not held locally.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
