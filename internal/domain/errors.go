package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("permission denied")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnauthenticated   = errors.New("not signed in")
	ErrUploadFailed      = errors.New("upload failed")
	ErrIncorrectPassword = errors.New("incorrect password")
)

// Invalid wraps ErrInvalidInput with a message that is safe to show to users.
func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// PartialSuccessError is returned when the primary record was written but a
// follow-up step (attachment upload) failed. Record holds what was persisted.
type PartialSuccessError struct {
	Record any
	Err    error
}

func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("record saved, follow-up failed: %v", e.Err)
}

func (e *PartialSuccessError) Unwrap() error { return e.Err }
