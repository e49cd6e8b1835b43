package coffea

import (
	"errors"
	"fmt"
)

// IOError classifies a unit failure as I/O-class: the file source could not
// be opened or read. I/O-class failures are eligible for skipping when
// skipbadfiles is enabled.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err as an I/O-class failure.
func NewIOError(err error) error {
	return &IOError{Err: err}
}

// IOErrorf formats an I/O-class failure.
func IOErrorf(format string, args ...interface{}) error {
	return &IOError{Err: fmt.Errorf(format, args...)}
}

// AuthError classifies a unit failure as an authentication failure.
// Authentication failures are never skippable, no matter the retry policy.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError wraps err as an authentication failure.
func NewAuthError(err error) error {
	return &AuthError{Err: err}
}

// IsIOError reports whether err is classified I/O-class.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// IsAuthError reports whether err is classified as an authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
