package errors

import (
	"errors"
	"fmt"
)

// Common error types for the front-end
var (
	// Session errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidSession     = errors.New("session invalid")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoToken            = errors.New("no token")

	// Interaction errors, recovered at the handler that raised them
	ErrValidationFailed = errors.New("validation failed")
	ErrBoundsViolation  = errors.New("bounds violation")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single import
func New(text string) error {
	return errors.New(text)
}
