// Package rafterrors provides the small error-wrapping helpers used
// throughout the consensus package, in the style of the teacher's own
// internal/errors package: a constructor for sentinel errors and a
// wrapper that prefixes context onto an underlying error without losing
// it for errors.Is/errors.As.
package rafterrors

import "fmt"

// baseError is a simple string-based error, equivalent to errors.New but
// kept local so the consensus package never imports the standard errors
// package just for sentinel construction.
type baseError string

func (e baseError) Error() string { return string(e) }

// New creates a new sentinel error with the given message.
func New(message string) error {
	return baseError(message)
}

// wrappedError preserves the underlying cause so that errors.Is and
// errors.As continue to see through the added context.
type wrappedError struct {
	context string
	cause   error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %v", e.context, e.cause)
}

func (e *wrappedError) Unwrap() error {
	return e.cause
}

// WrapError adds context to err. It returns nil if err is nil.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{context: context, cause: err}
}
