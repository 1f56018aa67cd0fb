// Package mlerr holds the error kinds shared by the training and evaluation
// packages. Every error returned by the core wraps exactly one of these, so
// callers can branch with errors.Is and show the message as is.
package mlerr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrUnknownAlgorithm  = errors.New("unknown algorithm")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrEmptyTestSet      = errors.New("empty test set")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidValue      = errors.New("invalid value")
	ErrUnknownLabel      = errors.New("unknown label")
	ErrNotSupported      = errors.New("not supported")
)

// Errorf wraps kind with a formatted detail message.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
