package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist or has already expired.
var ErrNotFound = errors.New("record not found")

// ValidationError is a custom error type for validation failures.
type ValidationError struct {
	Message string
	Field   string // e.g., "bin", "namespace", "set"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// UnsupportedTypeError is returned when a native value cannot be mapped
// to a wire particle type.
type UnsupportedTypeError struct {
	Message string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type value: %s", e.Message)
}

// BufferOverflowError signals that an encoder was asked to write past the
// end of its destination buffer. This is always a caller defect: the buffer
// must be sized from EstimateSize before Write is called.
type BufferOverflowError struct {
	Offset int // Offset the write would have started at
	Need   int // Bytes the write required
	Cap    int // Capacity of the destination buffer
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("buffer overflow: need %d bytes at offset %d, buffer holds %d", e.Need, e.Offset, e.Cap)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	// Use errors.As to check if the error (or any error in its chain) is a ValidationError.
	return errors.As(err, &validationError)
}

func IsUnsupportedError(err error) bool {
	var unsupportedError *UnsupportedTypeError
	return errors.As(err, &unsupportedError)
}

func IsBufferOverflow(err error) bool {
	var overflowError *BufferOverflowError
	return errors.As(err, &overflowError)
}
