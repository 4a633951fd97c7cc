package photopipe

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrRecordNotFound indicates an image record was not found
	ErrRecordNotFound = errors.New("image record not found")

	// ErrObjectNotFound indicates a stored object was not found
	ErrObjectNotFound = errors.New("object not found")

	// ErrMalformedMessage indicates a message payload could not be decoded
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownAttribute indicates a metadata update named an attribute
	// outside the allow-list
	ErrUnknownAttribute = errors.New("unknown metadata attribute")

	// ErrEmptyKey indicates a storage event carried an empty object key
	ErrEmptyKey = errors.New("empty object key")
)

// ValidationError reports an upload rejected for an unsupported file type.
// It is an expected, user-facing failure: the validation worker routes it
// to the rejection path rather than crashing.
type ValidationError struct {
	FileName  string
	Extension string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file type %s for %s", e.Extension, e.FileName)
}

// Reason renders the user-facing rejection reason for this error.
func (e *ValidationError) Reason() string {
	return fmt.Sprintf("Invalid file type: %s", e.Extension)
}

// StoreError represents a failed record store operation.
type StoreError struct {
	Op       string
	FileName string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed for %s: %v", e.Op, e.FileName, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DecodeError represents a failed envelope unwrap layer.
type DecodeError struct {
	Layer string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s envelope: %v", e.Layer, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
