// Package errors defines the sentinel errors and error types shared across
// QChat packages. Import it as domerrors to avoid shadowing the standard
// library package.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Check them with errors.Is.
var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates a caller supplied unusable input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIndexNotBuilt is returned when no persisted document index exists.
	ErrIndexNotBuilt = errors.New("document index not built yet")

	// ErrModelMismatch is returned when a persisted index was embedded with a
	// different model than the one currently configured.
	ErrModelMismatch = errors.New("document index embedding model mismatch")

	// ErrNoDocuments is returned by an index build that ingested zero pages.
	ErrNoDocuments = errors.New("no documents ingested")

	// ErrStoreUnavailable indicates the profile or history store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrExtractionFailed indicates structured output could not be decoded.
	ErrExtractionFailed = errors.New("structured extraction failed")

	// ErrRateLimitExceeded indicates a caller exceeded its request budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// FetchError describes a failed page fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a FetchError.
func NewFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: statusCode, Err: err}
}
