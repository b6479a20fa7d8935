package domain

import (
	"errors"
	"strconv"
)

// Common domain errors
var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownSound = errors.New("unknown sound")

	// Cache domain errors
	ErrOffline            = errors.New("network is offline")
	ErrFetchFailed        = errors.New("asset fetch failed")
	ErrAdmissionRefused   = errors.New("cache budget exceeded")
	ErrBackendUnavailable = errors.New("cache backend unavailable")

	// Playback domain errors
	ErrResourceCreate = errors.New("failed to create playback resource")
	ErrResourceClosed = errors.New("playback resource closed")
)

// SkippableError represents an error that can be logged and skipped.
// Processing can continue with the next item when this error occurs.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}

// FetchError describes a non-ok network response. No component retries on it;
// the status is kept for logs and diagnostics.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *FetchError) Error() string {
	if e.Err != nil {
		return "fetch " + e.URL + ": " + e.Err.Error()
	}
	return "fetch " + e.URL + ": unexpected status " + strconv.Itoa(e.StatusCode)
}

// Unwrap returns ErrFetchFailed so callers can match on the category
func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFetchFailed, e.Err}
	}
	return []error{ErrFetchFailed}
}

// StatusCode returns the HTTP status carried by a FetchError, if any
func StatusCode(err error) (int, bool) {
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fe.StatusCode, true
	}
	return 0, false
}

// Common skippable errors for convenience
var (
	ErrSkipUnknownSound = NewSkippableError(ErrUnknownSound, "sound not in catalog")
	ErrSkipOffline      = NewSkippableError(ErrOffline, "offline")
)
