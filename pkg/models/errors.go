package models

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed events or identifiers before they are
// persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	// ErrUpstreamUnavailable indicates the movie catalog could not be reached.
	// Callers proceed with stale or cached feature data where possible.
	ErrUpstreamUnavailable = errors.New("movie catalog upstream unavailable")

	// ErrComputationTimeout indicates scoring exceeded its budget. Surfaced as
	// a degraded/stale result, never as a silent wrong answer.
	ErrComputationTimeout = errors.New("recommendation computation timed out")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
