package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Generic error types

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Estimation pipeline errors

var (
	// ErrProviderUnavailable indicates an upstream data provider failed (network, timeout, non-2xx)
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoData indicates a query returned nothing meaningful
	ErrNoData = errors.New("no data")

	// ErrDegenerateComputation indicates a guarded division (realized value <= 0)
	ErrDegenerateComputation = errors.New("degenerate computation")

	// ErrPartialSample indicates fewer sample items than requested were collected
	ErrPartialSample = errors.New("partial sample")

	// ErrSampleUnavailable indicates sampling produced nothing an estimate can be built from
	ErrSampleUnavailable = errors.New("sample unavailable")

	// ErrRateLimitExceeded indicates an upstream API rate limit was hit
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// HTTPStatusError is returned by provider clients for non-2xx responses.
// It satisfies the StatusCode() contract the retry middleware inspects.
type HTTPStatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, e.Body)
}

// StatusCode returns the HTTP status
func (e *HTTPStatusError) StatusCode() int {
	return e.Status
}

// Unwrap classifies every non-2xx response as a provider outage,
// and a 429 additionally as ErrRateLimitExceeded
func (e *HTTPStatusError) Unwrap() []error {
	if e.Status == http.StatusTooManyRequests {
		return []error{ErrProviderUnavailable, ErrRateLimitExceeded}
	}
	return []error{ErrProviderUnavailable}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets callers match validation failures with ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is/As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
