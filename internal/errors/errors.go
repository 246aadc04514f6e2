package errors

import (
	"errors"
	"fmt"
)

// QuarryError is the structured error type for Quarry.
// It provides rich context for error handling, logging, and user presentation.
type QuarryError struct {
	// Code is the unique error code (e.g., "ERR_203_UNSUPPORTED_FORMAT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Extract, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with QuarryError.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new QuarryError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *QuarryError {
	return &QuarryError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QuarryError from an existing error.
// The error's message becomes the QuarryError message.
func Wrap(code string, err error) *QuarryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ExtractionError creates an extraction-related error.
// Extraction failures are terminal for the current fingerprint.
func ExtractionError(message string, cause error) *QuarryError {
	return New(ErrCodeCorruptFile, message, cause)
}

// ProviderError creates an embedding-provider error.
// Provider unavailability is transient and retryable.
func ProviderError(message string, cause error) *QuarryError {
	return New(ErrCodeProviderUnavailable, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *QuarryError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// NotFoundError creates a not-found error for explicit lookups.
func NotFoundError(message string) *QuarryError {
	return New(ErrCodeNotFound, message, nil)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a QuarryError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a QuarryError anywhere in the
// chain. Returns empty string if none is present.
func GetCode(err error) string {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// GetCategory extracts the category from a QuarryError anywhere in the
// chain. Returns empty string if none is present.
func GetCategory(err error) Category {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Category
	}
	return ""
}
