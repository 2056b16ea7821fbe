package errors

import (
	"fmt"
)

// VitrinaError is the classified error the service passes between
// layers. The code pins down category, severity and retryability.
type VitrinaError struct {
	// Code is the unique error code (e.g., "ERR_301_FEED_DOWNLOAD").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Feed, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error renders as "[CODE] message".
func (e *VitrinaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *VitrinaError) Unwrap() error {
	return e.Cause
}

// Is matches VitrinaErrors by code, so sentinel comparisons work
// across wrapping.
func (e *VitrinaError) Is(target error) bool {
	if t, ok := target.(*VitrinaError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches one key-value pair and returns e for chaining.
func (e *VitrinaError) WithDetail(key, value string) *VitrinaError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion records the hint printed under CLI errors.
func (e *VitrinaError) WithSuggestion(suggestion string) *VitrinaError {
	e.Suggestion = suggestion
	return e
}

// New builds a classified error. Category, severity and the retry flag
// all follow from the code.
func New(code string, message string, cause error) *VitrinaError {
	return &VitrinaError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a VitrinaError from an existing error.
// The error's message becomes the VitrinaError message.
func Wrap(code string, err error) *VitrinaError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError marks a bad or unreadable configuration.
func ConfigError(message string, cause error) *VitrinaError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a key-value or relational store error.
// Storage errors are typically retryable.
func StorageError(message string, cause error) *VitrinaError {
	return New(ErrCodeKVUnavailable, message, cause)
}

// FeedError creates a feed download or parse error.
func FeedError(code string, message string, cause error) *VitrinaError {
	return New(code, message, cause)
}

// NotFoundError creates an error for a missing entity.
func NotFoundError(message string) *VitrinaError {
	return New(ErrCodeNotFound, message, nil)
}

// ValidationError marks rejected caller input.
func ValidationError(message string, cause error) *VitrinaError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError marks a bug or an unclassified failure.
func InternalError(message string, cause error) *VitrinaError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err carries the retryable flag.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ve, ok := err.(*VitrinaError); ok {
		return ve.Retryable
	}
	return false
}

// IsFatal reports whether err is severe enough to abort the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ve, ok := err.(*VitrinaError); ok {
		return ve.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code, or "" for foreign errors.
func GetCode(err error) string {
	if ve, ok := err.(*VitrinaError); ok {
		return ve.Code
	}
	return ""
}

// GetCategory returns the category, or "" for foreign errors.
func GetCategory(err error) Category {
	if ve, ok := err.(*VitrinaError); ok {
		return ve.Category
	}
	return ""
}
