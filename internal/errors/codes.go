// Package errors provides structured error handling for Vitrina.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (key-value store, relational store)
//   - 3XX: Feed errors (download, parse, size limits)
//   - 4XX: Validation and authorization errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates key-value or relational store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryFeed indicates feed download and parse errors.
	CategoryFeed Category = "FEED"
	// CategoryValidation indicates input validation and auth errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeKVUnavailable = "ERR_201_KV_UNAVAILABLE"
	ErrCodeDBUnavailable = "ERR_202_DB_UNAVAILABLE"
	ErrCodeNotFound      = "ERR_203_NOT_FOUND"
	ErrCodeIndexFailed   = "ERR_204_INDEX_FAILED"

	// Feed errors (300-399)
	ErrCodeFeedDownload = "ERR_301_FEED_DOWNLOAD"
	ErrCodeFeedTimeout  = "ERR_302_FEED_TIMEOUT"
	ErrCodeFeedTooLarge = "ERR_303_FEED_TOO_LARGE"
	ErrCodeFeedInvalid  = "ERR_304_FEED_INVALID"
	ErrCodeFeedLocked   = "ERR_305_FEED_LOCKED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty    = "ERR_402_QUERY_EMPTY"
	ErrCodeUnauthorized  = "ERR_403_UNAUTHORIZED"
	ErrCodeInvalidAPIKey = "ERR_404_INVALID_API_KEY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// The first digit of the numeric portion selects the category
	// (e.g. "3" from "ERR_301_FEED_DOWNLOAD").
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryFeed
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Invalid configuration aborts startup
	if code == ErrCodeConfigInvalid {
		return SeverityFatal
	}

	// Retryable errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeFeedDownload, ErrCodeFeedTimeout, ErrCodeKVUnavailable, ErrCodeDBUnavailable:
		return true
	default:
		return false
	}
}
