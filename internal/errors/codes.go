// Package errors provides structured error handling for Quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Extraction and file IO errors
//   - 3XX: Embedding provider errors
//   - 4XX: Validation errors
//   - 5XX: Store and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryExtract indicates text extraction and file IO errors.
	CategoryExtract Category = "EXTRACT"
	// CategoryProvider indicates embedding provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryStore indicates vector/metadata store errors.
	CategoryStore Category = "STORE"
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeChunkOverlap   = "ERR_103_CHUNK_OVERLAP_INVALID"

	// Extraction and IO errors (200-299)
	ErrCodeFileNotFound      = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission    = "ERR_202_FILE_PERMISSION"
	ErrCodeUnsupportedFormat = "ERR_203_UNSUPPORTED_FORMAT"
	ErrCodeCorruptFile       = "ERR_204_CORRUPT_FILE"
	ErrCodeFileTooLarge      = "ERR_205_FILE_TOO_LARGE"

	// Embedding provider errors (300-399)
	ErrCodeProviderUnavailable = "ERR_301_PROVIDER_UNAVAILABLE"
	ErrCodeProviderTimeout     = "ERR_302_PROVIDER_TIMEOUT"
	ErrCodeInputTooLong        = "ERR_303_INPUT_TOO_LONG"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"

	// Store and internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeStoreWrite    = "ERR_502_STORE_WRITE"
	ErrCodeWriteConflict = "ERR_503_WRITE_CONFLICT"
	ErrCodeNotFound      = "ERR_504_NOT_FOUND"
	ErrCodeCorruptIndex  = "ERR_505_CORRUPT_INDEX"
)

// storeCodes distinguishes store errors from generic internal ones
// within the shared 5XX range.
var storeCodes = map[string]bool{
	ErrCodeStoreWrite:    true,
	ErrCodeWriteConflict: true,
	ErrCodeCorruptIndex:  true,
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryExtract
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		if storeCodes[code] {
			return CategoryStore
		}
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDimensionMismatch, ErrCodeCorruptIndex:
		// Either would silently corrupt all subsequent writes.
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderUnavailable, ErrCodeProviderTimeout, ErrCodeWriteConflict:
		return true
	default:
		return false
	}
}
