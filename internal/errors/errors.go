// Package errors provides typed error definitions for dkr.
// It consolidates error handling into structured error values that can be
// classified by code at the CLI boundary.
package errors

import (
	"fmt"
)

// ErrorCode represents a unique identifier for different error types
type ErrorCode string

const (
	// Configuration errors
	ErrConfigParse      ErrorCode = "CONFIG_PARSE"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Build errors
	ErrBuildFailed ErrorCode = "BUILD_FAILED"

	// Image discovery errors
	ErrNoMatchingImage ErrorCode = "NO_MATCHING_IMAGE"
	ErrImageInspect    ErrorCode = "IMAGE_INSPECT"

	// Git errors
	ErrGitRepoNotFound   ErrorCode = "GIT_REPO_NOT_FOUND"
	ErrVcsOperation      ErrorCode = "VCS_OPERATION"
	ErrGitBranchNotFound ErrorCode = "GIT_BRANCH_NOT_FOUND"

	// Staleness errors
	ErrStalenessAmbiguous ErrorCode = "STALENESS_AMBIGUOUS"

	// Container errors
	ErrContainerStart ErrorCode = "CONTAINER_START"

	// Database errors
	ErrDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	ErrDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	ErrDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"

	// Validation errors
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrInvalidPath  ErrorCode = "INVALID_PATH"

	// Internal errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with additional context
type Error struct {
	Code    ErrorCode
	Message string
	// Details preserves the external tool's diagnostic output verbatim,
	// since that message is usually the actionable one.
	Details string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause adds the underlying cause error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewWithDetails creates a new Error with details
func NewWithDetails(code ErrorCode, message, details string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Wrap creates a new Error that wraps an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetails creates a new Error with details that wraps an existing error
func WrapWithDetails(code ErrorCode, message, details string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error, if it's a dkr Error
func GetCode(err error) ErrorCode {
	if de, ok := err.(*Error); ok {
		return de.Code
	}
	return ""
}

// HasCode checks if an error has a specific error code
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}
