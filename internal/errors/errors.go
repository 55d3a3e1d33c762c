// Package errors provides structured error types for salesink.
// Every error carries a category, a code and a message so that the Lambda
// entry point can log the precise failure while returning a generic one.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryDecode   ErrorCategory = "DECODE"
	ErrCategoryPersist  ErrorCategory = "PERSIST"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Decode codes
	CodeInvalidEvent  = "INVALID_EVENT"
	CodeInvalidBase64 = "INVALID_BASE64"
	CodeInvalidUTF8   = "INVALID_UTF8"
	CodeInvalidJSON   = "INVALID_JSON"

	// Persist codes
	CodeInvalidItem      = "INVALID_ITEM"
	CodeWriteRejected    = "WRITE_REJECTED"
	CodeUnprocessedItems = "UNPROCESSED_ITEMS"

	// Internal codes
	CodeUnexpected   = "UNEXPECTED"
	CodeWriterClosed = "WRITER_CLOSED"
)

// Category sentinels, usable with errors.Is to test only the category.
var (
	ErrDecode   = errors.New("decode error")
	ErrPersist  = errors.New("persist error")
	ErrInternal = errors.New("internal error")
)

// SalesError is the structured error type used throughout the pipeline.
type SalesError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *SalesError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SalesError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's category and code, or is
// the sentinel of this error's category.
func (e *SalesError) Is(target error) bool {
	switch target {
	case ErrDecode:
		return e.Category == ErrCategoryDecode
	case ErrPersist:
		return e.Category == ErrCategoryPersist
	case ErrInternal:
		return e.Category == ErrCategoryInternal
	}
	var t *SalesError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SalesError.
func New(category ErrorCategory, code, message string) *SalesError {
	return &SalesError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new SalesError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SalesError {
	return &SalesError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SalesError) WithDetails(details map[string]interface{}) *SalesError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SalesError.
func GetCategory(err error) ErrorCategory {
	var se *SalesError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SalesError.
func GetCode(err error) string {
	var se *SalesError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetDetails extracts the details of the first SalesError in the chain.
func GetDetails(err error) map[string]interface{} {
	var se *SalesError
	if errors.As(err, &se) {
		return se.Details
	}
	return nil
}

// Convenience constructors for common errors.

func NewDecodeError(code, message string, cause error) *SalesError {
	return Wrap(ErrCategoryDecode, code, message, cause)
}

func NewPersistError(code, message string, cause error) *SalesError {
	return Wrap(ErrCategoryPersist, code, message, cause)
}

func NewInternalError(message string, cause error) *SalesError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
