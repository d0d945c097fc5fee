package provider

import (
	"fmt"
)

// Category classifies every provider failure. Classification happens exactly
// once, at the provider boundary; nothing downstream re-maps HTTP codes.
type Category string

const (
	CategoryValidation   Category = "validation"    // malformed input (bad URL, missing config)
	CategoryAuth         Category = "auth"          // credential rejected
	CategoryQuota        Category = "quota"         // rate/usage limit hit
	CategoryTimeout      Category = "timeout"       // operation exceeded its deadline
	CategoryServer       Category = "server"        // provider-side 5xx or transport failure
	CategoryFailedStatus Category = "failed_status" // provider explicitly reported task failure
)

// IsRetryable is a pure function of category alone. Callers never look at
// HTTP status codes to decide whether to retry.
func IsRetryable(c Category) bool {
	switch c {
	case CategoryQuota, CategoryTimeout, CategoryServer:
		return true
	}
	return false
}

// MapStatusToCategory maps a non-2xx HTTP status to a failure category.
// This is the single place status codes turn into categories.
func MapStatusToCategory(status int) Category {
	switch {
	case status == 400:
		return CategoryValidation
	case status == 401 || status == 403:
		return CategoryAuth
	case status == 429:
		return CategoryQuota
	case status >= 500:
		return CategoryServer
	default:
		return CategoryServer
	}
}

// Error is the structured failure every adapter returns. It carries enough
// for diagnostics and cross-system correlation but never the document URL or
// any extracted content.
type Error struct {
	Category   Category
	Provider   string
	HTTPStatus int    // 0 when no HTTP response was involved
	TraceID    string // provider-supplied request trace id, if any
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s [%s]: %s", e.Provider, e.Category, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error's category permits another attempt.
func (e *Error) Retryable() bool {
	return IsRetryable(e.Category)
}

// NewError builds an Error without an HTTP status (validation failures,
// in-band task failures, and the like).
func NewError(providerName string, category Category, message string, cause error) *Error {
	return &Error{
		Category: category,
		Provider: providerName,
		Message:  message,
		Cause:    cause,
	}
}

// NewHTTPError classifies a non-2xx response once, at the boundary.
func NewHTTPError(providerName string, httpStatus int, message string, cause error) *Error {
	return &Error{
		Category:   MapStatusToCategory(httpStatus),
		Provider:   providerName,
		HTTPStatus: httpStatus,
		Message:    message,
		Cause:      cause,
	}
}
