// Package errors provides application-level error types for the payment
// core. The taxonomy mirrors how failures are surfaced: configuration
// errors abort the requested operation, network errors are recovered via
// fallbacks or the next poll tick, verification errors mean "not paid yet".
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration_error"
	ErrorTypeNetwork       ErrorType = "network_error"
	ErrorTypeVerification  ErrorType = "verification_error"
	ErrorTypeValidation    ErrorType = "validation_error"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInternal      ErrorType = "internal_error"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped cause, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error for %w-style unwrapping
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func newError(t ErrorType, message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:    t,
		Message: message,
		Details: detail,
	}
}

// NewConfigurationError reports missing or incomplete credentials,
// addresses or backend settings. Fatal to the requested operation.
func NewConfigurationError(message string, details ...string) *AppError {
	return newError(ErrorTypeConfiguration, message, details...)
}

// NewNetworkError reports an unreachable or non-2xx backend response.
func NewNetworkError(message string, details ...string) *AppError {
	return newError(ErrorTypeNetwork, message, details...)
}

// NewVerificationError reports a preimage/hash mismatch or an
// amount-tolerance miss.
func NewVerificationError(message string, details ...string) *AppError {
	return newError(ErrorTypeVerification, message, details...)
}

// NewValidationError reports invalid caller input.
func NewValidationError(message string, details ...string) *AppError {
	return newError(ErrorTypeValidation, message, details...)
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(message string, details ...string) *AppError {
	return newError(ErrorTypeNotFound, message, details...)
}

// NewInternalError reports an unexpected internal failure.
func NewInternalError(message string, details ...string) *AppError {
	return newError(ErrorTypeInternal, message, details...)
}

// IsType checks whether err is an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

func IsConfiguration(err error) bool { return IsType(err, ErrorTypeConfiguration) }
func IsNetwork(err error) bool       { return IsType(err, ErrorTypeNetwork) }
func IsVerification(err error) bool  { return IsType(err, ErrorTypeVerification) }
func IsValidation(err error) bool    { return IsType(err, ErrorTypeValidation) }
func IsNotFound(err error) bool      { return IsType(err, ErrorTypeNotFound) }
