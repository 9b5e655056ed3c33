// Package domainerrors defines coded errors shared across service boundaries.
//
// Services return *Error values so transport layers can translate failures
// into consistent HTTP responses without inspecting error strings. Codes are
// stable identifiers; messages are human-readable and may change.
//
// Usage:
//
//	return dErrors.New(dErrors.CodeValidation, "amount must be positive")
//	return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger submit failed")
//
//	if dErrors.HasCode(err, dErrors.CodeNotFound) { ... }
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInsufficientData   Code = "insufficient_data"
)

// Error is a domain error with a stable code and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message, preserving the cause for
// errors.Is/As chains. A nil err behaves like New.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a domain error with the same code, which lets
// errors.Is(err, dErrors.New(code, "")) work across wrapped chains.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// GetCode extracts the code from err's chain, defaulting to CodeInternal for
// untyped errors so callers always have something to map.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status used by the JSON error envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInsufficientData:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
