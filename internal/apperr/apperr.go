// ABOUTME: Typed application errors shared by the chat service and HTTP layer
// ABOUTME: Each error carries a stable code that maps onto an HTTP status

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of application failure.
type Code string

const (
	CodeInvalidArgument  Code = "invalid_argument"
	CodeNotFound         Code = "not_found"
	CodePermissionDenied Code = "permission_denied"
	CodeAlreadyExists    Code = "already_exists"
	CodeInternal         Code = "internal"
)

// Error is an application error with a stable code and a user-facing message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code, message, and underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Invalid(msg string) *Error       { return New(CodeInvalidArgument, msg) }
func NotFound(msg string) *Error      { return New(CodeNotFound, msg) }
func Forbidden(msg string) *Error     { return New(CodePermissionDenied, msg) }
func AlreadyExists(msg string) *Error { return New(CodeAlreadyExists, msg) }
func Internal(msg string) *Error      { return New(CodeInternal, msg) }

// CodeOf extracts the application code from err, or CodeInternal for
// unrecognized errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus maps an application code to an HTTP status code.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
