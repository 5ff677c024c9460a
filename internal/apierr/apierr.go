// Package apierr defines the typed error carried across the service and
// handler layers. Every known failure category is raised as an *Error with
// an HTTP status, a machine-readable code, and optional structured details;
// anything else is treated as internal at the boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable error codes returned in the JSON envelope.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeLocked           = "LOCKED"
	CodeInProgress       = "IN_PROGRESS"
	CodeAlreadySubmitted = "ALREADY_SUBMITTED"
	CodeUploadInvalid    = "UPLOAD_INVALID"
	CodeUnlockNotAllowed = "UNLOCK_NOT_ALLOWED"
	CodeRequestPending   = "REQUEST_PENDING"
	CodeCooldownActive   = "COOLDOWN_ACTIVE"
	CodeInternal         = "INTERNAL"
)

// Error is a typed error carrying an HTTP status, a machine-readable code,
// and optional structured details for the client.
type Error struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of e with an extra detail entry. The receiver is
// not modified.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Status: e.Status, Code: e.Code, Message: e.Message, Details: details, Err: e.Err}
}

// New creates an error with an explicit status and code.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(status int, code, format string, args ...interface{}) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a 404 error. Ownership failures use this too, so a
// foreign attempt is indistinguishable from a missing one.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// InvalidArgument creates a 400 validation error for the named field.
func InvalidArgument(field, message string) *Error {
	e := New(http.StatusBadRequest, CodeInvalidArgument, message)
	return e.WithDetail("field", field)
}

// Conflict creates a 409 error with the given code.
func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

// Unauthenticated creates a 401 error.
func Unauthenticated(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthenticated, message)
}

// Internal wraps an unexpected error. The cause is logged server-side and
// never serialized to the client.
func Internal(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// From extracts an *Error from err, wrapping unknown errors as Internal.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}
