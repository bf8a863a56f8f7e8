package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the service-level error shape the HTTP layer maps onto status
// codes and the response envelope. Details carries structured payload the
// client needs verbatim (missing spot keys, role mismatch info).
type Error struct {
	Status  int
	Code    string
	Err     error
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(what string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Err: fmt.Errorf("%s not found", what)}
}

func Unauthorized(err error) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Err: err}
}

// Validation reports unfinished required spots. The missing keys are returned
// verbatim so client UIs can highlight the exact fields.
func Validation(err error, missing []string) *Error {
	e := &Error{Status: http.StatusBadRequest, Code: "validation_error", Err: err}
	if len(missing) > 0 {
		e.Details = map[string]any{"missing": missing}
	}
	return e
}

func Conflict(err error) *Error {
	return &Error{Status: http.StatusConflict, Code: "conflict", Err: err}
}

// Forbidden reports both the caller's role and the role the spot expects.
func Forbidden(err error, callerRole, expectedRole string) *Error {
	return &Error{
		Status: http.StatusForbidden,
		Code:   "forbidden",
		Err:    err,
		Details: map[string]any{
			"caller_role":   callerRole,
			"expected_role": expectedRole,
		},
	}
}

func Upstream(err error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "upstream_error", Err: err}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Err: err}
}

// From extracts an *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

func IsStatus(err error, status int) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status == status
	}
	return false
}
