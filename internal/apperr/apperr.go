// Package apperr defines the typed error taxonomy used at every
// external boundary (HTTP JSON responses, JSON-RPC error objects).
// Internal packages return plain Go errors (often wrapping a
// domain sentinel); callers at the boundary translate them to an
// *Error with Wrap or construct one directly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeConflict          Code = "conflict"
	CodeRateLimited       Code = "rate_limited"
	CodeEntitlementDenied Code = "entitlement_denied"
	CodeUpstreamError     Code = "upstream_error"
	CodeSessionExpired    Code = "session_expired"
	CodeInternal          Code = "internal_error"

	// CodeSubscriptionInvalid marks a requested subscription change
	// that would violate current usage (e.g. seat_count below the
	// member count).
	CodeSubscriptionInvalid Code = "requested_subscription_invalid"
	// CodePlanNotAvailable marks a reference to a plan_code that
	// doesn't exist or isn't public.
	CodePlanNotAvailable Code = "plan_not_available"
	// CodeStripeError marks a failure talking to Stripe's API.
	CodeStripeError Code = "stripe_operation_error"
)

// httpStatusByCode is the fixed HTTP status for each Code.
var httpStatusByCode = map[Code]int{
	CodeValidation:        http.StatusBadRequest,
	CodeNotFound:          http.StatusNotFound,
	CodeUnauthorized:      http.StatusUnauthorized,
	CodeForbidden:         http.StatusForbidden,
	CodeConflict:          http.StatusConflict,
	CodeRateLimited:       http.StatusTooManyRequests,
	CodeEntitlementDenied: http.StatusForbidden,
	CodeUpstreamError:     http.StatusBadGateway,
	CodeSessionExpired:    http.StatusGone,
	CodeInternal:          http.StatusInternalServerError,

	CodeSubscriptionInvalid: http.StatusBadRequest,
	CodePlanNotAvailable:    http.StatusNotFound,
	CodeStripeError:         http.StatusInternalServerError,
}

// Error is the typed application error. Title is a short, stable,
// human-readable summary (never interpolates user input) and is what
// crosses the HTTP/JSON-RPC boundary; Detail and the wrapped cause
// stay server-side for logging only.
type Error struct {
	Code       Code
	HTTPStatus int
	Title      string
	Detail     string
	cause      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an *Error for code with the given title.
func New(code Code, title string) *Error {
	return &Error{Code: code, HTTPStatus: httpStatusByCode[code], Title: title}
}

// Wrap constructs an *Error for code wrapping cause, carrying cause's
// message as server-side Detail.
func Wrap(code Code, title string, cause error) *Error {
	e := New(code, title)
	if cause != nil {
		e.Detail = cause.Error()
		e.cause = cause
	}
	return e
}

// WithDetail returns a copy of e with Detail set.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// As extracts an *Error from err via errors.As, or nil if err doesn't
// wrap one.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// NotFound, Validation, Unauthorized, Forbidden, Conflict, and
// Internal are constructors for the common cases.
func NotFound(title string) *Error   { return New(CodeNotFound, title) }
func Validation(title string) *Error { return New(CodeValidation, title) }
func Unauthorized(title string) *Error { return New(CodeUnauthorized, title) }
func Forbidden(title string) *Error  { return New(CodeForbidden, title) }
func Conflict(title string) *Error   { return New(CodeConflict, title) }
func Internal(cause error) *Error {
	return Wrap(CodeInternal, "internal error", cause)
}
