package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew_SetsHTTPStatusFromCode(t *testing.T) {
	err := New(CodeNotFound, "widget not found")
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}
	if err.Error() != "widget not found" {
		t.Errorf("Error() = %q, want %q", err.Error(), "widget not found")
	}
}

func TestWrap_CarriesCauseAsDetail(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeUpstreamError, "upstream unavailable", cause)

	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadGateway)
	}
	if err.Detail != "connection refused" {
		t.Errorf("Detail = %q, want %q", err.Detail, "connection refused")
	}
	want := "upstream unavailable: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("expected Wrap's result to unwrap to cause")
	}
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap(CodeInternal, "internal error", nil)
	if err.Detail != "" {
		t.Errorf("Detail = %q, want empty", err.Detail)
	}
	if err.Unwrap() != nil {
		t.Error("expected Unwrap() to be nil when cause is nil")
	}
}

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	original := New(CodeValidation, "invalid input")
	detailed := original.WithDetail("field 'name' is required")

	if original.Detail != "" {
		t.Errorf("expected original.Detail to remain empty, got %q", original.Detail)
	}
	if detailed.Detail != "field 'name' is required" {
		t.Errorf("detailed.Detail = %q, want %q", detailed.Detail, "field 'name' is required")
	}
}

func TestAs_ExtractsWrappedAppError(t *testing.T) {
	appErr := New(CodeForbidden, "not allowed")
	wrapped := fmt.Errorf("handler failed: %w", appErr)

	got := As(wrapped)
	if got == nil {
		t.Fatal("expected As to extract the wrapped *Error")
	}
	if got.Code != CodeForbidden {
		t.Errorf("Code = %q, want %q", got.Code, CodeForbidden)
	}
}

func TestAs_ReturnsNilForPlainError(t *testing.T) {
	if got := As(errors.New("plain error")); got != nil {
		t.Errorf("expected nil for a plain error, got %+v", got)
	}
}

func TestConstructorShortcuts(t *testing.T) {
	cases := []struct {
		name       string
		err        *Error
		code       Code
		httpStatus int
	}{
		{"NotFound", NotFound("x"), CodeNotFound, http.StatusNotFound},
		{"Validation", Validation("x"), CodeValidation, http.StatusBadRequest},
		{"Unauthorized", Unauthorized("x"), CodeUnauthorized, http.StatusUnauthorized},
		{"Forbidden", Forbidden("x"), CodeForbidden, http.StatusForbidden},
		{"Conflict", Conflict("x"), CodeConflict, http.StatusConflict},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.err.Code != c.code {
				t.Errorf("Code = %q, want %q", c.err.Code, c.code)
			}
			if c.err.HTTPStatus != c.httpStatus {
				t.Errorf("HTTPStatus = %d, want %d", c.err.HTTPStatus, c.httpStatus)
			}
		})
	}
}

func TestInternal_WrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal(cause)
	if err.Code != CodeInternal {
		t.Errorf("Code = %q, want %q", err.Code, CodeInternal)
	}
	if !errors.Is(err, cause) {
		t.Error("expected Internal's result to unwrap to cause")
	}
}
