package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrCodeNotFound, Message: "view not found"}
	want := "NOT_FOUND: view not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
	var _ error = ValidationErrors(nil)
}

func TestErrorEnvelope_Is_matchesByCode(t *testing.T) {
	err := fmt.Errorf("store: load: %w", NewNoDataSourceError("users"))
	if !errors.Is(err, ErrNoDataSource) {
		t.Error("errors.Is(err, ErrNoDataSource) = false, want true")
	}
	if errors.Is(err, ErrNoProxy) {
		t.Error("errors.Is(err, ErrNoProxy) = true, want false")
	}
}

func TestNewTransportError_unwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	e := NewTransportError(0, cause)
	if e.Code != ErrCodeTransport {
		t.Errorf("Code = %q, want %q", e.Code, ErrCodeTransport)
	}
	if !errors.Is(e, cause) {
		t.Error("transport error should unwrap to its cause")
	}
	if !errors.Is(e, ErrTransport) {
		t.Error("transport error should match ErrTransport")
	}
}

func TestNewTransportError_status(t *testing.T) {
	e := NewTransportError(503, nil)
	if e.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", e.StatusCode)
	}
	if e.Message != "remote request failed with status 503" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"no proxy", NewNoProxyError("User"), ErrCodeNoProxy},
		{"no data source", NewNoDataSourceError("users"), ErrCodeNoDataSource},
		{"missing id", NewMissingIDError("User"), ErrCodeMissingID},
		{"unknown model", NewUnknownModelError("Ghost"), ErrCodeUnknownModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
		})
	}
}

func TestValidationErrors_FieldErrors_sorted(t *testing.T) {
	v := ValidationErrors{"name": "required", "email": "invalid"}
	fe := v.FieldErrors()
	if len(fe) != 2 {
		t.Fatalf("len = %d, want 2", len(fe))
	}
	if fe[0].Field != "email" || fe[1].Field != "name" {
		t.Errorf("fields = %q, %q; want email, name", fe[0].Field, fe[1].Field)
	}
}

func TestAsEnvelope(t *testing.T) {
	ve := AsEnvelope(ValidationErrors{"name": "required"})
	if ve.Code != ErrCodeValidation || len(ve.Details) != 1 {
		t.Errorf("validation envelope = %+v", ve)
	}

	nf := AsEnvelope(fmt.Errorf("wrapped: %w", NewNotFoundError("x")))
	if nf.Code != ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", nf.Code, ErrCodeNotFound)
	}

	other := AsEnvelope(errors.New("boom"))
	if other.Code != ErrCodeInternal {
		t.Errorf("Code = %q, want %q", other.Code, ErrCodeInternal)
	}
}
