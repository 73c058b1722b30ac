package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Standard error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeBackendTimeout     = "BACKEND_TIMEOUT"
)

// Runtime configuration and transport error codes.
const (
	ErrCodeNoProxy      = "NO_PROXY"
	ErrCodeNoDataSource = "NO_DATA_SOURCE"
	ErrCodeMissingID    = "MISSING_ID"
	ErrCodeUnknownModel = "UNKNOWN_MODEL"
	ErrCodeTransport    = "TRANSPORT_ERROR"
)

// Sentinels for errors.Is. An ErrorEnvelope matches a sentinel when the codes
// are equal.
var (
	ErrNoProxy      = &ErrorEnvelope{Code: ErrCodeNoProxy}
	ErrNoDataSource = &ErrorEnvelope{Code: ErrCodeNoDataSource}
	ErrMissingID    = &ErrorEnvelope{Code: ErrCodeMissingID}
	ErrUnknownModel = &ErrorEnvelope{Code: ErrCodeUnknownModel}
	ErrTransport    = &ErrorEnvelope{Code: ErrCodeTransport}
	ErrNotFound     = &ErrorEnvelope{Code: ErrCodeNotFound}
)

// ErrorEnvelope is the standard error shape of the runtime and of the HTTP
// API. It implements the error interface.
type ErrorEnvelope struct {
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`
	StatusCode int          `json:"status_code,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped transport cause, if any.
func (e *ErrorEnvelope) Unwrap() error {
	return e.cause
}

// Is matches envelopes by code.
func (e *ErrorEnvelope) Is(target error) bool {
	t, ok := target.(*ErrorEnvelope)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCodeBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCodeNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCodeConflict, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeInternal,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeBackendUnavailable,
		Message: "The backend service is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeBackendTimeout,
		Message: "The backend service did not respond in time",
	}
}

// NewNoProxyError reports a model used remotely without a proxy.
func NewNoProxyError(modelName string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeNoProxy,
		Message: fmt.Sprintf("no proxy configured for model %q", modelName),
	}
}

// NewNoDataSourceError reports a store with neither a proxy nor local data.
func NewNoDataSourceError(storeID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeNoDataSource,
		Message: fmt.Sprintf("no data source configured for store %q", storeID),
	}
}

// NewMissingIDError reports a destroy call with no resolvable id.
func NewMissingIDError(modelName string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeMissingID,
		Message: fmt.Sprintf("no id given for removal from model %q", modelName),
	}
}

// NewUnknownModelError reports a lookup of an unregistered model.
func NewUnknownModelError(modelName string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeUnknownModel,
		Message: fmt.Sprintf("model %q not found", modelName),
	}
}

// NewTransportError wraps a network or HTTP failure. statusCode is zero when
// no response was received.
func NewTransportError(statusCode int, cause error) *ErrorEnvelope {
	msg := "remote request failed"
	if statusCode > 0 {
		msg = fmt.Sprintf("remote request failed with status %d", statusCode)
	}
	return &ErrorEnvelope{
		Code:       ErrCodeTransport,
		Message:    msg,
		StatusCode: statusCode,
		cause:      cause,
	}
}

// ModelErrorKey is the synthetic key under which a failing model-level
// validator reports its message.
const ModelErrorKey = "_model"

// ValidationErrors maps field names to the message of their first failing
// validator. It is returned by Model.Save when validation fails.
type ValidationErrors map[string]string

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + v[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors converts the map to a sorted FieldError list.
func (v ValidationErrors) FieldErrors() []FieldError {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]FieldError, len(keys))
	for i, k := range keys {
		out[i] = FieldError{Field: k, Code: "INVALID", Message: v[k]}
	}
	return out
}

// NewValidationError returns a VALIDATION_ERROR envelope with field details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCodeValidation,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// AsEnvelope converts any error into an ErrorEnvelope. Validation errors
// become VALIDATION_ERROR; unknown errors become INTERNAL_ERROR.
func AsEnvelope(err error) *ErrorEnvelope {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return NewValidationError(ve.FieldErrors())
	}
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	return NewInternalError()
}
