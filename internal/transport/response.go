// Package transport contains the HTTP router, middleware chain, and request
// handlers that serve resolved descriptors and drive stores and actions.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/uibind/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrCodeBadRequest:         http.StatusBadRequest,
	model.ErrCodeNotFound:           http.StatusNotFound,
	model.ErrCodeConflict:           http.StatusConflict,
	model.ErrCodeValidation:         http.StatusUnprocessableEntity,
	model.ErrCodeInternal:           http.StatusInternalServerError,
	model.ErrCodeBackendUnavailable: http.StatusBadGateway,
	model.ErrCodeBackendTimeout:     http.StatusGatewayTimeout,
	model.ErrCodeUnknownModel:       http.StatusNotFound,
	model.ErrCodeMissingID:          http.StatusBadRequest,
	model.ErrCodeNoProxy:            http.StatusNotImplemented,
	model.ErrCodeNoDataSource:       http.StatusNotImplemented,
	model.ErrCodeTransport:          http.StatusBadGateway,
}

// StatusFor returns the HTTP status for an error code, 500 when unmapped.
func StatusFor(code string) int {
	if status, ok := statusForCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteError writes err as an ErrorEnvelope with the matching HTTP status.
// Validation errors become VALIDATION_ERROR with field details; anything
// else that is not an envelope becomes a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	ee := model.AsEnvelope(err)
	WriteJSON(w, StatusFor(ee.Code), errorResponse{Error: ee})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewBadRequestError(msg))
}
