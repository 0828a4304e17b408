// Package httputil provides HTTP handler utilities for consistent
// error handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deskforge/deskforge/pkg/apperrors"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteAppError maps a domain error to its HTTP status. Permission
// denials and disabled features both read as 403 but keep distinct
// error codes in the body so clients can tell them apart.
func WriteAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	kind := appErr.Kind

	var status int
	switch kind {
	case apperrors.KindUnauthorized:
		status = http.StatusForbidden
	case apperrors.KindFeatureDisabled:
		status = http.StatusForbidden
	case apperrors.KindInvalidState:
		status = http.StatusConflict
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindUpstreamFailure:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": err.Error()}
	if kind != "" {
		body["code"] = string(kind)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK)
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}
