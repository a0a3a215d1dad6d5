// Package httputil provides shared HTTP response and request helpers.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// WriteJSON writes data as an application/json response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a coded JSON error response.
func WriteError(w http.ResponseWriter, status int, code, description string) {
	WriteJSON(w, status, ErrorBody{Code: code, Description: description})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, description string) {
	WriteError(w, http.StatusBadRequest, "bad_request", description)
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, code, description string) {
	WriteError(w, http.StatusUnauthorized, code, description)
}

// Forbidden writes a 403 response.
func Forbidden(w http.ResponseWriter, code, description string) {
	WriteError(w, http.StatusForbidden, code, description)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, description string) {
	WriteError(w, http.StatusNotFound, "not_found", description)
}

// InternalError writes a 500 response.
func InternalError(w http.ResponseWriter, description string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", description)
}

// DecodeJSON decodes a JSON request body, rejecting unknown fields.
func DecodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
