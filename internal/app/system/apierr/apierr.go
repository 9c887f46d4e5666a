// Package apierr writes JSON response envelopes for the API.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Error codes shared across features.
const (
	CodeBadRequest         = "bad_request"
	CodeValidation         = "validation_error"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeInsufficient       = "insufficient_balance"
	CodeInvalidTransition  = "invalid_transition"
	CodeNotEditable        = "not_editable"
	CodeUserInactive       = "user_inactive"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeTooManyRequests    = "too_many_requests"
	CodeServiceUnavailable = "service_unavailable"
	CodeInternal           = "internal_error"
)

// Detail is the error body.
type Detail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Meta    map[string]any    `json:"meta,omitempty"`
}

type envelope struct {
	Error Detail `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write sends an error envelope.
func Write(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, envelope{Error: Detail{Code: code, Message: message}})
}

// WriteDetail sends an error envelope carrying per-field messages.
func WriteDetail(w http.ResponseWriter, status int, d Detail) {
	JSON(w, status, envelope{Error: d})
}

func Unauthorized(w http.ResponseWriter) {
	Write(w, http.StatusUnauthorized, CodeUnauthorized, "Sign in required.")
}

func Forbidden(w http.ResponseWriter) {
	Write(w, http.StatusForbidden, CodeForbidden, "You don't have permission to do that.")
}

func NotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Not found."
	}
	Write(w, http.StatusNotFound, CodeNotFound, message)
}

func BadRequest(w http.ResponseWriter, message string) {
	Write(w, http.StatusBadRequest, CodeBadRequest, message)
}
