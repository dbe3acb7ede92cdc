// This file implements a small builder for JSON responses so every handler
// answers with the same envelope.

package http

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in the "error" field.
const (
	CodeValidation        = "validation_error"
	CodeInvalidAmount     = "invalid_amount"
	CodeInsufficientFunds = "insufficient_funds"
	CodeWrongPIN          = "wrong_pin"
	CodeUnauthenticated   = "unauthenticated"
	CodeRateLimited       = "rate_limited"
	CodeBadRequest        = "bad_request"
	CodeNotFound          = "not_found"
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeInternal          = "internal_error"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    map[string]any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		payload:    make(map[string]any),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Message sets the human-readable message shown to the client.
func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	return b.Field("message", msg)
}

// Field sets one top-level field of the body.
func (b *JSONResponseBuilder) Field(name string, value any) *JSONResponseBuilder {
	b.payload[name] = value
	return b
}

// Write sends the built response. A 204 is sent without a body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

// ErrorResponse creates {"error": code, "messages": [...]} with the given status.
func ErrorResponse(statusCode int, code string, messages ...string) *JSONResponseBuilder {
	if messages == nil {
		messages = []string{}
	}
	return NewJSONResponse().
		Status(statusCode).
		Field("error", code).
		Field("messages", messages)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// UnprocessableEntityError creates a 422 error response.
func UnprocessableEntityError(code string, messages ...string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, code, messages...)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// UnauthorizedError creates a 401 response.
func UnauthorizedError(code, message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, code, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed, msgMethodNotAllowed).
		Header("Allow", allowedMethods)
}
