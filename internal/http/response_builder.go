// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the single mapping from service errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"expenses/internal/auth"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/services"
)

// Client facing error messages. They are part of the HTTP contract.
const (
	MsgTokenRequired      = "Access token required"
	MsgTokenInvalid       = "Invalid or expired token"
	MsgExpenseNotFound    = "Expense not found"
	MsgUserExists         = "User already exists"
	MsgInvalidCredentials = "Invalid credentials"
	MsgInternal           = "Internal server error"
	MsgBodyTooLarge       = "Request body too large"
	MsgRateLimited        = "Too many requests, please try again later"
	MsgRouteNotFound      = "Not found"
	MsgMethodNotAllowed   = "Method not allowed"
)

// Success messages.
const (
	MsgExpenseCreated = "Expense created successfully"
	MsgExpenseUpdated = "Expense updated successfully"
	MsgExpenseDeleted = "Expense deleted successfully"
	MsgUserRegistered = "User registered successfully"
	MsgLoginOK        = "Login successful"
)

type (
	// JSONResponseBuilder provides a fluent API for building JSON responses.
	JSONResponseBuilder struct {
		statusCode int
		body       any
		headers    map[string]string
	}

	errorBody struct {
		Error string `json:"error"`
	}

	validationBody struct {
		Errors []core.FieldError `json:"errors"`
	}
)

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
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

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) error {
	data, err := json.Marshal(b.body)
	if err != nil {
		data, _ = json.Marshal(errorBody{Error: MsgInternal})
		b.statusCode = http.StatusInternalServerError
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, werr := w.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	return werr
}

// ErrorResponse creates a {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// ValidationResponse creates a 400 response listing every bad field.
func ValidationResponse(ve *core.ValidationError) *JSONResponseBuilder {
	fields := ve.Fields
	if fields == nil {
		fields = []core.FieldError{}
	}
	return NewJSONResponse().Status(http.StatusBadRequest).Body(validationBody{Errors: fields})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := NewJSONResponse().Status(status).Body(v).Write(w); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write response",
			log.FieldError, err.Error())
	}
}

// writeError maps service errors to responses. Unknown errors become a
// generic 500 and are logged with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve   *core.ValidationError
		resp *JSONResponseBuilder
	)
	switch {
	case errors.As(err, &ve):
		resp = ValidationResponse(ve)
	case errors.Is(err, core.ErrNotFound):
		resp = ErrorResponse(http.StatusNotFound, MsgExpenseNotFound)
	case errors.Is(err, core.ErrConflict):
		resp = ErrorResponse(http.StatusConflict, MsgUserExists)
	case errors.Is(err, services.ErrInvalidCredentials):
		resp = ErrorResponse(http.StatusUnauthorized, MsgInvalidCredentials)
	case errors.Is(err, auth.ErrMissingToken):
		resp = ErrorResponse(http.StatusUnauthorized, MsgTokenRequired)
	case errors.Is(err, auth.ErrMalformedToken), errors.Is(err, auth.ErrInvalidToken):
		resp = ErrorResponse(http.StatusUnauthorized, MsgTokenInvalid)
	case errors.Is(err, errBodyTooLarge):
		resp = ErrorResponse(http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
	default:
		log.FromContext(r.Context()).Failure(r.Context(),
			"Request failed", err, log.ComponentHTTP, r.Method+" "+r.Pattern, nil)
		resp = ErrorResponse(http.StatusInternalServerError, MsgInternal)
	}
	if werr := resp.Write(w); werr != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write error response",
			log.FieldError, werr.Error())
	}
}
