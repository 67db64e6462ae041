package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"expensee/internal/auth"
	"expensee/internal/core"
)

// JSONResponse builds a JSON reply with a fluent API.
type JSONResponse struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponse {
	return &JSONResponse{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

func (b *JSONResponse) Body(v any) *JSONResponse {
	b.body = v
	return b
}

// Write sends the response. A nil body with status 204 writes nothing.
func (b *JSONResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Count int    `json:"count,omitempty"`
}

func ErrorResponse(statusCode int, message string) *JSONResponse {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

// requestError marks malformed requests: bad JSON, bad query parameters.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &requestError{msg: msg, err: err}
}

// writeError maps domain errors onto status codes. Unknown errors are
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *core.ValidationError
		serr *core.StateError
		nerr *core.NotFoundError
		rerr *requestError
	)
	switch {
	case errors.As(err, &rerr):
		ErrorResponse(http.StatusBadRequest, rerr.Error()).Write(w)
	case errors.As(err, &verr):
		NewJSONResponse().Status(http.StatusUnprocessableEntity).
			Body(errorBody{Error: verr.Error(), Field: verr.Field}).Write(w)
	case errors.As(err, &serr):
		NewJSONResponse().Status(http.StatusConflict).
			Body(errorBody{Error: serr.Error(), Count: serr.Count}).Write(w)
	case errors.As(err, &nerr):
		ErrorResponse(http.StatusNotFound, nerr.Error()).Write(w)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrSessionExpired):
		NewJSONResponse().Status(http.StatusUnauthorized).
			Header("WWW-Authenticate", `Bearer realm="expensee"`).
			Body(errorBody{Error: err.Error()}).Write(w)
	case errors.Is(err, auth.ErrForbidden):
		ErrorResponse(http.StatusForbidden, err.Error()).Write(w)
	case errors.Is(err, auth.ErrAccountExists):
		ErrorResponse(http.StatusConflict, err.Error()).Write(w)
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
		ErrorResponse(http.StatusInternalServerError, "internal error").Write(w)
	}
}
