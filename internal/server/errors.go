package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/drivesearch-go/internal/logging"
)

// envelope is the JSON body of every API response.
type envelope struct {
	// Status is "success" or "error".
	Status string `json:"status"`
	// Message is a short human-readable note.
	Message string `json:"message,omitempty"`
	// Data is the payload on success.
	Data any `json:"data,omitempty"`
}

// apiError is a handler failure with the status and message sent to the
// client. err is the cause; it is logged and never returned to the caller.
type apiError struct {
	status  int
	message string
	err     error
}

func (e *apiError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *apiError) Unwrap() error { return e.err }

func badRequest(message string) error {
	return &apiError{status: http.StatusBadRequest, message: message}
}

func unauthorized(message string, err error) error {
	return &apiError{status: http.StatusUnauthorized, message: message, err: err}
}

func notFound(message string, err error) error {
	return &apiError{status: http.StatusNotFound, message: message, err: err}
}

func internal(message string, err error) error {
	return &apiError{status: http.StatusInternalServerError, message: message, err: err}
}

// handlerFunc is an HTTP handler that reports failure by returning an error.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts h to http.Handler. Returned errors become the error
// envelope; anything that is not an *apiError is a 500.
func (s *Server) handle(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var ae *apiError
		if !errors.As(err, &ae) {
			ae = &apiError{status: http.StatusInternalServerError, message: "Internal server error", err: err}
		}

		log := logging.FromContext(r.Context())
		switch {
		case ae.status >= http.StatusInternalServerError:
			log.Error("request failed", slog.Int("status", ae.status), slog.Any("error", ae.err))
		case ae.err != nil:
			log.Warn("request rejected", slog.Int("status", ae.status), slog.Any("error", ae.err))
		}
		writeError(w, ae.status, ae.message)
	})
}

// writeJSON writes v as the JSON response body with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess writes a 200 success envelope.
func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}

// writeError writes an error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "error", Message: message})
}

// decodeJSON reads a size-capped JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("Invalid request body")
	}
	return nil
}
