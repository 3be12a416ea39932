package api

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dataminer/internal/store"
)

// ErrorResponse is the body returned for every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Detail    any    `json:"detail,omitempty"`
	RequestID string `json:"request_id"`
}

// FieldFailure describes a single validation problem.
type FieldFailure struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates per-field failures from one request.
type ValidationError struct {
	Failures []FieldFailure
}

func (e *ValidationError) Error() string {
	if len(e.Failures) == 1 {
		return "validation failed: " + e.Failures[0].Field + ": " + e.Failures[0].Message
	}
	return "validation failed"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, kind, message string, detail any) {
	writeJSON(w, status, ErrorResponse{
		Error:     kind,
		Message:   message,
		Detail:    detail,
		RequestID: requestIDFrom(r.Context()),
	})
}

func notFound(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, http.StatusNotFound, "not_found", message, nil)
}

func conflict(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, http.StatusConflict, "conflict", message, nil)
}

func validationFailed(w http.ResponseWriter, r *http.Request, failures ...FieldFailure) {
	writeErrorResponse(w, r, http.StatusUnprocessableEntity, "validation_error",
		"request validation failed", failures)
}

// decodeBody unmarshals the request body into dst. A body that does not
// decode gets the same treatment as one with bad field values.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		validationFailed(w, r, FieldFailure{Field: "body", Message: "malformed request body"})
		return false
	}
	return true
}

// writeError maps store sentinels and validation errors to their status
// codes. Anything unrecognized becomes a 500 with a generic body; the full
// error is logged with the request id for correlation.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case eris.As(err, &verr):
		validationFailed(w, r, verr.Failures...)
	case eris.Is(err, store.ErrNotFound):
		notFound(w, r, err.Error())
	case eris.Is(err, store.ErrDuplicate):
		conflict(w, r, "resource already exists")
	default:
		zap.L().Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeErrorResponse(w, r, http.StatusInternalServerError, "internal_error",
			"internal server error", nil)
	}
}
