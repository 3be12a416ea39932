package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sells-group/dataminer/internal/model"
	"github.com/sells-group/dataminer/internal/store"
)

// parseUUIDParam reads a UUID path parameter, writing a 422 for malformed
// values so they are distinguishable from missing rows.
func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	if _, err := uuid.Parse(raw); err != nil {
		validationFailed(w, r, FieldFailure{Field: name, Message: "must be a valid UUID"})
		return "", false
	}
	return raw, true
}

// validator accumulates field failures across a request body.
type validator struct {
	failures []FieldFailure
}

func (v *validator) fail(field, format string, args ...any) {
	v.failures = append(v.failures, FieldFailure{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) required(field, value string) {
	if value == "" {
		v.fail(field, "is required")
	}
}

func (v *validator) maxLen(field, value string, limit int) {
	if len(value) > limit {
		v.fail(field, "must be at most %d characters, got %d", limit, len(value))
	}
}

func (v *validator) maxLenPtr(field string, value *string, limit int) {
	if value != nil {
		v.maxLen(field, *value, limit)
	}
}

func (v *validator) rangeFloat(field string, value, min, max float64) {
	if value < min || value > max {
		v.fail(field, "must be between %g and %g, got %g", min, max, value)
	}
}

func (v *validator) rangeInt(field string, value, min, max int) {
	if value < min || value > max {
		v.fail(field, "must be between %d and %d, got %d", min, max, value)
	}
}

func (v *validator) nonNegative(field string, value float64) {
	if value < 0 {
		v.fail(field, "must be >= 0, got %g", value)
	}
}

func (v *validator) languageCode(field, code string) {
	if code != "" && !model.ValidLanguageCode(code) {
		v.fail(field, "is not a valid language code: %q", code)
	}
}

// err returns a ValidationError when any check failed, nil otherwise.
func (v *validator) err() error {
	if len(v.failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: v.failures}
}

// parsePagination reads limit and offset query parameters, applying the
// store defaults and rejecting out-of-range values.
func parsePagination(r *http.Request) (limit, offset int, failures []FieldFailure) {
	limit = store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > store.MaxListLimit {
			failures = append(failures, FieldFailure{
				Field:   "limit",
				Message: fmt.Sprintf("must be an integer between 1 and %d", store.MaxListLimit),
			})
		} else {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			failures = append(failures, FieldFailure{
				Field:   "offset",
				Message: "must be an integer >= 0",
			})
		} else {
			offset = n
		}
	}
	return limit, offset, failures
}

// parseBoolParam reads an optional boolean query parameter.
func parseBoolParam(r *http.Request, name string) (*bool, *FieldFailure) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &FieldFailure{Field: name, Message: "must be true or false"}
	}
	return &b, nil
}
