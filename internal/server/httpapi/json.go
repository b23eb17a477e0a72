// Package httpapi holds the JSON, cookie and error helpers shared by the HTTP handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/autherr"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// ErrorsBody is the 400 response shape.
type ErrorsBody struct {
	ErrorsMessages []autherr.FieldError `json:"errorsMessages"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteValidation writes a 400 with every field problem in v.
func WriteValidation(w http.ResponseWriter, v *autherr.ValidationError) {
	fields := []autherr.FieldError{}
	if v != nil {
		fields = append(fields, v.Fields...)
	}
	WriteJSON(w, http.StatusBadRequest, ErrorsBody{ErrorsMessages: fields})
}

// WriteFieldError writes a 400 for a single field.
func WriteFieldError(w http.ResponseWriter, field, message string) {
	WriteValidation(w, autherr.NewValidationError(field, message))
}

// WriteInternal logs err and writes a bare 500; details stay in the logs.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("http: unexpected error")
	w.WriteHeader(http.StatusInternalServerError)
}

// WriteError maps the caller-facing outcomes shared by all routes; anything else is a 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := autherr.AsValidation(err); ok {
		WriteValidation(w, v)
		return
	}
	switch {
	case errors.Is(err, autherr.ErrInvalidToken), errors.Is(err, autherr.ErrInvalidCredentials):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, autherr.ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, autherr.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		WriteInternal(w, r, err)
	}
}

// DecodeJSON reads a single JSON object into dst. Unknown fields are ignored.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
