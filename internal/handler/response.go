package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/prn-tf/helpdesk/internal/service"
)

// Client-facing error details.
const (
	detailNotFound         = "Not found."
	detailInvalidToken     = "Invalid token."
	detailInternal         = "Internal server error."
	detailMethodNotAllowed = "Method not allowed."
	msgInvalidCredentials  = "Unable to log in with provided credentials."
	msgInvalidInteger      = "A valid integer is required."
)

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes a {"detail": msg} body.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeServiceError maps a service error kind to a response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr.Fields)

	case errors.Is(err, service.ErrNotFound):
		writeDetail(w, http.StatusNotFound, detailNotFound)

	case errors.Is(err, service.ErrAuthentication):
		w.Header().Set("WWW-Authenticate", "Token")
		writeDetail(w, http.StatusUnauthorized, detailInvalidToken)

	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeDetail(w, http.StatusInternalServerError, detailInternal)
	}
}

// decodeJSON reads a JSON object from the request body into v.
// Unknown fields are ignored. On failure a 400 has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) bool {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large.")
	case errors.Is(err, io.EOF):
		// An empty body is an empty object.
		return true
	default:
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("JSON parse error - %v", err))
	}
	return false
}
