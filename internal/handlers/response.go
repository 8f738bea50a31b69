package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/bipbip/bips-backend/internal/services"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 * 1024

// StatusResponse is the envelope of non-query responses.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, StatusResponse{Success: false, Message: message})
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor hides storage internals from clients.
func messageFor(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "Storage temporarily unavailable, please retry"
	default:
		return "Internal server error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
