package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case entity.IsRejection(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrDriverNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrBackpressure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		msg = http.StatusText(status)
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
