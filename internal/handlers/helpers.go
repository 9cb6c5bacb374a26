package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ternarybob/atelier/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps a service error onto its HTTP status.
func WriteServiceError(w http.ResponseWriter, err error) error {
	var validationErr *models.ValidationError
	var notFoundErr *models.NotFoundError
	var conflictErr *models.ConflictError
	var unavailableErr *models.WorkersUnavailableError

	switch {
	case errors.As(err, &validationErr):
		return WriteError(w, http.StatusUnprocessableEntity, validationErr.Message)
	case errors.As(err, &notFoundErr):
		return WriteError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &conflictErr):
		return WriteError(w, http.StatusConflict, conflictErr.Message)
	case errors.As(err, &unavailableErr):
		return WriteError(w, http.StatusServiceUnavailable, unavailableErr.Message)
	default:
		return WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// QueryInt reads an integer query parameter with a default.
func QueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// QueryFloat reads a float query parameter with a default.
func QueryFloat(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// PathID parses the trailing numeric path segment registered with the {id}
// wildcard.
func PathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}
