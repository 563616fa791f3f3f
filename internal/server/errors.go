package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/forest-guardian/pdr-calculator/internal/delivery"
	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/forest-guardian/pdr-calculator/internal/sentinel"
)

// HTTPError is an error carrying the status it should be reported with.
type HTTPError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// toHTTPError maps domain errors onto statuses. Errors with no specific
// mapping get fallback.
func toHTTPError(err error, fallback int) HTTPError {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	status := fallback
	switch {
	case errors.Is(err, geometry.ErrNoGeometry):
		status = http.StatusBadRequest
	case errors.Is(err, geometry.ErrInvalidGeometry), errors.Is(err, delivery.ErrInvalidDateRange):
		status = http.StatusBadRequest
	case errors.Is(err, sentinel.ErrNoScene), errors.Is(err, delivery.ErrResultNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, sentinel.ErrUnauthorized), errors.Is(err, sentinel.ErrMissingCredentials):
		status = http.StatusBadGateway
	}
	var statusErr sentinel.StatusError
	if errors.As(err, &statusErr) {
		status = http.StatusBadGateway
	}
	return HTTPError{Status: status, Message: err.Error()}
}

func writeError(w http.ResponseWriter, err HTTPError) {
	writeJSON(w, err.Status, err)
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}
