package marketplace

import (
	"fmt"
	"net/http"
	"strings"

	"launchlock/internal/services"
)

// APIError is a non-2xx marketplace response.
type APIError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("marketplace %s: http %d: %s", e.Operation, e.StatusCode, msg)
}

// Unwrap exposes the classification marker.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError:
		return services.ErrTransient
	case e.StatusCode == http.StatusNotFound:
		return services.ErrNotFound
	default:
		return services.ErrValidation
	}
}

// Rejected reports whether the marketplace definitively refused the request.
func (e *APIError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}
