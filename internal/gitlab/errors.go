package gitlab

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyRepository is returned when a project has no commits
	ErrEmptyRepository = errors.New("repository has no commits")

	// ErrUpstreamUnavailable is returned while the circuit breaker is open
	ErrUpstreamUnavailable = errors.New("gitlab unavailable")

	// ErrResponseTooLarge is returned when a response body exceeds MaxResponseSize
	ErrResponseTooLarge = errors.New("response exceeds maximum allowed size")
)

// HTTPError represents an unexpected HTTP status returned by GitLab
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, url, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// IsNotFound reports whether err is a GitLab 404
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsRecoverable reports whether err describes a condition of the repository
// itself rather than of GitLab or the network. Such a repository is treated as
// contributing no package until its activity advances.
func IsRecoverable(err error) bool {
	if errors.Is(err, ErrEmptyRepository) {
		return true
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		// A rejected token says nothing about the repository
		return false
	}
	return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
}
