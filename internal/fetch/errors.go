package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDecode = errors.New("fetch: invalid response body")
)

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// HTTPError is a non-2xx response
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string

	// set when the server sent Retry-After, so the backoff honors it
	retryAfter error
}

func (e *HTTPError) Error() string {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	return fmt.Sprintf("%s %s: %s", method, e.URL, e.Status)
}

func (e *HTTPError) Unwrap() error {
	return e.retryAfter
}

// Retryable reports whether another attempt may succeed
func (e *HTTPError) Retryable() bool {
	return retryableStatus[e.StatusCode]
}

// Error is returned once every attempt for a URL has failed
type Error struct {
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the last attempt, or 0 when no
// response was received.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
