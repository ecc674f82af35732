package platform

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is a non-2xx platform response, parsed from the JSON error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
	}
	if e.Message != "" {
		return fmt.Sprintf("platform: %s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("platform: HTTP %d", e.StatusCode)
}

// IsNotFound reports whether err is a platform 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// retryDelay reports whether err is a throttling or transient upstream
// response worth retrying, and the server-requested delay if any.
func retryDelay(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return apiErr.RetryAfter, true
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return 0, true
	}
	return 0, false
}
