package comtrade

import (
	"errors"
	"fmt"
	"net/http"
)

// Run-fatal conditions. Quota exhaustion is global, not per-request:
// callers must stop fetching for the remainder of the run instead of
// retrying or skipping. An invalid key cannot recover without operator
// action either, but unlike quota exhaustion it will not clear on its
// own at the next quota reset.
var (
	ErrQuotaExceeded = errors.New("comtrade: quota exceeded")
	ErrInvalidKey    = errors.New("comtrade: invalid subscription key")
)

// APIError is the single wrapped error type surfaced by the client
// after transport-level retries are exhausted. Callers branch with
// errors.Is against the sentinels above rather than inspecting
// transport errors or matching message strings.
type APIError struct {
	Status  int
	Message string
	err     error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("comtrade: request failed (status %d): %s", e.Status, e.Message)
	}
	return "comtrade: request failed: " + e.Message
}

func (e *APIError) Unwrap() error {
	return e.err
}

func classifyStatus(status int, message string) *APIError {
	apiErr := &APIError{Status: status, Message: message}
	switch status {
	case http.StatusUnauthorized:
		apiErr.err = ErrInvalidKey
	case http.StatusForbidden:
		apiErr.err = ErrQuotaExceeded
	}
	return apiErr
}

// retryableStatus reports whether a status is worth retrying on an
// idempotent GET. Non-idempotent methods are never issued by this
// client, so no further guard is needed.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
