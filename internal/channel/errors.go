package channel

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Discord JSON error codes the pipeline cares about.
const (
	CodeUnknownMessage     = 10008
	CodeUnknownWebhook     = 10015
	CodeMissingAccess      = 50001
	CodeMissingPermissions = 50013
)

// APIError is a non-2xx answer from the channel.
type APIError struct {
	Op         string
	Status     int
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: HTTP %d (code %d): %s", e.Op, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// IsPermission reports whether the channel refused the call for lack of
// access. These failures are transient from the pipeline's point of view.
func IsPermission(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.Status == http.StatusForbidden, apiErr.Status == http.StatusUnauthorized:
		return true
	case apiErr.Code == CodeMissingAccess, apiErr.Code == CodeMissingPermissions:
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound || apiErr.Code == CodeUnknownMessage
}

func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}
