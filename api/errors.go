package api

import (
	"fmt"

	apperrors "github.com/jrsteele09/minis-web/internal/errors"
)

// ErrUnauthorized is returned for any 401 answer to an authenticated call.
// Callers treat it as "session invalid", never as a transient fault.
var ErrUnauthorized = apperrors.ErrUnauthorized

// RequestError is any other non-2xx answer.
type RequestError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("request failed: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// StatusOf returns the HTTP status behind err, or 0 when err did not come
// from a response.
func StatusOf(err error) int {
	var reqErr *RequestError
	if apperrors.As(err, &reqErr) {
		return reqErr.Status
	}
	if apperrors.Is(err, ErrUnauthorized) {
		return 401
	}
	return 0
}
