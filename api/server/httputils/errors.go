package httputils

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/arca-project/arca/internal/errdefs"
)

// matchesContentType validates the request's Content-Type header against
// expectedType, tolerating parameters (e.g. "application/json; charset=utf-8").
func matchesContentType(contentType, expectedType string) error {
	mimetype, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("malformed Content-Type header (%s): %w", contentType, err)
	}
	if mimetype != expectedType {
		return fmt.Errorf("unsupported Content-Type header (%s): must be '%s'", contentType, expectedType)
	}
	return nil
}

// CheckForJSON validates that the request body, if any, is declared as
// application/json.
func CheckForJSON(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return nil
	}
	return matchesContentType(ct, "application/json")
}

// FromStatusCode wraps err in the errdefs kind matching status, the
// inverse of errdefs.HTTPStatusCode. Used by routers that only have a raw
// status code to work with (e.g. proxying a vsock RPC failure).
func FromStatusCode(err error, status int) error {
	if err == nil {
		return nil
	}
	switch status {
	case http.StatusNotFound:
		return errdefs.NotFound(err)
	case http.StatusBadRequest:
		return errdefs.InvalidParameter(err)
	case http.StatusConflict:
		return errdefs.Conflict(err)
	case http.StatusUnauthorized:
		return errdefs.Unauthorized(err)
	case http.StatusServiceUnavailable:
		return errdefs.Unavailable(err)
	case http.StatusForbidden:
		return errdefs.Forbidden(err)
	case http.StatusNotModified:
		return errdefs.NotModified(err)
	case http.StatusNotImplemented:
		return errdefs.NotImplemented(err)
	case http.StatusRequestTimeout:
		return errdefs.DeadlineExceeded(err)
	case 499:
		return errdefs.Cancelled(err)
	default:
		return errdefs.System(err)
	}
}
