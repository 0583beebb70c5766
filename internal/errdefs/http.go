package errdefs

import "net/http"

// HTTPStatusCode maps an error's kind to a Docker Engine API status code. A
// single helper here means handlers never need their own per-error-kind
// switch statement (see api/server/errorhandler.go).
func HTTPStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidParameter(err):
		return http.StatusBadRequest
	case IsConflict(err):
		return http.StatusConflict
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	case IsForbidden(err):
		return http.StatusForbidden
	case IsNotModified(err):
		return http.StatusNotModified
	case IsNotImplemented(err):
		return http.StatusNotImplemented
	case IsDeadlineExceeded(err):
		return http.StatusRequestTimeout
	case IsCancelled(err):
		return 499 // client closed request, matches moby's convention
	case IsSystem(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
