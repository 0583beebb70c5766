package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/arca-project/arca/api/server/httputils"
	"github.com/containerd/log"
)

// RequestLoggingMiddleware logs every request's method, path, and outcome
// at debug level — the same per-request shape the rest of the daemon uses
// containerd/log for (daemon/network, daemon/build), rather than a
// bespoke access-log format.
type RequestLoggingMiddleware struct{}

// NewRequestLoggingMiddleware builds a RequestLoggingMiddleware.
func NewRequestLoggingMiddleware() *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{}
}

// WrapHandler logs before and after handler runs.
func (m *RequestLoggingMiddleware) WrapHandler(handler httputils.APIFunc) httputils.APIFunc {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error {
		start := time.Now()
		logger := log.G(ctx).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		logger.Debug("handling request")

		err := handler(ctx, w, r, vars)

		entry := logger.WithField("duration", time.Since(start))
		if err != nil {
			entry.WithError(err).Debug("request failed")
		} else {
			entry.Debug("request handled")
		}
		return err
	}
}
