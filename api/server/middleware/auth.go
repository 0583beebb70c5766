package middleware

import (
	"context"
	"net/http"

	"github.com/arca-project/arca/api/server/httputils"
)

// AuthMiddleware is a passthrough placeholder in the middleware pipeline:
// registry/client authentication isn't implemented, but the pipeline shape
// (a fixed slot every request goes through) is kept so a real credential
// check can be dropped in later without reshaping the router wiring.
type AuthMiddleware struct{}

// NewAuthMiddleware builds an AuthMiddleware.
func NewAuthMiddleware() *AuthMiddleware {
	return &AuthMiddleware{}
}

// WrapHandler passes every request through unchanged.
func (m *AuthMiddleware) WrapHandler(handler httputils.APIFunc) httputils.APIFunc {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error {
		return handler(ctx, w, r, vars)
	}
}
