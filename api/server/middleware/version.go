package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime"

	"github.com/arca-project/arca/api/server/httputils"
	"github.com/arca-project/arca/internal/errdefs"
)

// VersionMiddleware normalizes and validates the API version embedded in
// the request path (the router strips "/vMAJOR.MINOR" into vars["version"]
// before handlers run), rejecting anything outside [minVersion,
// defaultVersion] and stamping the Engine API's conventional response
// headers on every request, errored or not.
type VersionMiddleware struct {
	defaultVersion string
	minVersion     string
}

// NewVersionMiddleware builds a VersionMiddleware for the given engine
// version and minimum supported API version.
func NewVersionMiddleware(defaultVersion, minVersion string) *VersionMiddleware {
	return &VersionMiddleware{defaultVersion: defaultVersion, minVersion: minVersion}
}

// WrapHandler adapts handler to reject out-of-range versions before it
// runs, and to carry the negotiated version on ctx for everything below it.
func (v *VersionMiddleware) WrapHandler(handler httputils.APIFunc) httputils.APIFunc {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error {
		apiVersion := vars["version"]
		if apiVersion == "" {
			apiVersion = v.defaultVersion
		}

		w.Header().Set("Server", fmt.Sprintf("Docker/%s (%s)", v.defaultVersion, runtime.GOOS))
		w.Header().Set("API-Version", v.defaultVersion)
		w.Header().Set("OSType", runtime.GOOS)

		if httputils.VersionLessThan(apiVersion, v.minVersion) {
			return errdefs.InvalidParameter(fmt.Errorf(
				"client version %s is too old. Minimum supported API version is %s", apiVersion, v.minVersion))
		}
		if httputils.VersionLessThan(v.defaultVersion, apiVersion) {
			return errdefs.InvalidParameter(fmt.Errorf(
				"client version %s is too new. Maximum supported API version is %s", apiVersion, v.defaultVersion))
		}

		ctx = httputils.WithVersion(ctx, apiVersion)
		return handler(ctx, w, r, vars)
	}
}
