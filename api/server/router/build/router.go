// Package build implements the Router for the image-build resource:
// POST /build and POST /build/prune. Build-cache disk usage
// (build.Manager.DiskUsage) is not served by any route.
package build

import (
	"github.com/arca-project/arca/api/server"
	"github.com/arca-project/arca/daemon/build"
)

// Router serves the /build route family.
type Router struct {
	manager *build.Manager
}

// NewRouter builds a build Router backed by manager.
func NewRouter(manager *build.Manager) *Router {
	return &Router{manager: manager}
}

// Routes returns every route this Router serves.
func (r *Router) Routes() []server.Route {
	return []server.Route{
		{Method: "POST", Path: "/build", Handler: r.postBuild},
		{Method: "POST", Path: "/build/prune", Handler: r.postBuildPrune},
	}
}
