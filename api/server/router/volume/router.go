// Package volume implements the Router for the volume resource:
// list/inspect/create/remove and prune.
package volume

import (
	"github.com/arca-project/arca/api/server"
	"github.com/arca-project/arca/daemon/volume"
)

// Router serves the /volumes route family.
type Router struct {
	manager *volume.Manager
}

// NewRouter builds a volume Router backed by manager.
func NewRouter(manager *volume.Manager) *Router {
	return &Router{manager: manager}
}

// Routes returns every route this Router serves.
func (r *Router) Routes() []server.Route {
	return []server.Route{
		{Method: "GET", Path: "/volumes", Handler: r.getVolumesJSON},
		{Method: "POST", Path: "/volumes/create", Handler: r.postVolumesCreate},
		{Method: "GET", Path: "/volumes/{name}", Handler: r.getVolumeJSON},
		{Method: "DELETE", Path: "/volumes/{name}", Handler: r.deleteVolume},
		{Method: "POST", Path: "/volumes/prune", Handler: r.postVolumesPrune},
	}
}
