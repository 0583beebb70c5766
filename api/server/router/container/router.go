// Package container implements the Router for the container resource:
// create/list/inspect/start/stop/kill/pause/unpause/remove/wait/rename,
// plus logs, attach, exec, stats, top, and prune, all backed by
// daemon/containers.Manager.
package container

import (
	"github.com/arca-project/arca/api/server"
	"github.com/arca-project/arca/daemon/containers"
)

// Router serves the /containers and /exec route families.
type Router struct {
	manager *containers.Manager
}

// NewRouter builds a container Router backed by manager.
func NewRouter(manager *containers.Manager) *Router {
	return &Router{manager: manager}
}

// Routes returns every route this Router serves.
func (r *Router) Routes() []server.Route {
	return []server.Route{
		{"GET", "/containers/json", r.getContainersJSON},
		{"POST", "/containers/create", r.postContainersCreate},
		{"GET", "/containers/{id}/json", r.getContainerJSON},
		{"POST", "/containers/{id}/start", r.postContainerStart},
		{"POST", "/containers/{id}/stop", r.postContainerStop},
		{"POST", "/containers/{id}/restart", r.postContainerRestart},
		{"POST", "/containers/{id}/kill", r.postContainerKill},
		{"POST", "/containers/{id}/pause", r.postContainerPause},
		{"POST", "/containers/{id}/unpause", r.postContainerUnpause},
		{"POST", "/containers/{id}/rename", r.postContainerRename},
		{"POST", "/containers/{id}/wait", r.postContainerWait},
		{"DELETE", "/containers/{id}", r.deleteContainer},
		{"GET", "/containers/{id}/logs", r.getContainerLogs},
		{"POST", "/containers/{id}/attach", r.postContainerAttach},
		{"GET", "/containers/{id}/stats", r.getContainerStats},
		{"GET", "/containers/{id}/top", r.getContainerTop},
		{"POST", "/containers/prune", r.postContainersPrune},
		{"POST", "/containers/{id}/exec", r.postContainerExecCreate},
		{"POST", "/exec/{id}/start", r.postExecStart},
		{"GET", "/exec/{id}/json", r.getExecJSON},
	}
}
