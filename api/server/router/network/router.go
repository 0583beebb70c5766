// Package network implements the Router for the network resource:
// list/inspect/create/remove and connect/disconnect.
package network

import (
	"github.com/arca-project/arca/api/server"
	"github.com/arca-project/arca/daemon/network"
)

// Router serves the /networks route family.
type Router struct {
	controller *network.Controller
}

// NewRouter builds a network Router backed by controller.
func NewRouter(controller *network.Controller) *Router {
	return &Router{controller: controller}
}

// Routes returns every route this Router serves.
func (r *Router) Routes() []server.Route {
	return []server.Route{
		{Method: "GET", Path: "/networks", Handler: r.getNetworksJSON},
		{Method: "GET", Path: "/networks/{id}", Handler: r.getNetworkJSON},
		{Method: "POST", Path: "/networks/create", Handler: r.postNetworksCreate},
		{Method: "DELETE", Path: "/networks/{id}", Handler: r.deleteNetwork},
		{Method: "POST", Path: "/networks/{id}/connect", Handler: r.postNetworkConnect},
		{Method: "POST", Path: "/networks/{id}/disconnect", Handler: r.postNetworkDisconnect},
	}
}
