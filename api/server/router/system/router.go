// Package system implements the Router for the daemon-wide endpoints:
// _ping, version, info, and the events stream.
package system

import (
	"github.com/arca-project/arca/api/server"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/image"
)

// ContainerLister is the narrow view of the Container Manager this router
// needs for /info's counts; avoids importing daemon/containers directly
// and coupling this package to its full surface.
type ContainerLister interface {
	List() []*container.Container
}

// VersionInfo is the static build/version information baked into /version
// and the Server/API-Version response headers.
type VersionInfo struct {
	Version       string
	APIVersion    string
	MinAPIVersion string
	GitCommit     string
	GoVersion     string
	Os            string
	Arch          string
}

// Router serves /_ping, /version, /info, /events.
type Router struct {
	containers ContainerLister
	images     *image.Store
	bus        *events.Bus
	info       VersionInfo
	daemonID   string
}

// NewRouter builds a system Router.
func NewRouter(containers ContainerLister, images *image.Store, bus *events.Bus, info VersionInfo, daemonID string) *Router {
	return &Router{containers: containers, images: images, bus: bus, info: info, daemonID: daemonID}
}

// Routes returns every route this Router serves.
func (r *Router) Routes() []server.Route {
	return []server.Route{
		{Method: "GET", Path: "/_ping", Handler: r.getPing},
		{Method: "HEAD", Path: "/_ping", Handler: r.getPing},
		{Method: "GET", Path: "/version", Handler: r.getVersion},
		{Method: "GET", Path: "/info", Handler: r.getInfo},
		{Method: "GET", Path: "/events", Handler: r.getEvents},
	}
}
