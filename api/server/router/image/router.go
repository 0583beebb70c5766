// Package image implements the Router for the image resource:
// list/inspect/remove/tag/pull and prune.
package image

import (
	"github.com/arca-project/arca/api/server"
	"github.com/arca-project/arca/daemon/image"
)

// Router serves the /images route family.
type Router struct {
	store *image.Store
}

// NewRouter builds an image Router backed by store.
func NewRouter(store *image.Store) *Router {
	return &Router{store: store}
}

// Routes returns every route this Router serves.
func (r *Router) Routes() []server.Route {
	return []server.Route{
		{Method: "GET", Path: "/images/json", Handler: r.getImagesJSON},
		{Method: "POST", Path: "/images/create", Handler: r.postImagesCreate},
		{Method: "GET", Path: "/images/{name:.*}/json", Handler: r.getImageJSON},
		{Method: "DELETE", Path: "/images/{name:.*}", Handler: r.deleteImage},
		{Method: "POST", Path: "/images/{name:.*}/tag", Handler: r.postImageTag},
		{Method: "POST", Path: "/images/prune", Handler: r.postImagesPrune},
	}
}
