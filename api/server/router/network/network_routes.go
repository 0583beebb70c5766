package network

import (
	"context"
	"fmt"
	"net/http"

	"github.com/arca-project/arca/api/server/httputils"
	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/network"
	"github.com/arca-project/arca/internal/errdefs"
)

// resolve looks a network up by ID first, then by name, matching how the
// Engine API lets callers address networks either way.
func (r *Router) resolve(idOrName string) (*network.Network, error) {
	if nw, ok := r.controller.Get(idOrName); ok {
		return nw, nil
	}
	if nw, ok := r.controller.GetByName(idOrName); ok {
		return nw, nil
	}
	return nil, errdefs.NotFound(fmt.Errorf("network %s not found", idOrName))
}

func (r *Router) getNetworksJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	list := r.controller.List()
	out := make([]*apitypes.NetworkResource, 0, len(list))
	for _, nw := range list {
		out = append(out, nw.ToResource())
	}
	return httputils.WriteJSON(w, http.StatusOK, out)
}

func (r *Router) getNetworkJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	nw, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nw.ToResource())
}

func (r *Router) postNetworksCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body apitypes.NetworkCreateRequest
	if err := httputils.ReadJSON(req, &body); err != nil {
		return errdefs.InvalidParameter(err)
	}
	if body.Name == "" {
		return errdefs.InvalidParameter(fmt.Errorf("name is required"))
	}
	driver := body.Driver
	if driver == "" {
		driver = "bridge-like"
	}

	var subnet, gateway string
	if body.IPAM != nil && len(body.IPAM.Config) > 0 {
		subnet = body.IPAM.Config[0].Subnet
		gateway = body.IPAM.Config[0].Gateway
	}

	nw, err := r.controller.CreateNetwork(ctx, body.Name, driver, subnet, gateway, body.Labels)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusCreated, apitypes.NetworkCreateResponse{ID: nw.ID})
}

func (r *Router) deleteNetwork(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	nw, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := r.controller.RemoveNetwork(ctx, nw.ID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postNetworkConnect(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	nw, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	var body apitypes.NetworkConnectRequest
	if err := httputils.ReadJSON(req, &body); err != nil {
		return errdefs.InvalidParameter(err)
	}
	if body.Container == "" {
		return errdefs.InvalidParameter(fmt.Errorf("container is required"))
	}

	var mac string
	var aliases []string
	if body.EndpointConfig != nil {
		mac = body.EndpointConfig.MacAddress
		aliases = body.EndpointConfig.Aliases
	}
	var hint string
	if body.EndpointConfig != nil {
		hint = body.EndpointConfig.IPAddress
	}

	if _, err := r.controller.Connect(ctx, nw.ID, body.Container, hint, mac, aliases); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (r *Router) postNetworkDisconnect(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	nw, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	var body apitypes.NetworkDisconnectRequest
	if err := httputils.ReadJSON(req, &body); err != nil {
		return errdefs.InvalidParameter(err)
	}
	if body.Container == "" {
		return errdefs.InvalidParameter(fmt.Errorf("container is required"))
	}
	if err := r.controller.Disconnect(ctx, nw.ID, body.Container); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}
