package volume

import (
	"context"
	"net/http"

	"github.com/arca-project/arca/api/server/httputils"
	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/volume"
	"github.com/arca-project/arca/internal/errdefs"
)

func (r *Router) getVolumesJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	list := r.manager.List()
	out := make([]*apitypes.Volume, 0, len(list))
	for _, v := range list {
		out = append(out, volume.Summary(v))
	}
	return httputils.WriteJSON(w, http.StatusOK, apitypes.VolumeListResponse{Volumes: out})
}

func (r *Router) getVolumeJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	v, err := r.manager.Inspect(vars["name"])
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, volume.Summary(v))
}

func (r *Router) postVolumesCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body apitypes.VolumeCreateRequest
	if err := httputils.ReadJSON(req, &body); err != nil {
		return errdefs.InvalidParameter(err)
	}
	v, err := r.manager.Create(ctx, body.Name, body.Driver, body.Labels)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusCreated, volume.Summary(v))
}

func (r *Router) deleteVolume(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	force := httputils.BoolValue(req, "force")
	if err := r.manager.Remove(ctx, vars["name"], force); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postVolumesPrune(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	removed, err := r.manager.Prune(ctx)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"VolumesDeleted": removed,
		"SpaceReclaimed": 0,
	})
}
