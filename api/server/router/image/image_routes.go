package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arca-project/arca/api/server/httputils"
	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/image"
	"github.com/arca-project/arca/internal/errdefs"
)

var (
	errRepoRequired      = errors.New("repo is required")
	errFromImageRequired = errors.New("fromImage is required")
)

func (r *Router) getImagesJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	list := r.store.List()
	out := make([]apitypes.ImageSummary, 0, len(list))
	for _, img := range list {
		out = append(out, image.Summary(img))
	}
	return httputils.WriteJSON(w, http.StatusOK, out)
}

func (r *Router) getImageJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	img, err := r.store.Inspect(vars["name"])
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, image.InspectResponse(img))
}

func (r *Router) deleteImage(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	force := httputils.BoolValue(req, "force")
	if err := r.store.Remove(vars["name"], force); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (r *Router) postImageTag(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	repo := req.Form.Get("repo")
	tag := req.Form.Get("tag")
	if repo == "" {
		return errdefs.InvalidParameter(errRepoRequired)
	}
	dst := repo
	if tag != "" {
		dst = repo + ":" + tag
	}
	if err := r.store.Tag(vars["name"], dst); err != nil {
		return err
	}
	w.WriteHeader(http.StatusCreated)
	return nil
}

func (r *Router) postImagesCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	ref := req.Form.Get("fromImage")
	if tag := req.Form.Get("tag"); tag != "" {
		ref = ref + ":" + tag
	}
	if ref == "" {
		return errdefs.InvalidParameter(errFromImageRequired)
	}

	auth := decodeRegistryAuth(req.Header.Get("X-Registry-Auth"))

	return httputils.Streaming(w, http.StatusOK, map[string]string{
		"Content-Type": "application/json",
	}, func(cw httputils.ChunkWriter) error {
		enc := json.NewEncoder(cw)
		_, err := r.store.Pull(ctx, ref, auth, func(p apitypes.JSONProgress) {
			_ = enc.Encode(p)
			cw.Flush()
		})
		return err
	})
}

func (r *Router) postImagesPrune(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	removed := make([]string, 0)
	for _, img := range r.store.List() {
		if len(img.RepoTags) > 0 {
			continue
		}
		if err := r.store.Remove(img.ID.String(), true); err != nil {
			continue
		}
		removed = append(removed, img.ID.String())
	}
	return httputils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ImagesDeleted":  removed,
		"SpaceReclaimed": 0,
	})
}

// decodeRegistryAuth decodes the base64url-encoded JSON AuthConfig the
// Docker CLI attaches as the X-Registry-Auth header. A missing or
// unparseable header means an anonymous pull, not an error — most public
// images need no credentials.
func decodeRegistryAuth(header string) *apitypes.AuthConfig {
	if header == "" {
		return nil
	}
	data, err := base64.URLEncoding.DecodeString(header)
	if err != nil {
		return nil
	}
	var auth apitypes.AuthConfig
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil
	}
	return &auth
}
