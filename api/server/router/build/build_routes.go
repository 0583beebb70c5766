package build

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/arca-project/arca/api/server/httputils"
	"github.com/arca-project/arca/daemon/build"
	"github.com/arca-project/arca/internal/errdefs"
)

// postBuild ensures the managed build-daemon container is running, starts a
// solve with the frontend attributes the client sent as query parameters
// (dockerfile.v0's usual "context"/"filename"/build-arg keys), then streams
// the solve's progress events as newline-delimited JSON — the same shape
// buildx's own client consumes, since the Build Manager only proxies to a
// real BuildKit-compatible server rather than reinterpreting its output.
func (r *Router) postBuild(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}

	attrs := map[string]string{}
	for k, v := range req.Form {
		if len(v) > 0 {
			attrs[k] = v[0]
		}
	}
	frontend := attrs["frontend"]
	if frontend == "" {
		frontend = "dockerfile.v0"
	}
	delete(attrs, "frontend")

	if _, err := r.manager.Ensure(ctx); err != nil {
		return errdefs.System(err)
	}

	ref, err := r.manager.Solve(ctx, build.SolveRequest{Frontend: frontend, FrontendAttrs: attrs})
	if err != nil {
		return errdefs.System(err)
	}

	statusCh, err := r.manager.Status(ref)
	if err != nil {
		return errdefs.System(err)
	}

	return httputils.Streaming(w, http.StatusOK, map[string]string{
		"Content-Type": "application/json",
	}, func(cw httputils.ChunkWriter) error {
		enc := json.NewEncoder(cw)
		for status := range statusCh {
			if err := enc.Encode(status); err != nil {
				return err
			}
			cw.Flush()
		}
		return nil
	})
}

func (r *Router) postBuildPrune(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	usage, err := r.manager.Prune(ctx)
	if err != nil {
		return errdefs.System(err)
	}
	var reclaimed int64
	for _, u := range usage {
		reclaimed += u.Size
	}
	return httputils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"SpaceReclaimed": reclaimed,
	})
}
