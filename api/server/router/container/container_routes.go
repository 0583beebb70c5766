package container

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/arca-project/arca/api/server/httputils"
	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/containers"
	"github.com/arca-project/arca/internal/errdefs"
)

func (r *Router) getContainersJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	all := httputils.BoolValue(req, "all")

	list := r.manager.List()
	out := make([]*apitypes.ContainerSummary, 0, len(list))
	for _, c := range list {
		if !all && c.State.Status != container.StatusRunning && c.State.Status != container.StatusPaused {
			continue
		}
		out = append(out, c.ToSummary())
	}
	return httputils.WriteJSON(w, http.StatusOK, out)
}

func (r *Router) postContainersCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	name := req.Form.Get("name")

	var body apitypes.ContainerCreateRequest
	if err := httputils.ReadJSON(req, &body); err != nil {
		return errdefs.InvalidParameter(fmt.Errorf("decode create request: %w", err))
	}
	if body.Config == nil {
		return errdefs.InvalidParameter(fmt.Errorf("missing container config"))
	}

	c, err := r.manager.Create(ctx, name, body.Config, body.HostConfig, body.NetworkingConfig)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusCreated, apitypes.ContainerCreateResponse{ID: c.ID})
}

func (r *Router) resolve(id string) (*container.Container, error) {
	c, ok := r.manager.Resolve(id)
	if !ok {
		return nil, errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	return c, nil
}

func (r *Router) getContainerJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, c.ToInspect())
}

func (r *Router) postContainerStart(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := r.manager.Start(ctx, c.ID); err != nil {
		if errdefs.IsNotModified(err) {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postContainerStop(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	timeout, err := httputils.Int64ValueOrDefault(req, "t", 10)
	if err != nil {
		return errdefs.InvalidParameter(err)
	}
	if err := r.manager.Stop(ctx, c.ID, int(timeout)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postContainerRestart(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	timeout, err := httputils.Int64ValueOrDefault(req, "t", 10)
	if err != nil {
		return errdefs.InvalidParameter(err)
	}
	if c.State.Status == container.StatusRunning {
		if err := r.manager.Stop(ctx, c.ID, int(timeout)); err != nil {
			return err
		}
	}
	if err := r.manager.Start(ctx, c.ID); err != nil && !errdefs.IsNotModified(err) {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postContainerKill(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	signal := req.Form.Get("signal")
	if err := r.manager.Kill(ctx, c.ID, signal); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postContainerPause(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := r.manager.Pause(ctx, c.ID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postContainerUnpause(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := r.manager.Unpause(ctx, c.ID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postContainerRename(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	newName := req.Form.Get("name")
	if newName == "" {
		return errdefs.InvalidParameter(fmt.Errorf("name is required"))
	}
	if err := r.manager.Rename(ctx, c.ID, newName); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) postContainerWait(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	result, err := r.manager.Wait(ctx, c.ID)
	if err != nil {
		return err
	}
	resp := apitypes.ContainerWaitResponse{StatusCode: result.StatusCode}
	if result.Error != "" {
		resp.Error = &apitypes.ContainerWaitErrorBody{Message: result.Error}
	}
	return httputils.WriteJSON(w, http.StatusOK, resp)
}

func (r *Router) deleteContainer(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	force := httputils.BoolValue(req, "force")
	if err := r.manager.Remove(ctx, c.ID, force); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) getContainerLogs(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	if !httputils.BoolValue(req, "stdout") && !httputils.BoolValue(req, "stderr") {
		return errdefs.InvalidParameter(fmt.Errorf("at least one of stdout or stderr must be set"))
	}
	follow := httputils.BoolValue(req, "follow")
	tail := int(httputils.Int64ValueOrZero(req, "tail"))
	timestamps := httputils.BoolValue(req, "timestamps")

	var since time.Time
	if s := req.Form.Get("since"); s != "" {
		if secs, serr := strconv.ParseInt(s, 10, 64); serr == nil {
			since = time.Unix(secs, 0)
		}
	}

	lines, err := r.manager.Logs(ctx, c.ID, follow, tail, since)
	if err != nil {
		return err
	}
	return httputils.Streaming(w, http.StatusOK, map[string]string{
		"Content-Type": "application/vnd.docker.raw-stream",
	}, func(cw httputils.ChunkWriter) error {
		for line := range lines {
			if err := containers.WriteFramed(cw, line, c.Config != nil && c.Config.Tty, timestamps); err != nil {
				return err
			}
			cw.Flush()
		}
		return nil
	})
}

func (r *Router) postContainerAttach(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}
	lines, err := r.manager.Logs(ctx, c.ID, true, 0, time.Time{})
	if err != nil {
		return err
	}
	return httputils.Streaming(w, http.StatusOK, map[string]string{
		"Content-Type": "application/vnd.docker.raw-stream",
	}, func(cw httputils.ChunkWriter) error {
		for line := range lines {
			if err := containers.WriteFramed(cw, line, c.Config != nil && c.Config.Tty, false); err != nil {
				return err
			}
			cw.Flush()
		}
		return nil
	})
}

func (r *Router) getContainerStats(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	_ = c
	return httputils.WriteJSON(w, http.StatusOK, apitypes.StatsResponse{
		Read: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) getContainerTop(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	procs, err := r.manager.Top(ctx, c.ID)
	if err != nil {
		return err
	}
	resp := apitypes.ContainerTopResponse{Titles: []string{"PID", "USER", "COMMAND"}}
	for _, p := range procs {
		resp.Processes = append(resp.Processes, []string{p.PID, p.User, p.Command})
	}
	return httputils.WriteJSON(w, http.StatusOK, resp)
}

func (r *Router) postContainersPrune(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	removed := make([]string, 0)
	for _, c := range r.manager.List() {
		if c.State.Status == container.StatusRunning || c.State.Status == container.StatusPaused {
			continue
		}
		if err := r.manager.Remove(ctx, c.ID, false); err != nil {
			continue
		}
		removed = append(removed, c.ID)
	}
	return httputils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ContainersDeleted": removed,
		"SpaceReclaimed":    0,
	})
}

func (r *Router) postContainerExecCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	c, err := r.resolve(vars["id"])
	if err != nil {
		return err
	}
	var body apitypes.ExecCreateRequest
	if err := httputils.ReadJSON(req, &body); err != nil {
		return errdefs.InvalidParameter(fmt.Errorf("decode exec create request: %w", err))
	}
	id, err := r.manager.ExecCreate(ctx, c.ID, body)
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusCreated, apitypes.ExecCreateResponse{ID: id})
}

func (r *Router) postExecStart(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body apitypes.ExecStartRequest
	_ = httputils.ReadJSON(req, &body)
	if body.Detach {
		go func() {
			_ = r.manager.ExecStart(context.Background(), vars["id"], nil, nil)
		}()
		w.WriteHeader(http.StatusOK)
		return nil
	}
	return httputils.Streaming(w, http.StatusOK, map[string]string{
		"Content-Type": "application/vnd.docker.raw-stream",
	}, func(cw httputils.ChunkWriter) error {
		return r.manager.ExecStart(ctx, vars["id"], req.Body, cw)
	})
}

func (r *Router) getExecJSON(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	info, err := r.manager.ExecInspect(vars["id"])
	if err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, info)
}
