package system

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/arca-project/arca/api/server/httputils"
	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/internal/errdefs"
)

func (r *Router) getPing(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	w.Header().Set("API-Version", r.info.APIVersion)
	w.Header().Set("OSType", r.info.Os)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(apitypes.PingResponse))
	return err
}

func (r *Router) getVersion(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, apitypes.VersionResponse{
		Version:       r.info.Version,
		APIVersion:    r.info.APIVersion,
		MinAPIVersion: r.info.MinAPIVersion,
		GitCommit:     r.info.GitCommit,
		GoVersion:     r.info.GoVersion,
		Os:            r.info.Os,
		Arch:          r.info.Arch,
	})
}

func (r *Router) getInfo(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	resp := apitypes.InfoResponse{
		ID:              r.daemonID,
		Driver:          "arca-vm",
		ServerVersion:   r.info.Version,
		OperatingSystem: r.info.Os,
	}
	for _, c := range r.containers.List() {
		resp.Containers++
		switch c.State.Status {
		case container.StatusRunning:
			resp.ContainersRunning++
		case container.StatusPaused:
			resp.ContainersPaused++
		default:
			resp.ContainersStopped++
		}
	}
	if r.images != nil {
		resp.Images = len(r.images.List())
	}
	return httputils.WriteJSON(w, http.StatusOK, resp)
}

func (r *Router) getEvents(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return errdefs.InvalidParameter(err)
	}

	since := parseEventTime(req.Form.Get("since"))
	until := parseEventTime(req.Form.Get("until"))
	filters := parseEventFilters(req.Form.Get("filters"))

	sub := r.bus.Subscribe(ctx, since, until, filters)

	return httputils.Streaming(w, http.StatusOK, map[string]string{
		"Content-Type": "application/json",
	}, func(cw httputils.ChunkWriter) error {
		enc := json.NewEncoder(cw)
		for msg := range sub {
			if err := enc.Encode(msg); err != nil {
				return err
			}
			cw.Flush()
		}
		return nil
	})
}

func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}

// parseEventFilters decodes the Engine API's `filters` query parameter: a
// JSON object of filter-key -> array-of-values, the same grammar
// daemon/events.Filters matches against.
func parseEventFilters(raw string) events.Filters {
	if raw == "" {
		return events.Filters{}
	}
	var decoded map[string][]string
	if err := decodeJSONFilters(raw, &decoded); err != nil {
		return events.Filters{}
	}
	return events.Filters{
		Type:      decoded["type"],
		Action:    decoded["event"],
		Container: decoded["container"],
		Image:     decoded["image"],
		Network:   decoded["network"],
		Volume:    decoded["volume"],
		Label:     decoded["label"],
	}
}
