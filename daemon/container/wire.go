package container

import (
	"strings"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
)

// DisplayName returns the first registered name, matching Docker's
// convention of showing names with a leading "/" on the wire.
func (c *Container) DisplayName() string {
	if len(c.Names) == 0 {
		return ""
	}
	return "/" + strings.TrimPrefix(c.Names[0], "/")
}

// ToInspect renders the GET /containers/{id}/json response body. Env is
// returned in the order it was stored at create time (the order the client
// submitted it); Labels is a map, which encoding/json writes in sorted key
// order. No other normalization is applied, here or at create time.
func (c *Container) ToInspect() *apitypes.ContainerJSON {
	st := &apitypes.State{
		Status:     string(c.State.Status),
		Running:    c.State.Status == StatusRunning || c.State.Status == StatusRestarting,
		Paused:     c.State.Status == StatusPaused,
		Restarting: c.State.Status == StatusRestarting,
		OOMKilled:  c.State.OOMKilled,
		Dead:       c.State.Status == StatusDead,
		Pid:        c.State.Pid,
		ExitCode:   c.State.ExitCode,
		Error:      c.State.Error,
		StartedAt:  c.State.StartedAt,
		FinishedAt: c.State.FinishedAt,
	}

	ns := &apitypes.NetworkSettings{Networks: map[string]*apitypes.EndpointSettings{}}
	for id, a := range c.Attachments {
		ns.Networks[id] = &apitypes.EndpointSettings{
			NetworkID:  id,
			IPAddress:  a.IPv4,
			MacAddress: a.MAC,
			Aliases:    a.Aliases,
			VsockPort:  a.VsockPort,
		}
	}

	var path string
	var args []string
	if c.Config != nil && len(c.Config.Cmd) > 0 {
		path = c.Config.Cmd[0]
		args = c.Config.Cmd[1:]
	}

	return &apitypes.ContainerJSON{
		ID:              c.ID,
		Created:         c.State.StartedAt.Format(time.RFC3339Nano),
		Path:            path,
		Args:            args,
		State:           st,
		Image:           c.ImageRef,
		Name:            c.DisplayName(),
		RestartCount:    c.State.RestartCount,
		Config:          c.Config,
		HostConfig:      c.HostConfig,
		NetworkSettings: ns,
	}
}

// ToSummary renders one entry of GET /containers/json.
func (c *Container) ToSummary() *apitypes.ContainerSummary {
	var cmd string
	if c.Config != nil && len(c.Config.Cmd) > 0 {
		cmd = strings.Join(c.Config.Cmd, " ")
	}
	names := make([]string, 0, len(c.Names))
	for _, n := range c.Names {
		names = append(names, "/"+strings.TrimPrefix(n, "/"))
	}
	var labels map[string]string
	if c.Config != nil {
		labels = c.Config.Labels
	}
	return &apitypes.ContainerSummary{
		ID:      c.ID,
		Names:   names,
		Image:   c.ImageRef,
		ImageID: c.ImageDigest,
		Command: cmd,
		Created: c.State.StartedAt.Unix(),
		State:   string(c.State.Status),
		Status:  string(c.State.Status),
		Labels:  labels,
	}
}
