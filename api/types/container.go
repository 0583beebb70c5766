// Package types holds the Docker Engine API wire types. These are the JSON
// shapes clients (Docker CLI, Compose, buildx) marshal/unmarshal; field names
// and casing follow the Engine API verbatim since clients are not modified.
package types

import "time"

// RestartPolicy is HostConfig.RestartPolicy on the wire.
type RestartPolicy struct {
	Name              string `json:"Name"`
	MaximumRetryCount int    `json:"MaximumRetryCount"`
}

// IsNone reports whether the policy is the default "no restart" policy.
func (p RestartPolicy) IsNone() bool { return p.Name == "" || p.Name == "no" }

// IsAlways reports the "always" policy.
func (p RestartPolicy) IsAlways() bool { return p.Name == "always" }

// IsUnlessStopped reports the "unless-stopped" policy.
func (p RestartPolicy) IsUnlessStopped() bool { return p.Name == "unless-stopped" }

// IsOnFailure reports the "on-failure[:N]" policy.
func (p RestartPolicy) IsOnFailure() bool { return p.Name == "on-failure" }

// Mount describes one filesystem attachment, in declared order. Type
// "bind" treats Source as a host path; type "volume" treats Source as a
// named Volume Store entry resolved to its driver mountpoint at Start.
type Mount struct {
	Type     string `json:"Type,omitempty"`
	Source   string `json:"Source"`
	Target   string `json:"Target"`
	ReadOnly bool   `json:"ReadOnly,omitempty"`
}

// IsVolume reports whether the mount names a managed volume rather than a
// host bind path.
func (m Mount) IsVolume() bool { return m.Type == "volume" }

// Resources is the subset of HostConfig resource limits the core persists
// and forwards to the Runtime Adapter; the adapter interprets them, the core
// never inspects cgroups directly (VM-per-container model).
type Resources struct {
	Memory   int64 `json:"Memory,omitempty"`
	NanoCPUs int64 `json:"NanoCpus,omitempty"`
}

// HostConfig is the container's host-side configuration.
type HostConfig struct {
	Binds         []string      `json:"Binds,omitempty"`
	Mounts        []Mount       `json:"Mounts,omitempty"`
	RestartPolicy RestartPolicy `json:"RestartPolicy"`
	NetworkMode   string        `json:"NetworkMode,omitempty"`
	Resources
	PortBindings map[string][]PortBinding `json:"PortBindings,omitempty"`
}

// PortBinding is one host port mapping for an exposed container port.
type PortBinding struct {
	HostIP   string `json:"HostIp,omitempty"`
	HostPort string `json:"HostPort,omitempty"`
}

// Config is the container's image-facing configuration (maps to OCI process spec).
type Config struct {
	Hostname     string              `json:"Hostname,omitempty"`
	Image        string              `json:"Image"`
	Cmd          []string            `json:"Cmd,omitempty"`
	Entrypoint   []string            `json:"Entrypoint,omitempty"`
	Env          []string            `json:"Env,omitempty"`
	WorkingDir   string              `json:"WorkingDir,omitempty"`
	User         string              `json:"User,omitempty"`
	Labels       map[string]string   `json:"Labels,omitempty"`
	Tty          bool                `json:"Tty,omitempty"`
	OpenStdin    bool                `json:"OpenStdin,omitempty"`
	AttachStdin  bool                `json:"AttachStdin,omitempty"`
	AttachStdout bool                `json:"AttachStdout,omitempty"`
	AttachStderr bool                `json:"AttachStderr,omitempty"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts,omitempty"`
}

// NetworkingConfig is the per-network attach configuration supplied at create time.
type NetworkingConfig struct {
	EndpointsConfig map[string]*EndpointSettings `json:"EndpointsConfig,omitempty"`
}

// EndpointSettings is one network attachment's desired/observed state.
type EndpointSettings struct {
	NetworkID  string   `json:"NetworkID,omitempty"`
	IPAddress  string   `json:"IPAddress,omitempty"`
	MacAddress string   `json:"MacAddress,omitempty"`
	Aliases    []string `json:"Aliases,omitempty"`
	VsockPort  uint32   `json:"-"`
}

// NetworkSettings is the observed network state reported in inspect responses.
type NetworkSettings struct {
	Networks map[string]*EndpointSettings `json:"Networks,omitempty"`
}

// State is the observed lifecycle state of a container.
type State struct {
	Status     string     `json:"Status"`
	Running    bool       `json:"Running"`
	Paused     bool       `json:"Paused"`
	Restarting bool       `json:"Restarting"`
	OOMKilled  bool       `json:"OOMKilled"`
	Dead       bool       `json:"Dead"`
	Pid        int        `json:"Pid"`
	ExitCode   int        `json:"ExitCode"`
	Error      string     `json:"Error,omitempty"`
	StartedAt  time.Time  `json:"StartedAt"`
	FinishedAt time.Time  `json:"FinishedAt"`
}

// ContainerJSON is the full GET /containers/{id}/json response body.
type ContainerJSON struct {
	ID              string           `json:"Id"`
	Created         string           `json:"Created"`
	Path            string           `json:"Path"`
	Args            []string         `json:"Args"`
	State           *State           `json:"State"`
	Image           string           `json:"Image"`
	Name            string           `json:"Name"`
	RestartCount    int              `json:"RestartCount"`
	Config          *Config          `json:"Config"`
	HostConfig      *HostConfig      `json:"HostConfig"`
	NetworkSettings *NetworkSettings `json:"NetworkSettings"`
}

// ContainerCreateRequest is the POST /containers/create body.
type ContainerCreateRequest struct {
	*Config
	HostConfig       *HostConfig       `json:"HostConfig"`
	NetworkingConfig *NetworkingConfig `json:"NetworkingConfig"`
}

// ContainerCreateResponse is the 201 body returned from create.
type ContainerCreateResponse struct {
	ID       string   `json:"Id"`
	Warnings []string `json:"Warnings"`
}

// ContainerSummary is one entry of GET /containers/json.
type ContainerSummary struct {
	ID      string            `json:"Id"`
	Names   []string          `json:"Names"`
	Image   string            `json:"Image"`
	ImageID string            `json:"ImageID"`
	Command string            `json:"Command"`
	Created int64             `json:"Created"`
	State   string            `json:"State"`
	Status  string            `json:"Status"`
	Labels  map[string]string `json:"Labels"`
	Ports   []Port            `json:"Ports"`
}

// Port is one published/exposed port entry in a container summary.
type Port struct {
	IP          string `json:"IP,omitempty"`
	PrivatePort uint16 `json:"PrivatePort"`
	PublicPort  uint16 `json:"PublicPort,omitempty"`
	Type        string `json:"Type"`
}

// ContainerWaitResponse is the POST /containers/{id}/wait body.
type ContainerWaitResponse struct {
	StatusCode int                    `json:"StatusCode"`
	Error      *ContainerWaitErrorBody `json:"Error,omitempty"`
}

// ContainerWaitErrorBody carries the wait error message when present.
type ContainerWaitErrorBody struct {
	Message string `json:"Message"`
}

// ContainerTopResponse is the GET /containers/{id}/top response body.
type ContainerTopResponse struct {
	Titles    []string   `json:"Titles"`
	Processes [][]string `json:"Processes"`
}

// StatsResponse is the GET /containers/{id}/stats response body: a
// best-effort snapshot, since cgroup telemetry lives inside the VM and
// isn't observable from the host. Metric fields are nulled rather than
// omitted so clients parsing the real wire schema don't break.
type StatsResponse struct {
	Read         string        `json:"read"`
	PidsStats    *PidsStats    `json:"pids_stats"`
	MemoryStats  *MemoryStats  `json:"memory_stats"`
	CPUStats     *CPUStats     `json:"cpu_stats"`
}

// PidsStats is always nil in this daemon's snapshot; the type exists so
// the field's JSON shape matches the real Engine API.
type PidsStats struct {
	Current uint64 `json:"current,omitempty"`
}

// MemoryStats is always nil in this daemon's snapshot.
type MemoryStats struct {
	Usage uint64 `json:"usage,omitempty"`
	Limit uint64 `json:"limit,omitempty"`
}

// CPUStats is always nil in this daemon's snapshot.
type CPUStats struct {
	CPUUsage uint64 `json:"cpu_usage,omitempty"`
}

// ErrorResponse is the standard Docker Engine API error body. Errors holds
// the flattened children of a multi-error tree (errors.Join, multiple %w
// verbs, hashicorp/go-multierror), omitted on the wire for a single error.
type ErrorResponse struct {
	Message string           `json:"message"`
	Errors  []*ErrorResponse `json:"errors,omitempty"`
}
