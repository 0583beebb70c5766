// Package containers implements the Container Manager: the
// create/start/stop/kill/pause/remove state machine, Monitor tasks, restart
// policy integration, crash recovery, and exec. It is the sole mutator of
// daemon/container.Container records and implements the narrow
// capability interfaces daemon/network.Controller needs
// (ContainerResolver, AgentLocator) to break their cyclic dependency.
package containers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/network"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/daemon/volume"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/google/uuid"
	"github.com/moby/locker"
)

// AgentRoleLabel marks the one container that hosts the network
// control-plane agent. The Daemon Core creates it with this label before
// any user container is started.
const AgentRoleLabel = "arca.role"

// AgentRoleValue is AgentRoleLabel's value for the network agent container.
const AgentRoleValue = "network-agent"

// BuildRoleValue is AgentRoleLabel's value for the managed build-daemon
// container. The Build Manager creates it lazily on first use, same as
// the Daemon Core creates the network agent up front.
const BuildRoleValue = "build-daemon"

// Manager is the Container Manager.
type Manager struct {
	store    *store.Store
	adapter  runtime.Adapter
	registry *runtime.Registry
	network  *network.Controller
	volumes  *volume.Manager
	events   *events.Bus
	locker   *locker.Locker

	mu         sync.RWMutex
	containers map[string]*container.Container // id -> record
	names      map[string]string               // name -> id

	monitorMu sync.Mutex
	monitors  map[string]chan struct{} // id -> stop signal for the active Monitor task

	execMu sync.Mutex
	execs  map[string]*execRecord

	logMu sync.Mutex
	logs  map[string]*containerLog
}

// NewManager creates a Container Manager. nc must already exist; the
// Controller reaches back into this Manager only through its narrow
// ContainerResolver/AgentLocator interfaces, which the Daemon Core points
// at this Manager once it exists. volumes may be nil, in which case
// named-volume mounts are refused at Start rather than resolved.
func NewManager(s *store.Store, adapter runtime.Adapter, nc *network.Controller, volumes *volume.Manager, bus *events.Bus) *Manager {
	return &Manager{
		store:      s,
		adapter:    adapter,
		registry:   runtime.NewRegistry(),
		network:    nc,
		volumes:    volumes,
		events:     bus,
		locker:     locker.New(),
		containers: map[string]*container.Container{},
		names:      map[string]string{},
		monitors:   map[string]chan struct{}{},
		execs:      map[string]*execRecord{},
		logs:       map[string]*containerLog{},
	}
}

// newContainerID mints a 64-hex-character ID in Docker's conventional shape.
func newContainerID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "") + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Create resolves naming, allocates a Container record with status=created,
// and persists it. It never starts the container.
func (m *Manager) Create(ctx context.Context, name string, cfg *apitypes.Config, hostCfg *apitypes.HostConfig, netCfg *apitypes.NetworkingConfig) (*container.Container, error) {
	if hostCfg == nil {
		hostCfg = &apitypes.HostConfig{}
	}
	id := newContainerID()

	names := []string{}
	if name != "" {
		name = "/" + strings.TrimPrefix(name, "/")
		m.mu.Lock()
		if _, taken := m.names[name]; taken {
			m.mu.Unlock()
			return nil, errdefs.Conflict(fmt.Errorf("container name %q is already in use", name))
		}
		m.mu.Unlock()
		names = append(names, name)
	} else {
		names = append(names, "/"+id[:12])
	}

	c := &container.Container{
		ID:          id,
		Names:       names,
		ImageRef:    cfg.Image,
		Config:      cfg,
		HostConfig:  hostCfg,
		Attachments: map[string]*container.Attachment{},
		State:       container.State{Status: container.StatusCreated},
	}

	if netCfg != nil && len(netCfg.EndpointsConfig) > 0 {
		order := make([]string, 0, len(netCfg.EndpointsConfig))
		for netID := range netCfg.EndpointsConfig {
			order = append(order, netID)
		}
		sortStrings(order) // EndpointsConfig is a JSON map; sort for a deterministic attach order
		c.NetworkOrder = order
		for netID, ep := range netCfg.EndpointsConfig {
			if ep == nil {
				continue
			}
			c.Attachments[netID] = &container.Attachment{
				NetworkID: netID, IPv4: ep.IPAddress, MAC: ep.MacAddress, Aliases: ep.Aliases,
			}
		}
	}

	if m.volumes != nil {
		for i, b := range hostCfg.Mounts {
			if !b.IsVolume() {
				continue
			}
			vol, err := m.volumes.GetOrCreate(ctx, b.Source)
			if err != nil {
				return nil, err
			}
			hostCfg.Mounts[i].Source = vol.Name
			if err := m.volumes.Retain(vol.Name); err != nil {
				return nil, err
			}
		}
	}

	if err := m.persist(c); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.containers[id] = c
	m.names[names[0]] = id
	m.mu.Unlock()

	m.events.Log(events.TypeContainer, "create", m.actor(c))
	return c, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (m *Manager) actor(c *container.Container) apitypes.EventActor {
	return apitypes.EventActor{
		ID: c.ID,
		Attributes: map[string]string{
			"name":  strings.TrimPrefix(c.DisplayName(), "/"),
			"image": c.ImageRef,
		},
	}
}

func (m *Manager) persist(c *container.Container) error {
	data, err := c.Marshal()
	if err != nil {
		return errdefs.System(fmt.Errorf("container: encode %s: %w", c.ID, err))
	}
	return store.Wrap(m.store.Update(func(tx *store.Txn) error {
		return tx.Put(store.BucketContainers, c.ID, data)
	}))
}

// Get returns a container by ID or unambiguous ID prefix.
func (m *Manager) Get(id string) (*container.Container, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.containers[id]; ok {
		return c, true
	}
	var match *container.Container
	for cid, c := range m.containers {
		if strings.HasPrefix(cid, id) {
			if match != nil {
				return nil, false // ambiguous prefix
			}
			match = c
		}
	}
	return match, match != nil
}

// GetByName resolves a container by its registered name.
func (m *Manager) GetByName(name string) (*container.Container, bool) {
	name = "/" + strings.TrimPrefix(name, "/")
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.names[name]
	if !ok {
		return nil, false
	}
	c, ok := m.containers[id]
	return c, ok
}

// Resolve looks a container up by ID, ID prefix, or name.
func (m *Manager) Resolve(idOrName string) (*container.Container, bool) {
	if c, ok := m.GetByName(idOrName); ok {
		return c, ok
	}
	return m.Get(idOrName)
}

// List returns all containers currently known.
func (m *Manager) List() []*container.Container {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*container.Container, 0, len(m.containers))
	for _, c := range m.containers {
		out = append(out, c)
	}
	return out
}

// AgentHandle implements network.AgentLocator: it finds the one running
// container labeled as the network agent and returns its runtime handle.
func (m *Manager) AgentHandle(ctx context.Context) (runtime.Handle, error) {
	return m.handleForRole(AgentRoleValue, "network agent")
}

// BuildDaemonHandle implements build.ContainerLocator: it finds the one
// running container labeled as the build daemon and returns its runtime
// handle.
func (m *Manager) BuildDaemonHandle(ctx context.Context) (runtime.Handle, error) {
	return m.handleForRole(BuildRoleValue, "build daemon")
}

// handleForRole finds the one container carrying AgentRoleLabel=role and
// returns its runtime handle, or an Unavailable error naming what it
// couldn't find, using descr in the error message.
func (m *Manager) handleForRole(role, descr string) (runtime.Handle, error) {
	m.mu.RLock()
	var id string
	for cid, c := range m.containers {
		if c.Config != nil && c.Config.Labels[AgentRoleLabel] == role {
			id = cid
			break
		}
	}
	m.mu.RUnlock()
	if id == "" {
		return nil, errdefs.Unavailable(fmt.Errorf("%s container not found", descr))
	}
	h, ok := m.registry.Handle(id)
	if !ok {
		return nil, errdefs.Unavailable(fmt.Errorf("%s %s is not running", descr, id))
	}
	return h, nil
}

// FindByRole returns the container currently carrying
// AgentRoleLabel=role, if any. Used by the Build Manager to check whether
// its managed container already exists before creating a new one.
func (m *Manager) FindByRole(role string) (*container.Container, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.containers {
		if c.Config != nil && c.Config.Labels[AgentRoleLabel] == role {
			return c, true
		}
	}
	return nil, false
}

// Hostname implements network.ContainerResolver.
func (m *Manager) Hostname(containerID string) (string, bool) {
	c, ok := m.Get(containerID)
	if !ok {
		return "", false
	}
	if c.Config != nil && c.Config.Hostname != "" {
		return c.Config.Hostname, true
	}
	if len(containerID) > 12 {
		return containerID[:12], true
	}
	return containerID, true
}

// Handle implements network.ContainerResolver.
func (m *Manager) Handle(containerID string) (runtime.Handle, bool) {
	return m.registry.Handle(containerID)
}

// unmarshalRecord is used by Load (recovery.go) to decode a persisted record.
func unmarshalRecord(data []byte) (*container.Container, error) {
	return container.Unmarshal(data)
}
