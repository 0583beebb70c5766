// Package core wires every daemon component into one running process: it
// constructs the State Store, Event Bus, Image Store, Volume Manager,
// Network Controller, Container Manager, and Build Manager, binds the API
// socket, and drives startup recovery and graceful shutdown across all of
// them. It is the thing cmd/arca's entrypoint constructs and runs, and
// nothing else constructs.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apitypes "github.com/arca-project/arca/api/types"

	"github.com/arca-project/arca/api/server"
	"github.com/arca-project/arca/api/server/middleware"
	buildrouter "github.com/arca-project/arca/api/server/router/build"
	containerrouter "github.com/arca-project/arca/api/server/router/container"
	imagerouter "github.com/arca-project/arca/api/server/router/image"
	networkrouter "github.com/arca-project/arca/api/server/router/network"
	systemrouter "github.com/arca-project/arca/api/server/router/system"
	volumerouter "github.com/arca-project/arca/api/server/router/volume"

	"github.com/arca-project/arca/daemon/build"
	"github.com/arca-project/arca/daemon/config"
	"github.com/arca-project/arca/daemon/containers"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/image"
	"github.com/arca-project/arca/daemon/image/puller"
	"github.com/arca-project/arca/daemon/network"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/daemon/volume"

	"github.com/containerd/log"
	"github.com/google/uuid"
)

// NetworkAgentImageRef is the image the Daemon Core boots the network
// agent's managed container from, alongside build.BuildImageRef.
const NetworkAgentImageRef = "arca/network-agent:latest"

// containerResolver is the lazy-indirection that breaks the constructor
// cycle between network.Controller and containers.Manager (the Controller
// needs an AgentLocator/ContainerResolver at construction; both are
// implemented by the Manager, which itself needs the Controller). It is
// constructed empty and its target is set once, right after the Manager
// exists — exactly the sequencing network.NewController's own doc comment
// describes.
type containerResolver struct {
	target *containers.Manager
}

func (r *containerResolver) AgentHandle(ctx context.Context) (runtime.Handle, error) {
	return r.target.AgentHandle(ctx)
}

func (r *containerResolver) Hostname(containerID string) (string, bool) {
	return r.target.Hostname(containerID)
}

func (r *containerResolver) Handle(containerID string) (runtime.Handle, bool) {
	return r.target.Handle(containerID)
}

// Core holds every long-lived component and the HTTP server fronting them.
type Core struct {
	cfg *config.Store

	store    *store.Store
	bus      *events.Bus
	images   *image.Store
	volumes  *volume.Manager
	network  *network.Controller
	manager  *containers.Manager
	build    *build.Manager
	srv      *server.Server
	daemonID string
}

// VersionInfo is re-exported so callers constructing a Core don't need to
// import the system router package just for this one type.
type VersionInfo = systemrouter.VersionInfo

// New wires every component from a resolved configuration. It does not
// bind the socket or start recovering state; call Run for that.
func New(ctx context.Context, cfg *config.Store, adapter runtime.Adapter, info VersionInfo) (*Core, error) {
	c := cfg.Get()

	if err := os.MkdirAll(c.DataRoot, 0o700); err != nil {
		return nil, fmt.Errorf("core: create data root: %w", err)
	}

	id, err := loadOrCreateDaemonID(c.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("core: daemon id: %w", err)
	}

	s, err := store.Open(ctx, filepath.Join(c.DataRoot, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("core: open state store: %w", err)
	}

	bus := events.New()
	images := image.New(s, puller.New(), bus)

	filesDriver := volume.NewFilesDriver(filepath.Join(c.DataRoot, "volumes"))
	blockDriver := volume.NewBlockDriver(volume.UnimplementedBlockVolumeProvisioner{})
	volumes := volume.NewManager(s, bus, filesDriver, blockDriver)

	resolver := &containerResolver{}
	nc := network.NewController(s, adapter, resolver, resolver, bus)

	mgr := containers.NewManager(s, adapter, nc, volumes, bus)
	resolver.target = mgr

	buildMgr := build.NewManager(mgr, adapter)

	srv := server.New(c.SocketPath,
		middleware.NewRequestLoggingMiddleware(),
		middleware.NewVersionMiddleware(info.APIVersion, info.MinAPIVersion),
		middleware.NewAuthMiddleware(),
	)
	srv.Handle(containerrouter.NewRouter(mgr))
	srv.Handle(imagerouter.NewRouter(images))
	srv.Handle(networkrouter.NewRouter(nc))
	srv.Handle(volumerouter.NewRouter(volumes))
	srv.Handle(buildrouter.NewRouter(buildMgr))
	srv.Handle(systemrouter.NewRouter(mgr, images, bus, info, id))

	return &Core{
		cfg:      cfg,
		store:    s,
		bus:      bus,
		images:   images,
		volumes:  volumes,
		network:  nc,
		manager:  mgr,
		build:    buildMgr,
		srv:      srv,
		daemonID: id,
	}, nil
}

// Load recovers every component's state from the store, in the dependency
// order each Load depends on: images and volumes have none of their own
// (a container referencing a missing image or volume is the Container
// Manager's problem to surface, not theirs to wait for), networks must
// exist before containers reattach to them, and containers go last since
// recovery there drives reconnecting to networks and re-subscribing
// restart monitors.
func (c *Core) Load(ctx context.Context) error {
	if err := c.images.Load(ctx); err != nil {
		return fmt.Errorf("core: load images: %w", err)
	}
	if err := c.volumes.Load(ctx); err != nil {
		return fmt.Errorf("core: load volumes: %w", err)
	}
	if err := c.network.Load(ctx); err != nil {
		return fmt.Errorf("core: load networks: %w", err)
	}
	if err := c.manager.Load(ctx); err != nil {
		return fmt.Errorf("core: load containers: %w", err)
	}
	return nil
}

// ensureNetworkAgent creates and starts the managed network-agent
// container if one doesn't already exist, mirroring build.Manager.Ensure's
// shape for the other managed-container role: the network control plane
// needs this container up before any user container can attach to a
// network.
func (c *Core) ensureNetworkAgent(ctx context.Context) error {
	if _, ok := c.manager.FindByRole(containers.AgentRoleValue); ok {
		return nil
	}
	cfg := &apitypes.Config{
		Image:  NetworkAgentImageRef,
		Labels: map[string]string{containers.AgentRoleLabel: containers.AgentRoleValue},
	}
	hostCfg := &apitypes.HostConfig{
		RestartPolicy: apitypes.RestartPolicy{Name: "always"},
	}
	created, err := c.manager.Create(ctx, "arca-network-agent", cfg, hostCfg, nil)
	if err != nil {
		return fmt.Errorf("core: create network agent: %w", err)
	}
	if err := c.manager.Start(ctx, created.ID); err != nil {
		return fmt.Errorf("core: start network agent: %w", err)
	}
	log.G(ctx).WithField("container", created.ID).Info("network agent container started")
	return nil
}

// Run performs crash recovery, ensures the network agent is running, and
// then serves the API socket until ctx is canceled.
func (c *Core) Run(ctx context.Context) error {
	if err := c.Load(ctx); err != nil {
		return err
	}
	if err := c.ensureNetworkAgent(ctx); err != nil {
		return err
	}
	return c.srv.Serve(ctx)
}

// Shutdown stops the API server (within its own deadline) and closes the
// build RPC connection and state store behind it.
func (c *Core) Shutdown(ctx context.Context) error {
	srvErr := c.srv.Shutdown(ctx)
	buildErr := c.build.Shutdown(ctx)
	storeErr := c.store.Close()
	switch {
	case srvErr != nil:
		return srvErr
	case buildErr != nil:
		return buildErr
	default:
		return storeErr
	}
}

// loadOrCreateDaemonID reads the persisted engine ID from dataRoot,
// generating and persisting a new one on first run.
func loadOrCreateDaemonID(dataRoot string) (string, error) {
	path := filepath.Join(dataRoot, "engine-id")
	b, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(b)), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	id := uuid.New().String()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}
