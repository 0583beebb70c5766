// Package build implements the Build Manager: it runs a build daemon as a
// managed container (role label), proxies the
// solve/status/listWorkers/prune/diskUsage control RPC to it over vsock
// using the real BuildKit control client, and reconnects with exponential
// backoff when the connection drops. The daemon-side build solver itself
// is out of scope — this package only manages the container's lifecycle
// and forwards calls to whatever BuildKit-compatible server runs inside it.
package build

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/containers"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/containerd/log"
	buildkit "github.com/moby/buildkit/client"
)

// rpcPort is the fixed vsock port the build daemon's BuildKit-compatible
// control API listens on, alongside network's agentPort/dnsPort
// conventions.
const rpcPort = 9002

// BuildImageRef is the image the Build Manager creates its managed
// container from. It is a fixed, well-known reference rather than a
// user-supplied one, same as the network agent's image is implicit in how
// the Daemon Core boots it.
const BuildImageRef = "arca/build-daemon:latest"

// ContainerLocator is the narrow capability interface the Build Manager
// needs from the Container Manager: find the managed build-daemon
// container (if any), create and start one, and dial its vsock control
// port. Mirrors daemon/network's AgentLocator/ContainerResolver split,
// even though (unlike that pair) there's no cyclic-import reason to keep
// it this narrow — it just keeps the dependency honest about what this
// package actually calls.
type ContainerLocator interface {
	FindByRole(role string) (*container.Container, bool)
	Create(ctx context.Context, name string, cfg *apitypes.Config, hostCfg *apitypes.HostConfig, netCfg *apitypes.NetworkingConfig) (*container.Container, error)
	Start(ctx context.Context, id string) error
	BuildDaemonHandle(ctx context.Context) (runtime.Handle, error)
}

// backoff schedule: 9 attempts, base 0.5s, doubling, cap
// 16s, no jitter (unlike the container restart-policy backoff, which
// jitters — this one is a fixed client reconnect schedule, not a
// user-facing restart policy).
const (
	maxAttempts = 9
	baseDelay   = 500 * time.Millisecond
	maxDelay    = 16 * time.Second
)

// delay computes the backoff before reconnect attempt number attempt
// (0-indexed).
func delay(attempt int) time.Duration {
	d := baseDelay
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// Manager is the Build Manager.
type Manager struct {
	containers ContainerLocator
	adapter    runtime.Adapter
	sleep      func(time.Duration)

	mu     sync.Mutex
	client *buildkit.Client

	jobsMu sync.Mutex
	jobs   map[string]*job
}

// Option customizes a Manager at construction.
type Option func(*Manager)

// WithSleeper overrides the delay function used between reconnect attempts,
// so callers outside this package (tests in particular) can skip the real
// backoff wait without reaching into an unexported field.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// NewManager wires a Build Manager. adapter is used to dial the managed
// container's vsock control port once ContainerLocator resolves its
// runtime handle.
func NewManager(locator ContainerLocator, adapter runtime.Adapter, opts ...Option) *Manager {
	m := &Manager{
		containers: locator,
		adapter:    adapter,
		sleep:      time.Sleep,
		jobs:       map[string]*job{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure makes sure the managed build-daemon container exists and is
// started, creating it on first use. It does not establish the RPC
// connection; that happens lazily on first call, same as the network
// agent's connection is opened on first DNS push rather than at boot.
func (m *Manager) Ensure(ctx context.Context) (*container.Container, error) {
	if c, ok := m.containers.FindByRole(containers.BuildRoleValue); ok {
		return c, nil
	}
	cfg := &apitypes.Config{
		Image:  BuildImageRef,
		Labels: map[string]string{containers.AgentRoleLabel: containers.BuildRoleValue},
	}
	hostCfg := &apitypes.HostConfig{
		RestartPolicy: apitypes.RestartPolicy{Name: "always"},
	}
	c, err := m.containers.Create(ctx, "arca-build", cfg, hostCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("build: create managed container: %w", err)
	}
	if err := m.containers.Start(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("build: start managed container: %w", err)
	}
	log.G(ctx).WithField("container", c.ID).Info("build daemon container started")
	return c, nil
}

// connect returns the current RPC client, dialing (and retrying with
// backoff) if there isn't one yet.
func (m *Manager) connect(ctx context.Context) (*buildkit.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			m.sleep(delay(attempt - 1))
		}
		cl, err := m.dial(ctx)
		if err == nil {
			m.client = cl
			return cl, nil
		}
		lastErr = err
		log.G(ctx).WithError(err).WithField("attempt", attempt+1).Warn("build daemon dial failed, retrying")
	}
	return nil, fmt.Errorf("build: dial failed after %d attempts: %w", maxAttempts, lastErr)
}

func (m *Manager) dial(ctx context.Context) (*buildkit.Client, error) {
	h, err := m.containers.BuildDaemonHandle(ctx)
	if err != nil {
		return nil, err
	}
	return buildkit.New(ctx, "vsock", buildkit.WithContextDialer(func(dialCtx context.Context, _ string) (net.Conn, error) {
		rwc, err := m.adapter.DialVsock(dialCtx, h, rpcPort)
		if err != nil {
			return nil, err
		}
		return vsockConn{rwc}, nil
	}))
}

// Shutdown closes the RPC connection but leaves the managed container
// running under its "always" restart policy — the build daemon survives
// an Arca restart, the next connect() just re-dials it.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

// reconnect drops the cached client so the next call re-dials from
// scratch. Called when an RPC fails in a way that suggests the
// connection, not just the call, is bad.
func (m *Manager) reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}
