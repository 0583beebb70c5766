package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/network/agentrpc"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/containerd/log"
	"github.com/google/uuid"
	"github.com/moby/locker"
)

// MaxFrameSize is the packet-relay frame buffer size.
const MaxFrameSize = 65536

// ContainerResolver is the small capability interface the Container Manager
// hands to the Network Controller to break the cyclic dependency between
// them: the controller needs each container's hostname and runtime handle
// to push DNS snapshots and open relay sessions, without importing the
// Container Manager itself.
type ContainerResolver interface {
	// Hostname returns the container's configured hostname, or its short ID
	// if none was set.
	Hostname(containerID string) (string, bool)
	// Handle returns the container's current runtime handle, if it has one
	// (i.e. it's running).
	Handle(containerID string) (runtime.Handle, bool)
}

// AgentLocator resolves the control-plane agent container's current runtime
// handle. Implemented by the Container Manager (the agent is itself a
// managed container).
type AgentLocator interface {
	AgentHandle(ctx context.Context) (runtime.Handle, error)
}

// Controller is the Network Controller: it owns logical network records,
// IP allocation, and per-container attachment state, and drives the
// control-plane agent to realize them.
type Controller struct {
	store    *store.Store
	adapter  runtime.Adapter
	agent    AgentLocator
	resolver ContainerResolver
	events   *events.Bus
	locker   *locker.Locker

	mu       sync.Mutex
	networks map[string]*Network

	relayMu sync.Mutex
	relays  map[string]context.CancelFunc // key: networkID+"/"+containerID
}

// NewController creates a Network Controller. resolver and agent are wired
// in by the Daemon Core after the Container Manager exists, since both
// depend on each other only through these narrow interfaces.
func NewController(s *store.Store, adapter runtime.Adapter, agent AgentLocator, resolver ContainerResolver, bus *events.Bus) *Controller {
	return &Controller{
		store:    s,
		adapter:  adapter,
		agent:    agent,
		resolver: resolver,
		events:   bus,
		locker:   locker.New(),
		networks: map[string]*Network{},
		relays:   map[string]context.CancelFunc{},
	}
}

// Load restores all network records and their IPAM state from the State
// Store; called once during Daemon Core startup (mirrors crash recovery's
// "recreate container object from persisted state" builder).
func (c *Controller) Load(ctx context.Context) error {
	type persistedNetwork struct {
		ID, Name, Driver, Subnet, Gateway string
		Labels                            map[string]string
	}
	var records []persistedNetwork
	err := c.store.View(func(tx *store.Txn) error {
		return tx.Scan(store.BucketNetworks, "", func(key string, value []byte) bool {
			var p persistedNetwork
			if jsonErr := json.Unmarshal(value, &p); jsonErr == nil {
				records = append(records, p)
			}
			return true
		})
	})
	if err != nil {
		return store.Wrap(err)
	}

	for _, p := range records {
		var allocated []string
		err := c.store.View(func(tx *store.Txn) error {
			return tx.Scan(store.BucketIPAM, p.ID+"/", func(key string, value []byte) bool {
				allocated = append(allocated, string(value))
				return true
			})
		})
		if err != nil {
			return store.Wrap(err)
		}
		nw, err := newNetworkRecord(p.ID, p.Name, p.Driver, p.Subnet, p.Gateway, p.Labels, allocated)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.networks[p.ID] = nw
		c.mu.Unlock()
	}
	return nil
}

type persistedNetworkRecord struct {
	ID, Name, Driver, Subnet, Gateway string
	Labels                            map[string]string
}

func (c *Controller) persistNetwork(nw *Network) error {
	data, err := json.Marshal(persistedNetworkRecord{nw.ID, nw.Name, nw.Driver, nw.Subnet, nw.Gateway, nw.Labels})
	if err != nil {
		return err
	}
	return store.Wrap(c.store.Update(func(tx *store.Txn) error {
		return tx.Put(store.BucketNetworks, nw.ID, data)
	}))
}

// CreateNetwork realizes a new logical network: asks the control-plane
// agent to create a bridge with a gateway IP on subnet, then persists the
// record.
func (c *Controller) CreateNetwork(ctx context.Context, name, driver, subnet, gateway string, labels map[string]string) (*Network, error) {
	c.mu.Lock()
	for _, nw := range c.networks {
		if nw.Name == name {
			c.mu.Unlock()
			return nil, errdefs.Conflict(fmt.Errorf("network with name %q already exists", name))
		}
	}
	c.mu.Unlock()

	id := uuid.New().String()[:32]

	if driver == "bridge-like" {
		ac, err := c.dialAgent(ctx)
		if err != nil {
			return nil, err
		}
		defer ac.Close()
		if _, err := ac.CreateBridge(ctx, agentrpc.CreateBridgeParams{NetworkID: id, Subnet: subnet, Gateway: gateway}); err != nil {
			return nil, errdefs.System(fmt.Errorf("create bridge: %w", err))
		}
	}

	nw, err := newNetworkRecord(id, name, driver, subnet, gateway, labels, nil)
	if err != nil {
		return nil, errdefs.InvalidParameter(err)
	}
	if err := c.persistNetwork(nw); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.networks[id] = nw
	c.mu.Unlock()

	c.events.Log(events.TypeNetwork, "create", apitypes.EventActor{ID: id, Attributes: map[string]string{"name": name}})
	return nw, nil
}

// Get returns a network by ID.
func (c *Controller) Get(id string) (*Network, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nw, ok := c.networks[id]
	return nw, ok
}

// GetByName returns a network by name.
func (c *Controller) GetByName(name string) (*Network, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, nw := range c.networks {
		if nw.Name == name {
			return nw, true
		}
	}
	return nil, false
}

// List returns all networks.
func (c *Controller) List() []*Network {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Network, 0, len(c.networks))
	for _, nw := range c.networks {
		out = append(out, nw)
	}
	return out
}

// RemoveNetwork deletes a network. Refuses if containers remain attached.
func (c *Controller) RemoveNetwork(ctx context.Context, id string) error {
	nw, ok := c.Get(id)
	if !ok {
		return errdefs.NotFound(fmt.Errorf("network %s not found", id))
	}
	if len(nw.Containers()) > 0 {
		return errdefs.Conflict(fmt.Errorf("network %s has active endpoints", id))
	}

	if nw.Driver == "bridge-like" {
		ac, err := c.dialAgent(ctx)
		if err == nil {
			_ = ac.DeleteBridge(ctx, agentrpc.DeleteBridgeParams{NetworkID: id})
			ac.Close()
		}
	}

	if err := store.Wrap(c.store.Update(func(tx *store.Txn) error {
		return tx.Delete(store.BucketNetworks, id)
	})); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.networks, id)
	c.mu.Unlock()

	c.events.Log(events.TypeNetwork, "destroy", apitypes.EventActor{ID: id})
	return nil
}

func (c *Controller) dialAgent(ctx context.Context) (*agentrpc.AgentClient, error) {
	h, err := c.agent.AgentHandle(ctx)
	if err != nil {
		return nil, errdefs.System(fmt.Errorf("network agent unavailable: %w", err))
	}
	conn, err := c.adapter.DialVsock(ctx, h, agentPort)
	if err != nil {
		return nil, runtime.AsDomainError(err)
	}
	return agentrpc.NewAgentClient(agentrpc.NewClient(conn)), nil
}

// agentPort is the fixed vsock port the control-plane agent listens on for
// its bridge-management RPC surface.
const agentPort = 9000

// dnsPort is the fixed vsock port each container's embedded resolver
// listens on for snapshot pushes (itself proxying to 127.0.0.11:53 inside
// the guest).
const dnsPort = 9001

// Connect attaches a container to a network: reserves an IP, opens a bridge
// port via the agent, and establishes the packet relay.
func (c *Controller) Connect(ctx context.Context, networkID, containerID, hint, mac string, aliases []string) (*AttachmentInfo, error) {
	nw, ok := c.Get(networkID)
	if !ok {
		return nil, errdefs.NotFound(fmt.Errorf("network %s not found", networkID))
	}

	ip, err := nw.pool.Reserve(hint)
	if err != nil {
		return nil, errdefs.System(fmt.Errorf("reserve address on %s: %w", nw.Name, err))
	}
	if err := c.persistAllocation(networkID, ip); err != nil {
		nw.pool.Release(ip)
		return nil, err
	}

	vsockPort := dynamicPortFor(containerID)

	info := &AttachmentInfo{ContainerID: containerID, IPv4: ip, MAC: mac, Aliases: aliases, VsockPort: vsockPort}

	if nw.Driver == "bridge-like" {
		ac, err := c.dialAgent(ctx)
		if err != nil {
			nw.pool.Release(ip)
			c.releaseAllocation(networkID, ip)
			return nil, err
		}
		res, err := ac.AttachContainer(ctx, agentrpc.AttachContainerParams{
			NetworkID: networkID, ContainerID: containerID, IPv4: ip, MAC: mac, VsockPort: vsockPort,
		})
		ac.Close()
		if err != nil {
			nw.pool.Release(ip)
			c.releaseAllocation(networkID, ip)
			return nil, errdefs.System(fmt.Errorf("attach-container: %w", err))
		}
		info.PortName = res.PortName

		if err := c.startRelay(ctx, nw, containerID, vsockPort); err != nil {
			_ = c.detachFromAgent(ctx, networkID, containerID)
			nw.pool.Release(ip)
			c.releaseAllocation(networkID, ip)
			return nil, err
		}
	}

	nw.mu.Lock()
	nw.containers[containerID] = info
	nw.mu.Unlock()

	c.events.Log(events.TypeNetwork, "connect", apitypes.EventActor{
		ID: networkID, Attributes: map[string]string{"container": containerID},
	})

	c.propagateDNS(ctx, nw)
	return info, nil
}

// dynamicPortFor derives a stable per-container vsock port from its ID so
// repeated connects of the same container reuse the same port deterministically.
func dynamicPortFor(containerID string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(containerID); i++ {
		h ^= uint32(containerID[i])
		h *= 16777619
	}
	return 20000 + (h % 10000)
}

// shortID truncates a container ID to its conventional 12-character display
// form, or returns it unchanged if it's already shorter.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func (c *Controller) persistAllocation(networkID, ip string) error {
	return store.Wrap(c.store.Update(func(tx *store.Txn) error {
		return tx.Put(store.BucketIPAM, networkID+"/"+ip, []byte(ip))
	}))
}

func (c *Controller) releaseAllocation(networkID, ip string) {
	_ = c.store.Update(func(tx *store.Txn) error {
		return tx.Delete(store.BucketIPAM, networkID+"/"+ip)
	})
}

func (c *Controller) detachFromAgent(ctx context.Context, networkID, containerID string) error {
	ac, err := c.dialAgent(ctx)
	if err != nil {
		return err
	}
	defer ac.Close()
	return ac.DetachContainer(ctx, agentrpc.DetachContainerParams{NetworkID: networkID, ContainerID: containerID})
}

// Disconnect detaches a container from a network, tearing down its relay
// session and releasing its IP.
func (c *Controller) Disconnect(ctx context.Context, networkID, containerID string) error {
	nw, ok := c.Get(networkID)
	if !ok {
		return errdefs.NotFound(fmt.Errorf("network %s not found", networkID))
	}

	info, attached := nw.Attachment(containerID)
	if !attached {
		return errdefs.NotFound(fmt.Errorf("container %s not attached to %s", containerID, networkID))
	}

	c.stopRelay(networkID, containerID)

	if nw.Driver == "bridge-like" {
		if err := c.detachFromAgent(ctx, networkID, containerID); err != nil {
			log.G(ctx).WithError(err).Warn("detach-container RPC failed, proceeding with local teardown")
		}
	}

	nw.pool.Release(info.IPv4)
	c.releaseAllocation(networkID, info.IPv4)

	nw.mu.Lock()
	delete(nw.containers, containerID)
	nw.mu.Unlock()

	c.events.Log(events.TypeNetwork, "disconnect", apitypes.EventActor{
		ID: networkID, Attributes: map[string]string{"container": containerID},
	})

	c.propagateDNS(ctx, nw)
	return nil
}

// startRelay brokers raw Ethernet frames between the container's TAP vsock
// port and the agent's corresponding bridge-port vsock stream. Either
// direction finishing (EOF or error) cancels the other.
func (c *Controller) startRelay(ctx context.Context, nw *Network, containerID string, vsockPort uint32) error {
	h, ok := c.resolver.Handle(containerID)
	if !ok {
		return errdefs.System(fmt.Errorf("no runtime handle for container %s", containerID))
	}
	agentHandle, err := c.agent.AgentHandle(ctx)
	if err != nil {
		return errdefs.System(fmt.Errorf("network agent unavailable: %w", err))
	}

	ctrConn, err := c.adapter.DialVsock(ctx, h, vsockPort)
	if err != nil {
		return runtime.AsDomainError(err)
	}
	agentConn, err := c.adapter.DialVsock(ctx, agentHandle, vsockPort)
	if err != nil {
		ctrConn.Close()
		return runtime.AsDomainError(err)
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	key := nw.ID + "/" + containerID
	c.relayMu.Lock()
	c.relays[key] = cancel
	c.relayMu.Unlock()

	go func() {
		defer ctrConn.Close()
		defer agentConn.Close()
		done := make(chan struct{}, 2)
		go func() { relayCopy(ctrConn, agentConn); done <- struct{}{} }()
		go func() { relayCopy(agentConn, ctrConn); done <- struct{}{} }()
		select {
		case <-done:
		case <-relayCtx.Done():
		}
		cancel()
	}()

	return nil
}

func relayCopy(dst io.Writer, src io.Reader) {
	buf := make([]byte, MaxFrameSize)
	_, _ = io.CopyBuffer(dst, src, buf)
}

// stopRelay cancels a running relay session, if any. Cooperative: both
// directions exit on the next frame boundary once the underlying
// connections are closed by the cancellation.
func (c *Controller) stopRelay(networkID, containerID string) {
	key := networkID + "/" + containerID
	c.relayMu.Lock()
	cancel, ok := c.relays[key]
	delete(c.relays, key)
	c.relayMu.Unlock()
	if ok {
		cancel()
	}
}

// propagateDNS pushes fresh snapshots to every container affected by a
// change on nw: nw's own members, plus (transitively, bounded by each
// member's own attachment count) any container reachable because a member
// is multi-homed. This realizes symmetric cross-network propagation while
// staying O(|attachments|^2) per event: the outer loop is nw's members,
// the inner loop is each member's own attachment set.
func (c *Controller) propagateDNS(ctx context.Context, nw *Network) {
	affected := map[string]bool{}
	for _, id := range nw.Containers() {
		affected[id] = true
	}
	for id := range affected {
		// also refresh any container sharing another network with id, so a
		// multi-homed member's other networks see the change too.
		for _, other := range c.networksOf(id) {
			for _, peer := range other.Containers() {
				affected[peer] = true
			}
		}
	}

	for id := range affected {
		c.pushDNSFor(ctx, id)
	}
}

// networksOf returns every network containerID is currently attached to.
func (c *Controller) networksOf(containerID string) []*Network {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Network
	for _, nw := range c.networks {
		if _, ok := nw.Attachment(containerID); ok {
			out = append(out, nw)
		}
	}
	return out
}

// pushDNSFor serializes per-container DNS pushes through the locker so the
// last write wins, builds the full snapshot, and best-effort delivers it;
// failures never block lifecycle.
func (c *Controller) pushDNSFor(ctx context.Context, containerID string) {
	c.locker.Lock(containerID)
	defer c.locker.Unlock(containerID)

	h, ok := c.resolver.Handle(containerID)
	if !ok {
		return // not running; nothing to push to
	}

	records := c.buildSnapshot(containerID)

	dialCtx, cancel := context.WithTimeout(ctx, agentrpc.DefaultTimeout)
	defer cancel()
	conn, err := c.adapter.DialVsock(dialCtx, h, dnsPort)
	if err != nil {
		log.G(ctx).WithError(err).WithField("container", containerID).Debug("dns push: dial failed, skipping (best-effort)")
		return
	}
	defer conn.Close()

	dc := agentrpc.NewDNSClient(agentrpc.NewClient(conn))
	if err := dc.PushSnapshot(dialCtx, records); err != nil {
		log.G(ctx).WithError(err).WithField("container", containerID).Debug("dns push failed (best-effort)")
	}
}

// buildSnapshot computes the full name -> IP table container C should see:
// for every network C is on, every other container on that network under
// its hostname and aliases, resolved to ALL of that peer's IPs across every
// network it is attached to (not just the shared one) — this is what
// realizes "adds C's IPs on other networks to M's DNS" symmetrically.
func (c *Controller) buildSnapshot(containerID string) []agentrpc.DNSRecord {
	var records []agentrpc.DNSRecord
	seen := map[string]bool{}

	for _, nw := range c.networksOf(containerID) {
		for _, peerID := range nw.Containers() {
			if peerID == containerID {
				continue
			}
			hostname, _ := c.resolver.Hostname(peerID)
			names := []string{hostname, shortID(peerID)}
			if a, ok := nw.Attachment(peerID); ok {
				names = append(names, a.Aliases...)
			}
			for _, peerNw := range c.networksOf(peerID) {
				a, ok := peerNw.Attachment(peerID)
				if !ok {
					continue
				}
				for _, name := range names {
					if name == "" {
						continue
					}
					key := name + "/" + a.IPv4
					if seen[key] {
						continue
					}
					seen[key] = true
					records = append(records, agentrpc.DNSRecord{Name: name, IP: a.IPv4})
				}
			}
		}
	}
	return records
}

// Health reports the control-plane agent's status.
func (c *Controller) Health(ctx context.Context) (agentrpc.HealthResult, error) {
	ac, err := c.dialAgent(ctx)
	if err != nil {
		return agentrpc.HealthResult{Healthy: false}, err
	}
	defer ac.Close()
	hctx, cancel := context.WithTimeout(ctx, agentrpc.DefaultTimeout)
	defer cancel()
	return ac.Health(hctx)
}

