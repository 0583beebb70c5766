// Package network implements the Network Controller: logical networks
// realized by a control-plane agent container, IP allocation via
// daemon/network/ipam, per-attachment packet relay sessions, and the
// embedded in-container DNS snapshot pushes.
package network

import (
	"fmt"
	"sync"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/network/ipam"
)

// Network is one logical network record.
type Network struct {
	ID      string
	Name    string
	Driver  string // "bridge-like" | "host-like" | "none"
	Subnet  string
	Gateway string
	Labels  map[string]string

	pool *ipam.Pool

	mu         sync.Mutex
	containers map[string]*AttachmentInfo // containerID -> attachment
}

// AttachmentInfo is what the controller tracks per container on a network.
type AttachmentInfo struct {
	ContainerID string
	IPv4        string
	MAC         string
	Aliases     []string
	VsockPort   uint32
	PortName    string // agent's name for the bridge port, for detach
}

func newNetworkRecord(id, name, driver, subnet, gateway string, labels map[string]string, allocated []string) (*Network, error) {
	pool, err := ipam.NewPool(subnet, gateway, allocated)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", name, err)
	}
	if labels == nil {
		labels = map[string]string{}
	}
	return &Network{
		ID: id, Name: name, Driver: driver, Subnet: subnet, Gateway: gateway, Labels: labels,
		pool:       pool,
		containers: map[string]*AttachmentInfo{},
	}, nil
}

// Containers returns the IDs of containers currently attached, sorted is
// not guaranteed; callers needing determinism should sort explicitly.
func (n *Network) Containers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.containers))
	for id := range n.containers {
		out = append(out, id)
	}
	return out
}

// Attachment returns the attachment info for containerID, if attached.
func (n *Network) Attachment(containerID string) (*AttachmentInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	a, ok := n.containers[containerID]
	return a, ok
}

// ToResource converts n to its GET /networks wire shape.
func (n *Network) ToResource() *apitypes.NetworkResource {
	n.mu.Lock()
	endpoints := make(map[string]apitypes.EndpointResource, len(n.containers))
	for id, a := range n.containers {
		endpoints[id] = apitypes.EndpointResource{
			Name:        shortID(id),
			EndpointID:  id,
			MacAddress:  a.MAC,
			IPv4Address: a.IPv4,
		}
	}
	n.mu.Unlock()

	labels := n.Labels
	if labels == nil {
		labels = map[string]string{}
	}

	return &apitypes.NetworkResource{
		ID:     n.ID,
		Name:   n.Name,
		Driver: n.Driver,
		IPAM: apitypes.IPAM{
			Driver: "default",
			Config: []apitypes.IPAMConfig{{Subnet: n.Subnet, Gateway: n.Gateway}},
		},
		Containers: endpoints,
		Labels:     labels,
	}
}
