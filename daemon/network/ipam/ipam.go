// Package ipam implements the per-network IP allocator: reserve/release/
// allocations, backed by a free-address bitmap rebuilt from the State
// Store at load (persistence is handled by the caller,
// daemon/network.Controller, which writes through to the store before
// returning from Reserve/Release — this package is the pure in-memory
// allocation algorithm plus the Exhausted error).
package ipam

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrExhausted is returned when a subnet has no free host addresses left.
var ErrExhausted = errors.New("ipam: address pool exhausted")

// Pool is a per-network free-address allocator scoped to one subnet. Gateway
// and broadcast addresses are reserved at construction and never returned.
type Pool struct {
	mu      sync.Mutex
	subnet  *net.IPNet
	gateway uint32
	base    uint32
	size    uint32
	used    map[uint32]bool // offset-from-base -> reserved
}

// NewPool creates a Pool for subnet with gateway reserved immediately.
// allocated is the set of addresses already known-reserved (e.g. restored
// from the State Store); it includes the gateway.
func NewPool(subnetCIDR, gatewayIP string, allocated []string) (*Pool, error) {
	_, subnet, err := net.ParseCIDR(subnetCIDR)
	if err != nil {
		return nil, fmt.Errorf("ipam: parse subnet %q: %w", subnetCIDR, err)
	}
	gw := net.ParseIP(gatewayIP)
	if gw == nil {
		return nil, fmt.Errorf("ipam: invalid gateway %q", gatewayIP)
	}
	if !subnet.Contains(gw) {
		return nil, fmt.Errorf("ipam: gateway %s not in subnet %s", gatewayIP, subnetCIDR)
	}

	ones, bits := subnet.Mask.Size()
	size := uint32(1) << uint(bits-ones)

	p := &Pool{
		subnet:  subnet,
		gateway: ipToUint32(gw),
		base:    ipToUint32(subnet.IP),
		size:    size,
		used:    map[uint32]bool{},
	}
	p.used[p.gateway-p.base] = true
	for _, a := range allocated {
		ip := net.ParseIP(a)
		if ip == nil || !subnet.Contains(ip) {
			continue
		}
		p.used[ipToUint32(ip)-p.base] = true
	}
	return p, nil
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}

func uint32ToIP(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// networkAddr and broadcastAddr are reserved implicitly by never being
// offered: offset 0 is the network address, size-1 is the broadcast
// address, for subnets with more than 2 addresses (i.e. not /31 or /32).
func (p *Pool) reservedByDefault(offset uint32) bool {
	if p.size <= 2 {
		return false
	}
	return offset == 0 || offset == p.size-1
}

// Reserve allocates an address. If hint is non-empty and falls within the
// subnet and is free, it is used; otherwise the lowest free host address is
// returned deterministically.
func (p *Pool) Reserve(hint string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if hint != "" {
		ip := net.ParseIP(hint)
		if ip != nil && p.subnet.Contains(ip) {
			off := ipToUint32(ip) - p.base
			if !p.reservedByDefault(off) && !p.used[off] {
				p.used[off] = true
				return ip.String(), nil
			}
		}
	}

	for off := uint32(0); off < p.size; off++ {
		if p.reservedByDefault(off) || p.used[off] {
			continue
		}
		p.used[off] = true
		return uint32ToIP(p.base + off).String(), nil
	}
	return "", ErrExhausted
}

// Release frees ipv4. Idempotent: releasing an address that isn't reserved
// (or doesn't belong to this subnet) is a no-op.
func (p *Pool) Release(ipv4 string) {
	ip := net.ParseIP(ipv4)
	if ip == nil || !p.subnet.Contains(ip) {
		return
	}
	off := ipToUint32(ip) - p.base
	if off == p.gateway-p.base {
		return // gateway is permanently reserved
	}
	p.mu.Lock()
	delete(p.used, off)
	p.mu.Unlock()
}

// Allocations returns the current set of reserved addresses, including the
// gateway.
func (p *Pool) Allocations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.used))
	for off := range p.used {
		out = append(out, uint32ToIP(p.base+off).String())
	}
	return out
}
