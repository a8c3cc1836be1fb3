// Package network hands out node addresses inside the cluster network.
package network

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// Roles the allocator keeps counters for.
const (
	RoleMaster = "master"
	RoleAgent  = "agent"
)

// Offsets from the first host address where each role's block begins.
const (
	MasterBase = 10
	AgentBase  = 110
)

// ceilings bounds each role's offsets so one role's block never runs into
// the next one. Roles without an entry are bounded only by the CIDR.
var ceilings = map[string]int{
	RoleMaster: AgentBase,
}

// BlockFullError is returned when a role has no offsets left before the
// next role's block.
type BlockFullError struct {
	Role      string
	Requested int
	Available int
}

func (e *BlockFullError) Error() string {
	return fmt.Sprintf("%s address block is full: %d requested, %d available", e.Role, e.Requested, e.Available)
}

// InvalidRoleError is returned when an address is requested for a role the
// allocator does not track.
type InvalidRoleError struct {
	Role string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid node role %q: only %s and %s nodes are supported", e.Role, RoleMaster, RoleAgent)
}

// Allocator hands out IPv4 addresses sequentially per role.
//
// Counters only move forward: an offset handed out once is never handed out
// again for the lifetime of the Allocator, even if the VM using it is torn
// down. A single Allocator is meant to be shared by every planning call of
// one process.
type Allocator struct {
	mu   sync.Mutex
	next map[string]int
}

// NewAllocator returns an allocator with counters at their role bases.
func NewAllocator() *Allocator {
	return &Allocator{
		next: map[string]int{
			RoleMaster: MasterBase,
			RoleAgent:  AgentBase,
		},
	}
}

// Next returns the next address for role inside cidr and advances the role's
// counter. The counter is left untouched when an error is returned.
func (a *Allocator) Next(cidr, role string) (string, error) {
	addrs, err := a.Allocate(cidr, map[string]int{role: 1})
	if err != nil {
		return "", err
	}
	return addrs[role][0], nil
}

// Allocate hands out count addresses per role in one step. Either every
// request is satisfied and the counters advance, or an error is returned
// and no counter moves.
func (a *Allocator) Allocate(cidr string, counts map[string]int) (map[string][]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string][]string, len(counts))
	for role, n := range counts {
		offset, ok := a.next[role]
		if !ok {
			return nil, &InvalidRoleError{Role: role}
		}
		if n < 0 {
			return nil, fmt.Errorf("cannot allocate %d %s addresses", n, role)
		}
		if limit, ok := ceilings[role]; ok && offset+n > limit {
			return nil, &BlockFullError{Role: role, Requested: n, Available: max(limit-offset, 0)}
		}

		addrs := make([]string, 0, n)
		for i := 0; i < n; i++ {
			// first host is network+1
			addr, err := HostAt(cidr, offset+i+1)
			if err != nil {
				return nil, fmt.Errorf("failed to allocate %s address: %w", role, err)
			}
			addrs = append(addrs, addr)
		}
		out[role] = addrs
	}

	for role, n := range counts {
		a.next[role] += n
	}
	return out, nil
}

// Available returns how many more addresses role can get before it reaches
// the next role's block, or -1 when only the CIDR bounds it.
func (a *Allocator) Available(role string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offset, ok := a.next[role]
	if !ok {
		return 0, &InvalidRoleError{Role: role}
	}
	limit, ok := ceilings[role]
	if !ok {
		return -1, nil
	}
	return max(limit-offset, 0), nil
}

// Snapshot returns a copy of the current counters.
func (a *Allocator) Snapshot() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int, len(a.next))
	for role, offset := range a.next {
		out[role] = offset
	}
	return out
}

// Restore replaces the counters with a previously taken snapshot.
func (a *Allocator) Restore(state map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next = make(map[string]int, len(state))
	for role, offset := range state {
		a.next[role] = offset
	}
}

// HostAt returns the address n hosts past the network address of cidr.
// Only IPv4 blocks are supported; the network and broadcast addresses are
// never returned.
func HostAt(cidr string, n int) (string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR: %w", err)
	}

	base := ipNet.IP.To4()
	if base == nil {
		return "", fmt.Errorf("only IPv4 networks are supported, got %s", cidr)
	}

	ones, bits := ipNet.Mask.Size()
	size := uint64(1) << uint(bits-ones)
	last := size - 1
	if size > 2 {
		last = size - 2
	}
	if n < 1 || uint64(n) > last {
		return "", fmt.Errorf("host %d is outside %s", n, cidr)
	}

	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, binary.BigEndian.Uint32(base)+uint32(n)) // #nosec G115
	return ip.String(), nil
}

// Gateway returns the first host address of cidr.
func Gateway(cidr string) (string, error) {
	return HostAt(cidr, 1)
}

// PrefixLength returns the mask length of cidr.
func PrefixLength(cidr string) (int, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return 0, fmt.Errorf("invalid CIDR: %w", err)
	}
	ones, _ := ipNet.Mask.Size()
	return ones, nil
}
