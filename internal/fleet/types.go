// Package fleet expands a cluster document into the concrete set of VMs
// that make up the cluster.
package fleet

import (
	"sort"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/network"
)

// Role is the Kubernetes role of a node.
type Role int

const (
	RoleMaster Role = iota
	RoleAgent
)

// Roles returns every role in planning order.
func Roles() []Role {
	return []Role{RoleMaster, RoleAgent}
}

// String returns the lowercase role name used in VM names.
func (r Role) String() string {
	switch r {
	case RoleMaster:
		return network.RoleMaster
	case RoleAgent:
		return network.RoleAgent
	default:
		return "unknown"
	}
}

// Group returns the inventory group nodes of this role belong to.
func (r Role) Group() string {
	return "kubernetes_" + r.String()
}

// Tier returns the key of this role's section in the cluster document.
func (r Role) Tier() string {
	if r == RoleMaster {
		return config.TierMasters
	}
	return config.TierAgents
}

// NetworkAssignment places a VM on a network with a static address.
type NetworkAssignment struct {
	Network string `json:"network" yaml:"network"`
	IPv4    string `json:"ipv4" yaml:"ipv4"`
}

// VMSpec is one concrete machine of the fleet. It has no identity beyond its
// name, which is unique within a fleet.
type VMSpec struct {
	Name           string            `json:"name" yaml:"name"`
	Role           Role              `json:"-" yaml:"-"`
	Distro         string            `json:"distro" yaml:"distro"`
	VCPUs          int               `json:"vcpus" yaml:"vcpus"`
	MemoryMB       int               `json:"memory" yaml:"memory"`
	RootDiskSizeGB int               `json:"root_disk_size" yaml:"root_disk_size"`
	RootPassword   string            `json:"-" yaml:"-"`
	Network        NetworkAssignment `json:"network" yaml:"network"`
	Groups         []string          `json:"groups" yaml:"groups"`
	BackendConfig  map[string]string `json:"-" yaml:"-"`
}

// Setting returns a backend-wide setting merged into this VM.
func (s VMSpec) Setting(key string) string {
	return s.BackendConfig[key]
}

// Fleet is the ordered set of VMs for one operation: every master in index
// order followed by every agent in index order.
type Fleet []VMSpec

// Names returns the VM names in fleet order.
func (f Fleet) Names() []string {
	names := make([]string, len(f))
	for i, vm := range f {
		names[i] = vm.Name
	}
	return names
}

// Distros returns the distinct distros the fleet needs, sorted.
func (f Fleet) Distros() []string {
	seen := make(map[string]bool)
	var distros []string
	for _, vm := range f {
		if !seen[vm.Distro] {
			seen[vm.Distro] = true
			distros = append(distros, vm.Distro)
		}
	}
	sort.Strings(distros)
	return distros
}

// ByRole returns the VMs with the given role, in fleet order.
func (f Fleet) ByRole(role Role) Fleet {
	var out Fleet
	for _, vm := range f {
		if vm.Role == role {
			out = append(out, vm)
		}
	}
	return out
}

// Find returns the VM with the given name.
func (f Fleet) Find(name string) (VMSpec, bool) {
	for _, vm := range f {
		if vm.Name == name {
			return vm, true
		}
	}
	return VMSpec{}, false
}
