package fleet

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/network"
)

// TierDefaults are the values a backend uses for keys a tier leaves unset.
type TierDefaults struct {
	Count          int
	Distro         string
	MemoryMB       int
	VCPUs          int
	RootDiskSizeGB int
	RootPassword   string
}

// Planner turns a cluster document into a Fleet for one backend.
type Planner struct {
	// Backend names the backend in error messages.
	Backend     string
	Allocator   *network.Allocator
	CIDR        string
	NetworkName string
	// Reserved lists backend-wide keys the backend owns and refuses to
	// take from the document.
	Reserved []string
	Defaults map[Role]TierDefaults
}

// Plan is the result of one planning call.
type Plan struct {
	Fleet Fleet
	// Distros are the distinct images the fleet boots from.
	Distros []string
	// Records maps each VM name to its rendered descriptor entry.
	Records map[string]Record
}

type tierPlan struct {
	role  Role
	count int
	base  VMSpec
}

var errNotInteger = errors.New("not an integer")

// Plan validates cfg and expands it into a Fleet. Every tier is validated
// before any address is allocated and all addresses are taken in one step,
// so a rejected document leaves the allocator untouched.
func (p *Planner) Plan(cfg *config.ClusterConfig) (*Plan, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if p.Allocator == nil {
		return nil, fmt.Errorf("planner has no address allocator")
	}

	for _, key := range p.Reserved {
		if _, ok := cfg.BackendConfig[key]; ok {
			return nil, &UnsupportedKeyError{Key: key, Backend: p.Backend}
		}
	}

	if _, err := network.PrefixLength(p.CIDR); err != nil {
		return nil, fmt.Errorf("invalid %s network: %w", p.Backend, err)
	}

	tiers := make([]tierPlan, 0, len(Roles()))
	for _, role := range Roles() {
		tp, err := p.resolveTier(role, cfg)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tp)
	}

	counts := make(map[string]int, len(tiers))
	for _, tp := range tiers {
		counts[tp.role.String()] = tp.count
	}
	addrs, err := p.Allocator.Allocate(p.CIDR, counts)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %s addresses: %w", p.Backend, err)
	}

	var fleet Fleet
	for _, tp := range tiers {
		for i, addr := range addrs[tp.role.String()] {
			vm := tp.base
			vm.Name = fmt.Sprintf("%s-%s-%d", cfg.Name, tp.role, i+1)
			vm.Network = NetworkAssignment{Network: p.NetworkName, IPv4: addr}
			vm.Groups = []string{tp.role.Group()}
			vm.BackendConfig = cfg.BackendConfig.Clone()
			fleet = append(fleet, vm)
		}
	}

	records := make(map[string]Record, len(fleet))
	for _, vm := range fleet {
		records[vm.Name] = NewRecord(vm)
	}

	return &Plan{Fleet: fleet, Distros: fleet.Distros(), Records: records}, nil
}

// resolveTier merges the backend-wide settings over the tier's own keys over
// the backend defaults.
func (p *Planner) resolveTier(role Role, cfg *config.ClusterConfig) (tierPlan, error) {
	tier := role.Tier()
	overrides := cfg.Tier(tier)
	defaults := p.Defaults[role]

	lookup := func(key string) (string, bool) {
		if val, ok := cfg.BackendConfig.Get(key); ok {
			return val, true
		}
		return overrides.Get(key)
	}

	tp := tierPlan{
		role:  role,
		count: defaults.Count,
		base: VMSpec{
			Role:           role,
			Distro:         defaults.Distro,
			VCPUs:          defaults.VCPUs,
			MemoryMB:       defaults.MemoryMB,
			RootDiskSizeGB: defaults.RootDiskSizeGB,
			RootPassword:   defaults.RootPassword,
		},
	}

	if raw, ok := lookup(config.KeyCount); ok {
		n, err := parseInt(raw)
		if err != nil {
			return tp, &config.ValueError{Tier: tier, Key: config.KeyCount, Value: raw, Reason: "must be an integer"}
		}
		if n < 0 {
			return tp, &config.ValueError{Tier: tier, Key: config.KeyCount, Value: raw, Reason: "must not be negative"}
		}
		tp.count = n
	}

	if val, ok := lookup(config.KeyDistro); ok {
		tp.base.Distro = val
	}
	if val, ok := lookup(config.KeyRootPassword); ok {
		tp.base.RootPassword = val
	}

	numeric := []struct {
		key string
		dst *int
	}{
		{config.KeyVCPUs, &tp.base.VCPUs},
		{config.KeyMemory, &tp.base.MemoryMB},
		{config.KeyRootDiskSize, &tp.base.RootDiskSizeGB},
	}
	for _, field := range numeric {
		raw, ok := lookup(field.key)
		if !ok {
			continue
		}
		n, err := parseInt(raw)
		if err != nil {
			return tp, &config.ValueError{Tier: tier, Key: field.key, Value: raw, Reason: "must be an integer"}
		}
		if n <= 0 {
			return tp, &config.ValueError{Tier: tier, Key: field.key, Value: raw, Reason: "must be greater than 0"}
		}
		*field.dst = n
	}

	avail, err := p.Allocator.Available(role.String())
	if err != nil {
		return tp, err
	}
	if avail >= 0 && tp.count > avail {
		return tp, &config.ValueError{
			Tier:   tier,
			Key:    config.KeyCount,
			Value:  strconv.Itoa(tp.count),
			Reason: fmt.Sprintf("leaves no room in the %s address block (%d addresses left)", role, avail),
		}
	}

	if tp.count > 0 && tp.base.Distro == "" {
		return tp, &config.ValueError{Tier: tier, Key: config.KeyDistro, Reason: "is required"}
	}

	return tp, nil
}

// parseInt accepts integers and floats with no fractional part, which is how
// YAML writers sometimes render whole numbers.
func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, errNotInteger
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, errNotInteger
	}
	return int(f), nil
}
