package fleet

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/k93s/internal/config"
)

// Record is the backend-facing rendering of a VMSpec: one entry of the
// descriptor file the driver writes before every action.
type Record struct {
	Name         string            `yaml:"name"`
	Distro       string            `yaml:"distro"`
	VCPUs        int               `yaml:"vcpus"`
	Memory       int               `yaml:"memory"`
	RootDiskSize int               `yaml:"root_disk_size"`
	RootPassword string            `yaml:"root_password"`
	Groups       []string          `yaml:"groups"`
	Networks     []RecordNetwork   `yaml:"networks"`
	Extra        map[string]string `yaml:",inline"`
}

// RecordNetwork is one network attachment of a Record.
type RecordNetwork struct {
	Network string `yaml:"network"`
	IPv4    string `yaml:"ipv4"`
}

// recordFields are the keys a Record renders itself; backend-wide settings
// with these names are not repeated in Extra.
var recordFields = map[string]bool{
	"name":                 true,
	config.KeyDistro:       true,
	config.KeyVCPUs:        true,
	config.KeyMemory:       true,
	config.KeyRootDiskSize: true,
	config.KeyRootPassword: true,
	"groups":               true,
	"networks":             true,
}

// NewRecord renders spec.
func NewRecord(spec VMSpec) Record {
	r := Record{
		Name:         spec.Name,
		Distro:       spec.Distro,
		VCPUs:        spec.VCPUs,
		Memory:       spec.MemoryMB,
		RootDiskSize: spec.RootDiskSizeGB,
		RootPassword: spec.RootPassword,
		Groups:       append([]string(nil), spec.Groups...),
		Networks: []RecordNetwork{
			{Network: spec.Network.Network, IPv4: spec.Network.IPv4},
		},
	}

	for key, val := range spec.BackendConfig {
		if recordFields[key] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[key] = val
	}

	return r
}

// IPv4 returns the address of the first network attachment.
func (r Record) IPv4() string {
	if len(r.Networks) == 0 {
		return ""
	}
	return r.Networks[0].IPv4
}

// InGroup reports whether the record is tagged with group.
func (r Record) InGroup(group string) bool {
	for _, g := range r.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Records renders every VM of the fleet, in fleet order.
func (f Fleet) Records() []Record {
	records := make([]Record, len(f))
	for i, vm := range f {
		records[i] = NewRecord(vm)
	}
	return records
}

// MarshalDescriptor renders the fleet as a YAML list of records.
func MarshalDescriptor(f Fleet) ([]byte, error) {
	data, err := yaml.Marshal(f.Records())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fleet descriptor: %w", err)
	}
	return data, nil
}

// UnmarshalDescriptor parses a descriptor written by MarshalDescriptor.
func UnmarshalDescriptor(data []byte) ([]Record, error) {
	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse fleet descriptor: %w", err)
	}
	return records, nil
}
