// Package output renders a planned fleet in various formats (table, YAML,
// JSON).
package output

import (
	"fmt"

	"github.com/jbweber/k93s/internal/fleet"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML list of roster entries.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON array for machine consumption.
	FormatJSON Format = "json"
)

// Formatter renders a fleet.
type Formatter interface {
	FormatFleet(f fleet.Fleet) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
	// Styled renders the table header bold.
	Styled bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders, Styled: opts.Styled}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// Entry is the serialized form of one planned VM. The root password is
// left out.
type Entry struct {
	Name         string   `json:"name" yaml:"name"`
	Role         string   `json:"role" yaml:"role"`
	Distro       string   `json:"distro" yaml:"distro"`
	VCPUs        int      `json:"vcpus" yaml:"vcpus"`
	MemoryMB     int      `json:"memory" yaml:"memory"`
	RootDiskSize int      `json:"root_disk_size" yaml:"root_disk_size"`
	Network      string   `json:"network" yaml:"network"`
	IPv4         string   `json:"ipv4" yaml:"ipv4"`
	Groups       []string `json:"groups" yaml:"groups"`
}

// Entries converts a fleet to roster entries in fleet order.
func Entries(f fleet.Fleet) []Entry {
	entries := make([]Entry, len(f))
	for i, vm := range f {
		entries[i] = Entry{
			Name:         vm.Name,
			Role:         vm.Role.String(),
			Distro:       vm.Distro,
			VCPUs:        vm.VCPUs,
			MemoryMB:     vm.MemoryMB,
			RootDiskSize: vm.RootDiskSizeGB,
			Network:      vm.Network.Network,
			IPv4:         vm.Network.IPv4,
			Groups:       append([]string{}, vm.Groups...),
		}
	}
	return entries
}
