// Package config loads and saves the k93s cluster document and the
// process-level settings that shape one CLI invocation.
package config

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier keys as they appear in the cluster document.
const (
	TierMasters = "masters"
	TierAgents  = "agents"
)

// Keys understood inside a tier mapping.
const (
	KeyCount        = "count"
	KeyDistro       = "distro"
	KeyMemory       = "memory"
	KeyVCPUs        = "vcpus"
	KeyRootDiskSize = "root_disk_size"
	KeyRootPassword = "root_password"
)

const (
	// DefaultName is used when the document does not name the cluster.
	DefaultName = "k93s"
	// DefaultBackend is used when the document does not pick a backend.
	DefaultBackend = "lightning"
	// DefaultFlavor is forwarded to the playbook as k_93_flavor.
	DefaultFlavor = "k3s"
	// DefaultPlaybook is the playbook run by the kubernetes command.
	DefaultPlaybook = "k8s.yml"
)

// nameRegex matches a lowercase DNS label short enough to leave room for
// the "-master-NN" suffix.
var nameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,46}[a-z0-9])?$`)

// ClusterConfig is the k93s section of the cluster document. It is not
// modified after it has been loaded.
type ClusterConfig struct {
	Name          string `yaml:"name"`
	Backend       string `yaml:"vms_backend"`
	BackendConfig Values `yaml:"vms_backend_config,omitempty"`
	Masters       Values `yaml:"masters,omitempty"`
	Agents        Values `yaml:"agents,omitempty"`
	Flavor        string `yaml:"flavor,omitempty"`
	Playbook      string `yaml:"playbook,omitempty"`
}

// Values is a flat mapping of scalar settings. Every YAML scalar is kept as
// its literal text; numeric coercion is left to whoever consumes the value.
type Values map[string]string

// UnmarshalYAML accepts a mapping of scalars.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*v = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	out := make(Values, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return &ValueError{Key: key.Value, Reason: fmt.Sprintf("line %d: expected a scalar", val.Line)}
		}
		if val.Tag == "!!null" {
			out[key.Value] = ""
			continue
		}
		out[key.Value] = val.Value
	}

	*v = out
	return nil
}

// MarshalYAML writes integers back as YAML integers so a saved document
// reads the way an operator would write it.
func (v Values) MarshalYAML() (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	out := make(map[string]interface{}, len(v))
	for key, val := range v {
		if n, err := strconv.Atoi(val); err == nil && strconv.Itoa(n) == val {
			out[key] = n
			continue
		}
		out[key] = val
	}
	return out, nil
}

// Get returns the value for key and whether it was set to something
// non-empty.
func (v Values) Get(key string) (string, bool) {
	val, ok := v[key]
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	out := make(Values, len(v))
	for key, val := range v {
		out[key] = val
	}
	return out
}

// Keys returns the keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Tier returns the overrides for the named tier.
func (c *ClusterConfig) Tier(tier string) Values {
	switch tier {
	case TierMasters:
		return c.Masters
	case TierAgents:
		return c.Agents
	default:
		return nil
	}
}

// FlavorOrDefault returns the Kubernetes flavor passed to the playbook.
func (c *ClusterConfig) FlavorOrDefault() string {
	if c.Flavor == "" {
		return DefaultFlavor
	}
	return c.Flavor
}

// PlaybookOrDefault returns the playbook file to run.
func (c *ClusterConfig) PlaybookOrDefault() string {
	if c.Playbook == "" {
		return DefaultPlaybook
	}
	return c.Playbook
}

// Normalize trims user input and fills top-level defaults.
func (c *ClusterConfig) Normalize() {
	c.Name = strings.ToLower(strings.TrimSpace(c.Name))
	if c.Name == "" {
		c.Name = DefaultName
	}

	c.Backend = strings.TrimSpace(c.Backend)
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}

	c.Flavor = strings.TrimSpace(c.Flavor)
	c.Playbook = strings.TrimSpace(c.Playbook)
}

// Validate checks the top-level fields. Tier values are checked when the
// fleet is planned.
func (c *ClusterConfig) Validate() error {
	if !nameRegex.MatchString(c.Name) {
		return &ValueError{
			Key:    "name",
			Value:  c.Name,
			Reason: "must be a lowercase DNS label of at most 48 characters",
		}
	}
	if c.Backend == "" {
		return &ValueError{Key: "vms_backend", Reason: "is required"}
	}
	return nil
}
