// Package cloudinit renders the NoCloud seed a k93s node boots with.
//
// The seed holds three files (user-data, meta-data, network-config) on an
// ISO labelled CIDATA. Nodes get a static address on the cluster network,
// matched on the MAC derived from that address, and accept root logins with
// the operator's SSH key so Ansible can reach them.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is everything needed to render the seed for one node.
type Config struct {
	Hostname string
	// RootPassword is set verbatim; cloud-init hashes it on the guest.
	RootPassword string
	SSHKeys      []string
	MAC          string
	// Address is in CIDR form, e.g. 192.168.123.11/24.
	Address    string
	Gateway    string
	DNSServers []string
}

// Validate reports missing fields.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if c.MAC == "" {
		return fmt.Errorf("MAC address is required")
	}
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}

// UserData represents the cloud-config user-data structure.
// This is marshaled to YAML and prefixed with "#cloud-config" header.
type UserData struct {
	Hostname          string    `yaml:"hostname"`
	FQDN              string    `yaml:"fqdn"`
	DisableRoot       bool      `yaml:"disable_root"`
	SSHAuthorizedKeys []string  `yaml:"ssh_authorized_keys,omitempty"`
	Chpasswd          *Chpasswd `yaml:"chpasswd,omitempty"`
	SSHPasswordAuth   bool      `yaml:"ssh_pwauth"`
	Output            *Output   `yaml:"output,omitempty"`
}

// Chpasswd configures user password settings.
type Chpasswd struct {
	Expire bool   `yaml:"expire"`
	List   string `yaml:"list"` // "username:password"
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData represents the cloud-init meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig represents the netplan v2 network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig represents a single ethernet interface configuration.
type EthernetConfig struct {
	Match       MatchConfig   `yaml:"match"`
	SetName     string        `yaml:"set-name,omitempty"`
	Addresses   []string      `yaml:"addresses"`
	Routes      []RouteConfig `yaml:"routes,omitempty"`
	Nameservers *Nameservers  `yaml:"nameservers,omitempty"`
}

// MatchConfig matches an interface by MAC address.
type MatchConfig struct {
	MACAddress string `yaml:"macaddress"`
}

// RouteConfig represents a static route.
type RouteConfig struct {
	To  string `yaml:"to"`
	Via string `yaml:"via"`
}

// Nameservers represents DNS server configuration.
type Nameservers struct {
	Addresses []string `yaml:"addresses"`
}

// GenerateUserData returns the user-data file, including the
// "#cloud-config" header.
func GenerateUserData(cfg *Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("cloud-init configuration cannot be nil")
	}

	userData := UserData{
		Hostname:          cfg.Hostname,
		FQDN:              cfg.Hostname,
		DisableRoot:       false,
		SSHAuthorizedKeys: cfg.SSHKeys,
		SSHPasswordAuth:   cfg.RootPassword != "",
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	if cfg.RootPassword != "" {
		userData.Chpasswd = &Chpasswd{
			Expire: false,
			List:   "root:" + cfg.RootPassword,
		}
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData returns the meta-data file. The instance-id is the
// hostname, so a node recreated under the same name is treated as a first
// boot only if its seed changes.
func GenerateMetaData(cfg *Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("cloud-init configuration cannot be nil")
	}

	yamlBytes, err := yaml.Marshal(&MetaData{
		InstanceID:    cfg.Hostname,
		LocalHostname: cfg.Hostname,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// GenerateNetworkConfig returns the network-config file: one interface,
// matched by MAC and renamed eth0, with a static address and a default
// route through the gateway.
func GenerateNetworkConfig(cfg *Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("cloud-init configuration cannot be nil")
	}
	if cfg.MAC == "" || cfg.Address == "" {
		return "", fmt.Errorf("a MAC address and an address are required")
	}

	eth := EthernetConfig{
		Match:     MatchConfig{MACAddress: cfg.MAC},
		SetName:   "eth0",
		Addresses: []string{cfg.Address},
	}
	if cfg.Gateway != "" {
		eth.Routes = []RouteConfig{{To: "0.0.0.0/0", Via: cfg.Gateway}}
	}

	dns := cfg.DNSServers
	if len(dns) == 0 && cfg.Gateway != "" {
		// libvirt runs dnsmasq on the gateway address
		dns = []string{cfg.Gateway}
	}
	if len(dns) > 0 {
		eth.Nameservers = &Nameservers{Addresses: dns}
	}

	yamlBytes, err := yaml.Marshal(&NetworkConfig{
		Version:   2,
		Ethernets: map[string]EthernetConfig{"eth0": eth},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
