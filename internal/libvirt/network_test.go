package libvirt

import (
	"testing"

	"libvirt.org/go/libvirtxml"
)

func TestGenerateNetworkXML(t *testing.T) {
	xml, err := GenerateNetworkXML(NetworkParams{
		Name:   "k93s",
		Bridge: "virbr-k93s",
		CIDR:   "192.168.123.0/24",
		Domain: "k93s.local",
	})
	if err != nil {
		t.Fatalf("GenerateNetworkXML() error = %v", err)
	}

	var network libvirtxml.Network
	if err := network.Unmarshal(xml); err != nil {
		t.Fatalf("generated XML does not parse: %v", err)
	}

	if network.Name != "k93s" {
		t.Errorf("Name = %q", network.Name)
	}
	if network.Forward == nil || network.Forward.Mode != "nat" {
		t.Errorf("Forward = %+v, want nat", network.Forward)
	}
	if network.Bridge == nil || network.Bridge.Name != "virbr-k93s" {
		t.Errorf("Bridge = %+v", network.Bridge)
	}
	if len(network.IPs) != 1 {
		t.Fatalf("expected one IP block, got %d", len(network.IPs))
	}
	if network.IPs[0].Address != "192.168.123.1" {
		t.Errorf("gateway = %q, want 192.168.123.1", network.IPs[0].Address)
	}
	if network.IPs[0].Netmask != "255.255.255.0" {
		t.Errorf("netmask = %q", network.IPs[0].Netmask)
	}
	if network.IPs[0].DHCP != nil {
		t.Error("network must not run DHCP")
	}
	if network.Domain == nil || network.Domain.Name != "k93s.local" {
		t.Errorf("Domain = %+v", network.Domain)
	}
}

func TestGenerateNetworkXML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    NetworkParams
	}{
		{name: "no name", p: NetworkParams{CIDR: "192.168.123.0/24"}},
		{name: "bad cidr", p: NetworkParams{Name: "k93s", CIDR: "nope"}},
		{name: "ipv6", p: NetworkParams{Name: "k93s", CIDR: "fd00::/64"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GenerateNetworkXML(tt.p); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
