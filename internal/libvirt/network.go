package libvirt

import (
	"fmt"
	"net"

	"libvirt.org/go/libvirtxml"
)

// NetworkParams describes the NAT network the cluster nodes share.
type NetworkParams struct {
	Name   string
	Bridge string
	// CIDR is the IPv4 block of the network; its first host is the gateway.
	CIDR string
	// Domain is the DNS domain dnsmasq serves for the network, if any.
	Domain string
}

// GenerateNetworkXML renders a NAT network without DHCP; nodes get static
// addresses through cloud-init.
func GenerateNetworkXML(p NetworkParams) (string, error) {
	if p.Name == "" {
		return "", fmt.Errorf("network name is required")
	}

	_, ipNet, err := net.ParseCIDR(p.CIDR)
	if err != nil {
		return "", fmt.Errorf("invalid network CIDR: %w", err)
	}
	base := ipNet.IP.To4()
	if base == nil {
		return "", fmt.Errorf("only IPv4 networks are supported, got %s", p.CIDR)
	}

	gateway := make(net.IP, net.IPv4len)
	copy(gateway, base)
	gateway[3]++

	network := &libvirtxml.Network{
		Name: p.Name,
		Forward: &libvirtxml.NetworkForward{
			Mode: "nat",
		},
		Bridge: &libvirtxml.NetworkBridge{
			Name:  p.Bridge,
			STP:   "on",
			Delay: "0",
		},
		IPs: []libvirtxml.NetworkIP{
			{
				Address: gateway.String(),
				Netmask: net.IP(ipNet.Mask).String(),
			},
		},
	}
	if p.Domain != "" {
		network.Domain = &libvirtxml.NetworkDomain{Name: p.Domain, LocalOnly: "yes"}
	}

	xml, err := network.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal network XML: %w", err)
	}

	return xml, nil
}
