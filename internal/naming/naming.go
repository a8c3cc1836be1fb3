// Package naming derives the names and identifiers k93s gives to libvirt
// resources from a VM's name and address, so every resource of a VM can be
// found again without keeping state outside libvirt.
package naming

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// domainNamespace scopes the name-based domain UUIDs.
var domainNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("domains.k93s.local"))

// MACFromIP derives the MAC of a VM's interface from its address, using the
// locally administered prefix be:ef.
//
// Example: IP 192.168.123.11 → MAC be:ef:c0:a8:7b:0b
func MACFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("be:ef:%02x:%02x:%02x:%02x", ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// DomainUUID returns the UUID the domain for vmName is defined with. The
// same name always yields the same UUID.
func DomainUUID(vmName string) uuid.UUID {
	return uuid.NewSHA1(domainNamespace, []byte(vmName))
}

// VolumePrefix is the prefix shared by every volume that belongs to vmName.
func VolumePrefix(vmName string) string {
	return vmName + "_"
}

// VolumeNameBoot returns the volume name for a VM's boot disk.
// Format: {vmName}_boot.qcow2
func VolumeNameBoot(vmName string) string {
	return VolumePrefix(vmName) + "boot.qcow2"
}

// VolumeNameCloudInit returns the volume name for a VM's cloud-init ISO.
// Format: {vmName}_cloudinit.iso
func VolumeNameCloudInit(vmName string) string {
	return VolumePrefix(vmName) + "cloudinit.iso"
}

// ImageName returns the name of the base image volume for a distro.
// Format: {distro}.qcow2
func ImageName(distro string) string {
	return distro + ".qcow2"
}

// DistroFromImage is the inverse of ImageName. It reports false for volumes
// that are not qcow2 images.
func DistroFromImage(volume string) (string, bool) {
	distro, ok := strings.CutSuffix(volume, ".qcow2")
	if !ok || distro == "" {
		return "", false
	}
	return distro, true
}

func parseIPv4(ip string) (net.IP, error) {
	ipStr := ip
	if strings.Contains(ip, "/") {
		ipAddr, _, err := net.ParseCIDR(ip)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR: %w", err)
		}
		ipStr = ipAddr.String()
	}

	parsed := net.ParseIP(ipStr)
	if parsed == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipStr)
	}

	ipv4 := parsed.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", ipStr)
	}
	return ipv4, nil
}
