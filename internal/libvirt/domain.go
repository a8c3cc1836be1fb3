package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// DomainParams describes one k93s node domain.
type DomainParams struct {
	Name     string
	UUID     string
	VCPUs    int
	MemoryMB int
	// Pool holds both the boot volume and the cloud-init ISO.
	Pool            string
	BootVolume      string
	CloudInitVolume string
	// Network is the libvirt network the single interface attaches to.
	Network string
	MAC     string
}

// Validate checks the fields GenerateDomainXML needs.
func (p DomainParams) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("domain name is required")
	case p.VCPUs <= 0:
		return fmt.Errorf("domain %s: vcpus must be greater than 0", p.Name)
	case p.MemoryMB <= 0:
		return fmt.Errorf("domain %s: memory must be greater than 0", p.Name)
	case p.Pool == "" || p.BootVolume == "":
		return fmt.Errorf("domain %s: boot volume is required", p.Name)
	case p.Network == "":
		return fmt.Errorf("domain %s: network is required", p.Name)
	}
	return nil
}

// GenerateDomainXML renders the domain for a k93s node: a BIOS guest booting
// a qcow2 volume, with an optional cloud-init CD-ROM, one virtio NIC on a
// libvirt network and a serial console.
func GenerateDomainXML(p DomainParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: p.Name,
		UUID: p.UUID,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(p.MemoryMB), // #nosec G115
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(p.VCPUs), // #nosec G115
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{
				{Dev: "hd"},
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-passthrough",
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
		},
	}

	domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name:  "qemu",
			Type:  "qcow2",
			Cache: "unsafe",
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{
				Pool:   p.Pool,
				Volume: p.BootVolume,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "vda",
			Bus: "virtio",
		},
	})

	if p.CloudInitVolume != "" {
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "raw",
			},
			Source: &libvirtxml.DomainDiskSource{
				Volume: &libvirtxml.DomainDiskSourceVolume{
					Pool:   p.Pool,
					Volume: p.CloudInitVolume,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: "sda",
				Bus: "sata",
			},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		})
	}

	iface := libvirtxml.DomainInterface{
		Source: &libvirtxml.DomainInterfaceSource{
			Network: &libvirtxml.DomainInterfaceSourceNetwork{
				Network: p.Network,
			},
		},
		Model: &libvirtxml.DomainInterfaceModel{
			Type: "virtio",
		},
	}
	if p.MAC != "" {
		iface.MAC = &libvirtxml.DomainInterfaceMAC{Address: p.MAC}
	}
	domain.Devices.Interfaces = []libvirtxml.DomainInterface{iface}

	port := uint(0)
	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainSerialTarget{
				Port: &port,
			},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainConsoleTarget{
				Type: "serial",
				Port: &port,
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}
