package storage

import "fmt"

// PoolType represents the type of storage pool backend. k93s only creates
// directory pools.
type PoolType string

const (
	PoolTypeDir PoolType = "dir"
)

// VolumeType represents the purpose of a storage volume.
type VolumeType string

const (
	VolumeTypeBoot      VolumeType = "boot"       // Node boot disk
	VolumeTypeCloudInit VolumeType = "cloudinit"  // Cloud-init ISO
	VolumeTypeBaseImage VolumeType = "base-image" // Distro image
)

// VolumeFormat represents the disk format.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

// VolumeSpec specifies how to create a storage volume.
type VolumeSpec struct {
	Name       string
	Type       VolumeType
	Format     VolumeFormat
	CapacityGB uint64
	// CapacityBytes overrides CapacityGB when set, for volumes sized to
	// their content such as cloud-init ISOs.
	CapacityBytes uint64
	// BackingPool and BackingVolume name the qcow2 overlay's backing image.
	BackingPool   string
	BackingVolume string
}

// Validate checks if the volume spec is valid.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if v.Type == "" {
		return fmt.Errorf("volume type is required")
	}
	if v.Format != VolumeFormatQCOW2 && v.Format != VolumeFormatRaw {
		return fmt.Errorf("invalid volume format: %q (must be qcow2 or raw)", v.Format)
	}
	if v.capacity() == 0 {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	if v.BackingVolume != "" {
		if v.Format != VolumeFormatQCOW2 {
			return fmt.Errorf("backing volumes are only supported for qcow2 format")
		}
		if v.BackingPool == "" {
			return fmt.Errorf("backing pool is required with a backing volume")
		}
	}
	return nil
}

func (v *VolumeSpec) capacity() uint64 {
	if v.CapacityBytes > 0 {
		return v.CapacityBytes
	}
	return v.CapacityGB * gib
}

const gib = 1024 * 1024 * 1024

// PoolInfo contains information about a storage pool.
type PoolInfo struct {
	Name       string
	Type       PoolType
	Path       string
	UUID       string
	State      string
	Capacity   uint64 // bytes
	Allocation uint64 // bytes
	Available  uint64 // bytes
}

// AvailableGB returns the pool available space in GB.
func (p *PoolInfo) AvailableGB() float64 {
	return float64(p.Available) / gib
}

// VolumeInfo contains information about a storage volume.
type VolumeInfo struct {
	Name       string
	Path       string
	Pool       string
	Capacity   uint64 // bytes
	Allocation uint64 // bytes
}

// CapacityGB returns the volume capacity in GB.
func (v *VolumeInfo) CapacityGB() float64 {
	return float64(v.Capacity) / gib
}

// Layout names the two pools k93s keeps: one for distro images shared by all
// nodes and one for per-node disks.
type Layout struct {
	ImagesPool string
	ImagesPath string
	VMsPool    string
	VMsPath    string
}

// DefaultLayout is used when no other layout is configured.
var DefaultLayout = Layout{
	ImagesPool: "k93s-images",
	ImagesPath: "/var/lib/libvirt/images/k93s/images",
	VMsPool:    "k93s-vms",
	VMsPath:    "/var/lib/libvirt/images/k93s/vms",
}
