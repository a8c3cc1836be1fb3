package lightning

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/k93s/internal/storage"
)

// libvirtClient is the subset of *libvirt.Libvirt the driver uses for
// domains, their metadata and the cluster network.
type libvirtClient interface {
	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainSetAutostart(Dom libvirt.Domain, Autostart int32) error
	DomainCreate(Dom libvirt.Domain) error
	DomainGetState(Dom libvirt.Domain, Flags uint32) (rState int32, rReason int32, err error)
	DomainShutdown(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error
	DomainUndefine(Dom libvirt.Domain) error

	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)

	NetworkLookupByName(Name string) (libvirt.Network, error)
	NetworkDefineXML(XML string) (libvirt.Network, error)
	NetworkCreate(Net libvirt.Network) error
	NetworkSetAutostart(Net libvirt.Network, Autostart int32) error
	NetworkIsActive(Net libvirt.Network) (int32, error)
}

// storageManager is the subset of *storage.Manager the driver uses.
type storageManager interface {
	Layout() storage.Layout
	EnsurePools(ctx context.Context) error
	MissingImages(ctx context.Context, wanted []string) ([]string, error)
	PullImage(ctx context.Context, url, distro string) error
	VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error)
	CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error
	WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error
	DeleteVolumesWithPrefix(ctx context.Context, poolName, prefix string) ([]string, error)
}

// session is one open libvirt connection.
type session struct {
	lv    libvirtClient
	sm    storageManager
	close func() error
}

// dialFunc opens a session for a libvirt URI.
type dialFunc func(ctx context.Context, uri string) (*session, error)
