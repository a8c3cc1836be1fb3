package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the subset of *libvirt.Libvirt the storage manager uses.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)
	StoragePoolRefresh(Pool libvirt.StoragePool, Flags uint32) error
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
}

// HTTPDoer performs image downloads.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager coordinates pools, volumes and images for one libvirt connection.
type Manager struct {
	client LibvirtClient
	layout Layout
	http   HTTPDoer
}

// Option configures a Manager.
type Option func(*Manager)

// WithLayout overrides DefaultLayout.
func WithLayout(l Layout) Option {
	return func(m *Manager) { m.layout = l }
}

// WithHTTPClient sets the client used by PullImage.
func WithHTTPClient(c HTTPDoer) Option {
	return func(m *Manager) { m.http = c }
}

// NewManager creates a new storage manager.
func NewManager(client LibvirtClient, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		layout: DefaultLayout,
		http:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Layout returns the pools the manager works with.
func (m *Manager) Layout() Layout {
	return m.layout
}

// EnsurePools makes sure both the images and VMs pools exist.
func (m *Manager) EnsurePools(ctx context.Context) error {
	if err := m.EnsurePool(ctx, m.layout.ImagesPool, PoolTypeDir, m.layout.ImagesPath); err != nil {
		return fmt.Errorf("failed to ensure images pool: %w", err)
	}

	if err := m.EnsurePool(ctx, m.layout.VMsPool, PoolTypeDir, m.layout.VMsPath); err != nil {
		return fmt.Errorf("failed to ensure VMs pool: %w", err)
	}

	return nil
}
