package lightning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/k93s/internal/storage"
)

type mockDomain struct {
	state     int32
	autostart bool
	xml       string
}

// mockLibvirtClient keeps domains, their metadata and networks in memory.
type mockLibvirtClient struct {
	mu sync.Mutex

	domains  map[string]*mockDomain
	metadata map[string]string
	networks map[string]bool // name -> active

	// Configurable behavior
	defineErr      map[string]error // by domain name
	setMetadataErr error
	shutdownErr    error
	// lookupErr fails every domain lookup, like a dropped connection.
	lookupErr error
	// shutdownWorks makes DomainShutdown power the domain off.
	shutdownWorks bool

	// Call tracking
	defineCalls        []string
	createCalls        []string
	shutdownCalls      []string
	destroyCalls       []string
	undefineFlagsCalls []string
	undefineCalls      []string
	networkDefineCalls []string
	networkCreateCalls []string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		domains:       make(map[string]*mockDomain),
		metadata:      make(map[string]string),
		networks:      make(map[string]bool),
		defineErr:     make(map[string]error),
		shutdownWorks: true,
	}
}

// addDomain registers an existing domain.
func (m *mockLibvirtClient) addDomain(name string, state int32) {
	m.domains[name] = &mockDomain{state: state}
}

func (m *mockLibvirtClient) domain(name string) (*mockDomain, error) {
	d, ok := m.domains[name]
	if !ok {
		return nil, libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found: " + name}
	}
	return d, nil
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return libvirt.Domain{}, m.lookupErr
	}
	if _, err := m.domain(name); err != nil {
		return libvirt.Domain{}, err
	}
	return libvirt.Domain{Name: name}, nil
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var def libvirtxml.Domain
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, fmt.Errorf("invalid domain XML: %w", err)
	}
	m.defineCalls = append(m.defineCalls, def.Name)
	if err := m.defineErr[def.Name]; err != nil {
		return libvirt.Domain{}, err
	}

	m.domains[def.Name] = &mockDomain{state: domainStateShutoff, xml: xml}
	return libvirt.Domain{Name: def.Name}, nil
}

func (m *mockLibvirtClient) DomainSetAutostart(dom libvirt.Domain, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.domain(dom.Name)
	if err != nil {
		return err
	}
	d.autostart = autostart == 1
	return nil
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, dom.Name)
	d, err := m.domain(dom.Name)
	if err != nil {
		return err
	}
	d.state = domainStateRunning
	return nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.domain(dom.Name)
	if err != nil {
		return 0, 0, err
	}
	return d.state, 0, nil
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCalls = append(m.shutdownCalls, dom.Name)
	if m.shutdownErr != nil {
		return m.shutdownErr
	}
	d, err := m.domain(dom.Name)
	if err != nil {
		return err
	}
	if m.shutdownWorks {
		d.state = domainStateShutoff
	}
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyCalls = append(m.destroyCalls, dom.Name)
	d, err := m.domain(dom.Name)
	if err != nil {
		return err
	}
	d.state = domainStateShutoff
	return nil
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undefineFlagsCalls = append(m.undefineFlagsCalls, dom.Name)
	return m.undefine(dom.Name)
}

func (m *mockLibvirtClient) DomainUndefine(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undefineCalls = append(m.undefineCalls, dom.Name)
	return m.undefine(dom.Name)
}

func (m *mockLibvirtClient) undefine(name string) error {
	if _, err := m.domain(name); err != nil {
		return err
	}
	delete(m.domains, name)
	delete(m.metadata, name)
	return nil
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setMetadataErr != nil {
		return m.setMetadataErr
	}
	if _, err := m.domain(dom.Name); err != nil {
		return err
	}
	m.metadata[dom.Name] = metadata[0]
	return nil
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.metadata[dom.Name]
	if !ok {
		return "", fmt.Errorf("metadata not found for %s", dom.Name)
	}
	return value, nil
}

func (m *mockLibvirtClient) NetworkLookupByName(name string) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.networks[name]; !ok {
		return libvirt.Network{}, libvirt.Error{Code: uint32(libvirt.ErrNoNetwork), Message: "Network not found: " + name}
	}
	return libvirt.Network{Name: name}, nil
}

func (m *mockLibvirtClient) NetworkDefineXML(xml string) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var def libvirtxml.Network
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.Network{}, fmt.Errorf("invalid network XML: %w", err)
	}
	m.networkDefineCalls = append(m.networkDefineCalls, xml)
	m.networks[def.Name] = false
	return libvirt.Network{Name: def.Name}, nil
}

func (m *mockLibvirtClient) NetworkCreate(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkCreateCalls = append(m.networkCreateCalls, net.Name)
	m.networks[net.Name] = true
	return nil
}

func (m *mockLibvirtClient) NetworkSetAutostart(net libvirt.Network, autostart int32) error {
	return nil
}

func (m *mockLibvirtClient) NetworkIsActive(net libvirt.Network) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.networks[net.Name] {
		return 1, nil
	}
	return 0, nil
}

// mockStorageManager keeps images and per-VM volumes in memory.
type mockStorageManager struct {
	mu sync.Mutex

	layout  storage.Layout
	images  map[string]bool
	volumes map[string]storage.VolumeSpec
	written map[string][]byte

	// Configurable behavior
	createVolumeErr func(spec storage.VolumeSpec) error
	pullErr         error
	existsErr       error

	// Call tracking
	ensurePoolsCalls int
	pulled           []string
}

func newMockStorageManager(images ...string) *mockStorageManager {
	m := &mockStorageManager{
		layout:  storage.DefaultLayout,
		images:  make(map[string]bool),
		volumes: make(map[string]storage.VolumeSpec),
		written: make(map[string][]byte),
	}
	for _, distro := range images {
		m.images[distro] = true
	}
	return m
}

func (m *mockStorageManager) Layout() storage.Layout {
	return m.layout
}

func (m *mockStorageManager) EnsurePools(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensurePoolsCalls++
	return nil
}

func (m *mockStorageManager) MissingImages(ctx context.Context, wanted []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, distro := range wanted {
		if !m.images[distro] {
			missing = append(missing, distro)
		}
	}
	return missing, nil
}

func (m *mockStorageManager) PullImage(ctx context.Context, url, distro string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulled = append(m.pulled, url)
	if m.pullErr != nil {
		return m.pullErr
	}
	m.images[distro] = true
	return nil
}

func (m *mockStorageManager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.volumes[volumeName]
	return ok, nil
}

func (m *mockStorageManager) CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createVolumeErr != nil {
		if err := m.createVolumeErr(spec); err != nil {
			return err
		}
	}
	if _, ok := m.volumes[spec.Name]; ok {
		return fmt.Errorf("volume %s already exists", spec.Name)
	}
	m.volumes[spec.Name] = spec
	return nil
}

func (m *mockStorageManager) WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[volumeName]; !ok {
		return fmt.Errorf("volume %s not found", volumeName)
	}
	m.written[volumeName] = data
	return nil
}

func (m *mockStorageManager) DeleteVolumesWithPrefix(ctx context.Context, poolName, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted []string
	for name := range m.volumes {
		if strings.HasPrefix(name, prefix) {
			delete(m.volumes, name)
			deleted = append(deleted, name)
		}
	}
	sort.Strings(deleted)
	return deleted, nil
}

func (m *mockStorageManager) volumeNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.volumes))
	for name := range m.volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
