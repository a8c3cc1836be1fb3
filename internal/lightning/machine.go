package lightning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog"

	"github.com/jbweber/k93s/internal/cloudinit"
	"github.com/jbweber/k93s/internal/fleet"
	k93slibvirt "github.com/jbweber/k93s/internal/libvirt"
	"github.com/jbweber/k93s/internal/metadata"
	"github.com/jbweber/k93s/internal/naming"
	"github.com/jbweber/k93s/internal/network"
	"github.com/jbweber/k93s/internal/storage"
)

const (
	// Domain states (from libvirt VIR_DOMAIN_* constants)
	domainStateRunning = 1
	domainStateShutoff = 5

	shutdownPollInterval = 500 * time.Millisecond
)

// machine is one fleet VM realized as a libvirt domain.
type machine struct {
	spec            fleet.VMSpec
	lv              libvirtClient
	sm              storageManager
	sshKeys         []string
	shutdownTimeout time.Duration
	log             zerolog.Logger
}

func (m *machine) Name() string {
	return m.spec.Name
}

// Up creates and starts the domain. A domain that already exists is only
// started if it is not running.
func (m *machine) Up(ctx context.Context) error {
	domain, err := m.lv.DomainLookupByName(m.spec.Name)
	if err == nil {
		return m.ensureRunning(domain)
	}
	if !isNoDomain(err) {
		return fmt.Errorf("failed to look up domain: %w", err)
	}

	return m.create(ctx)
}

// isNoDomain reports whether err is libvirt's "domain not found".
func isNoDomain(err error) bool {
	return hasErrorCode(err, libvirt.ErrNoDomain)
}

func hasErrorCode(err error, code libvirt.ErrorNumber) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(code)
}

func (m *machine) ensureRunning(domain libvirt.Domain) error {
	state, _, err := m.lv.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get VM state: %w", err)
	}
	if state == domainStateRunning {
		m.log.Info().Msg("VM already exists and is running")
		return nil
	}

	m.log.Info().Int32("state", state).Msg("VM already exists, starting it")
	if err := m.lv.DomainCreate(domain); err != nil {
		return fmt.Errorf("failed to start domain: %w", err)
	}
	return nil
}

func (m *machine) create(ctx context.Context) (createErr error) {
	var (
		domainDefined  bool
		storageCreated bool
	)
	defer func() {
		if createErr != nil {
			m.cleanup(ctx, domainDefined, storageCreated)
		}
	}()

	layout := m.sm.Layout()
	name := m.spec.Name
	ip := m.spec.Network.IPv4

	mac, err := naming.MACFromIP(ip)
	if err != nil {
		return fmt.Errorf("failed to derive MAC address: %w", err)
	}

	leftover, err := m.sm.VolumeExists(ctx, layout.VMsPool, naming.VolumeNameBoot(name))
	if err != nil {
		return fmt.Errorf("failed to check for leftover volumes: %w", err)
	}
	if leftover {
		// no domain uses them, so they are from an earlier failed run
		m.log.Warn().Msg("removing volumes left by an earlier run")
		m.deleteVolumes(ctx)
	}

	m.log.Info().Int("size_gb", m.spec.RootDiskSizeGB).Str("distro", m.spec.Distro).Msg("creating boot volume")
	storageCreated = true
	err = m.sm.CreateVolume(ctx, layout.VMsPool, storage.VolumeSpec{
		Name:          naming.VolumeNameBoot(name),
		Type:          storage.VolumeTypeBoot,
		Format:        storage.VolumeFormatQCOW2,
		CapacityGB:    uint64(m.spec.RootDiskSizeGB), // #nosec G115
		BackingPool:   layout.ImagesPool,
		BackingVolume: naming.ImageName(m.spec.Distro),
	})
	if err != nil {
		return fmt.Errorf("failed to create boot volume: %w", err)
	}

	m.log.Info().Msg("writing cloud-init ISO")
	iso, err := m.seed(mac)
	if err != nil {
		return err
	}
	isoName := naming.VolumeNameCloudInit(name)
	err = m.sm.CreateVolume(ctx, layout.VMsPool, storage.VolumeSpec{
		Name:          isoName,
		Type:          storage.VolumeTypeCloudInit,
		Format:        storage.VolumeFormatRaw,
		CapacityBytes: uint64(len(iso)),
	})
	if err != nil {
		return fmt.Errorf("failed to create cloud-init volume: %w", err)
	}
	if err := m.sm.WriteVolumeData(ctx, layout.VMsPool, isoName, iso); err != nil {
		return fmt.Errorf("failed to write cloud-init ISO: %w", err)
	}

	domainXML, err := k93slibvirt.GenerateDomainXML(k93slibvirt.DomainParams{
		Name:            name,
		UUID:            naming.DomainUUID(name).String(),
		VCPUs:           m.spec.VCPUs,
		MemoryMB:        m.spec.MemoryMB,
		Pool:            layout.VMsPool,
		BootVolume:      naming.VolumeNameBoot(name),
		CloudInitVolume: isoName,
		Network:         m.spec.Network.Network,
		MAC:             mac,
	})
	if err != nil {
		return fmt.Errorf("failed to generate domain XML: %w", err)
	}

	m.log.Info().Msg("defining domain")
	domain, err := m.lv.DomainDefineXML(domainXML)
	if err != nil {
		return fmt.Errorf("failed to define domain: %w", err)
	}
	domainDefined = true

	if err := metadata.Store(m.lv, domain, fleet.NewRecord(m.spec)); err != nil {
		return fmt.Errorf("failed to store VM record: %w", err)
	}

	if err := m.lv.DomainSetAutostart(domain, 1); err != nil {
		return fmt.Errorf("failed to set autostart: %w", err)
	}

	m.log.Info().Str("ipv4", ip).Msg("starting VM")
	if err := m.lv.DomainCreate(domain); err != nil {
		return fmt.Errorf("failed to start domain: %w", err)
	}

	return nil
}

// seed renders the cloud-init ISO for the VM.
func (m *machine) seed(mac string) ([]byte, error) {
	prefix, err := network.PrefixLength(NetworkCIDR)
	if err != nil {
		return nil, err
	}
	gateway, err := network.Gateway(NetworkCIDR)
	if err != nil {
		return nil, err
	}

	iso, err := cloudinit.GenerateISO(&cloudinit.Config{
		Hostname:     m.spec.Name,
		RootPassword: m.spec.RootPassword,
		SSHKeys:      m.sshKeys,
		MAC:          mac,
		Address:      fmt.Sprintf("%s/%d", m.spec.Network.IPv4, prefix),
		Gateway:      gateway,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate cloud-init ISO: %w", err)
	}
	return iso, nil
}

// cleanup removes what a failed create left behind. It is best-effort and
// only logs failures.
func (m *machine) cleanup(ctx context.Context, domainDefined, storageCreated bool) {
	m.log.Warn().Msg("cleaning up after failed VM creation")

	if domainDefined {
		domain, err := m.lv.DomainLookupByName(m.spec.Name)
		if err != nil {
			m.log.Warn().Err(err).Msg("failed to look up domain for cleanup")
		} else {
			// not running is the common case here
			_ = m.lv.DomainDestroy(domain)
			if err := m.lv.DomainUndefine(domain); err != nil {
				m.log.Warn().Err(err).Msg("failed to undefine domain")
			}
		}
	}

	if storageCreated {
		m.deleteVolumes(ctx)
	}
}

// Down stops and undefines the domain and deletes its volumes. A missing
// domain is not an error.
func (m *machine) Down(ctx context.Context) error {
	domain, err := m.lv.DomainLookupByName(m.spec.Name)
	if err != nil {
		if !isNoDomain(err) {
			return fmt.Errorf("failed to look up domain: %w", err)
		}
		m.log.Info().Msg("VM not found, removing leftover volumes only")
		m.deleteVolumes(ctx)
		return nil
	}

	if err := m.stop(ctx, domain); err != nil {
		return err
	}

	if err := m.lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
		return fmt.Errorf("failed to undefine domain: %w", err)
	}

	m.deleteVolumes(ctx)
	return nil
}

// stop shuts the domain down gracefully, destroying it once the shutdown
// timeout passes.
func (m *machine) stop(ctx context.Context, domain libvirt.Domain) error {
	state, _, err := m.lv.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get VM state: %w", err)
	}
	if state != domainStateRunning {
		return nil
	}

	needsForceDestroy := false
	if err := m.lv.DomainShutdown(domain); err != nil {
		m.log.Warn().Err(err).Msg("graceful shutdown failed")
		needsForceDestroy = true
	} else {
		needsForceDestroy = !m.waitShutoff(ctx, domain)
	}

	if !needsForceDestroy {
		return nil
	}

	currentState, _, err := m.lv.DomainGetState(domain, 0)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to check state before destroy")
	}
	if err == nil && currentState == domainStateRunning {
		m.log.Info().Msg("force destroying VM")
		if err := m.lv.DomainDestroy(domain); err != nil {
			return fmt.Errorf("failed to destroy domain: %w", err)
		}
	}
	return nil
}

// waitShutoff polls the domain state until it is shut off or the timeout
// passes, and reports whether it shut off.
func (m *machine) waitShutoff(ctx context.Context, domain libvirt.Domain) bool {
	shutdownCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
	defer cancel()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownCtx.Done():
			m.log.Info().Dur("timeout", m.shutdownTimeout).Msg("graceful shutdown timed out")
			return false
		case <-ticker.C:
			state, _, err := m.lv.DomainGetState(domain, 0)
			if err != nil {
				m.log.Warn().Err(err).Msg("failed to check shutdown state")
				return false
			}
			if state == domainStateShutoff {
				m.log.Info().Msg("VM shut down gracefully")
				return true
			}
		}
	}
}

func (m *machine) deleteVolumes(ctx context.Context) {
	pool := m.sm.Layout().VMsPool
	deleted, err := m.sm.DeleteVolumesWithPrefix(ctx, pool, naming.VolumePrefix(m.spec.Name))
	if err != nil {
		m.log.Warn().Err(err).Str("pool", pool).Msg("failed to delete some volumes")
	}
	if len(deleted) > 0 {
		m.log.Info().Strs("volumes", deleted).Msg("deleted volumes")
	}
}
