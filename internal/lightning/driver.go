package lightning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/fleet"
	k93slibvirt "github.com/jbweber/k93s/internal/libvirt"
	"github.com/jbweber/k93s/internal/network"
	"github.com/jbweber/k93s/internal/storage"
)

const (
	// Name is the backend identifier used in vms_backend.
	Name = "lightning"
	// Alias is the identifier older config files use.
	Alias = "k93s.vms.lightning"

	NetworkName   = "k93s"
	NetworkBridge = "virbr-k93s"
	NetworkCIDR   = "192.168.123.0/24"

	// DescriptorFile is written into the working directory before every
	// action.
	DescriptorFile = "k93s-lightning.yaml"

	KeyLibvirtURI = "libvirt_uri"
	KeySSHKeyFile = "ssh_key_file"

	DefaultSSHKeyFile      = "~/.ssh/id_rsa.pub"
	DefaultCommonPassword  = "root"
	DefaultConnectTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// ReservedKeys cannot be set in vms_backend_config; the network and pools
// are fixed.
var ReservedKeys = []string{"network_cidr", "network_name", "storage_pool"}

// Defaults are the per-role settings used when neither the tier nor the
// backend-wide config sets them.
var Defaults = map[fleet.Role]fleet.TierDefaults{
	fleet.RoleMaster: {
		Count:          1,
		Distro:         "centos-8",
		MemoryMB:       512,
		VCPUs:          1,
		RootDiskSizeGB: 10,
		RootPassword:   "!!testtesttest",
	},
	fleet.RoleAgent: {
		Count:          1,
		Distro:         "centos-8",
		MemoryMB:       384,
		VCPUs:          1,
		RootDiskSizeGB: 10,
		RootPassword:   "!!testtesttest",
	},
}

// Driver implements backend.Backend on libvirt.
type Driver struct {
	allocator       *network.Allocator
	dispatcher      *backend.Dispatcher
	imageBaseURL    string
	connectTimeout  time.Duration
	shutdownTimeout time.Duration
	log             zerolog.Logger
	dial            dialFunc

	mu      sync.Mutex
	workDir string
}

// Option configures a Driver.
type Option func(*Driver)

// WithAllocator shares an address allocator with other drivers.
func WithAllocator(a *network.Allocator) Option {
	return func(d *Driver) { d.allocator = a }
}

// WithDispatcher sets how per-VM actions are fanned out.
func WithDispatcher(disp *backend.Dispatcher) Option {
	return func(d *Driver) { d.dispatcher = disp }
}

// WithImageBaseURL sets where missing distro images are pulled from.
func WithImageBaseURL(url string) Option {
	return func(d *Driver) { d.imageBaseURL = url }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) { d.log = l.With().Str("component", "lightning").Logger() }
}

// WithShutdownTimeout sets how long a node gets to power off before it is
// destroyed.
func WithShutdownTimeout(t time.Duration) Option {
	return func(d *Driver) { d.shutdownTimeout = t }
}

// New returns a driver with its own allocator and a dispatcher using the
// default settle delay.
func New(opts ...Option) *Driver {
	d := &Driver{
		allocator:       network.NewAllocator(),
		imageBaseURL:    config.DefaultImageBaseURL,
		connectTimeout:  DefaultConnectTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dispatcher == nil {
		d.dispatcher = &backend.Dispatcher{SettleDelay: time.Second, Logger: d.log}
	}
	if d.dial == nil {
		d.dial = d.dialLibvirt
	}
	return d
}

// Name implements backend.Backend.
func (d *Driver) Name() string {
	return Name
}

// Properties implements backend.Backend.
func (d *Driver) Properties() backend.Properties {
	tier := func(def fleet.TierDefaults) []backend.Property {
		return []backend.Property{
			{Key: config.KeyCount, Default: strconv.Itoa(def.Count), Description: "number of nodes"},
			{Key: config.KeyDistro, Default: def.Distro, Description: "distro image"},
			{Key: config.KeyMemory, Default: strconv.Itoa(def.MemoryMB), Description: "memory in MiB"},
			{Key: config.KeyVCPUs, Default: strconv.Itoa(def.VCPUs), Description: "virtual CPUs"},
			{Key: config.KeyRootDiskSize, Default: strconv.Itoa(def.RootDiskSizeGB), Description: "root disk size in GB"},
			{Key: config.KeyRootPassword, Default: def.RootPassword, Description: "root password"},
		}
	}

	return backend.Properties{
		Common: []backend.Property{
			{Key: KeyLibvirtURI, Default: k93slibvirt.DefaultURI, Description: "libvirt connection URI"},
			{Key: config.KeyRootPassword, Default: DefaultCommonPassword, Description: "root password for every node"},
			{Key: KeySSHKeyFile, Default: DefaultSSHKeyFile, Description: "public key installed for root"},
		},
		Master: tier(Defaults[fleet.RoleMaster]),
		Agent:  tier(Defaults[fleet.RoleAgent]),
	}
}

// ComputeVMs implements backend.Backend. It plans the fleet and remembers
// workDir for the descriptor; libvirt is not contacted.
func (d *Driver) ComputeVMs(_ context.Context, workDir string, cfg *config.ClusterConfig) (fleet.Fleet, error) {
	planner := &fleet.Planner{
		Backend:     Name,
		Allocator:   d.allocator,
		CIDR:        NetworkCIDR,
		NetworkName: NetworkName,
		Reserved:    ReservedKeys,
		Defaults:    Defaults,
	}

	plan, err := planner.Plan(cfg)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.workDir = workDir
	d.mu.Unlock()

	return plan.Fleet, nil
}

// DescriptorPath returns where the descriptor is written, or "" before
// ComputeVMs has run.
func (d *Driver) DescriptorPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workDir == "" {
		return ""
	}
	return filepath.Join(d.workDir, DescriptorFile)
}

// Spinup implements backend.Backend.
func (d *Driver) Spinup(ctx context.Context, f fleet.Fleet) (*backend.Report, error) {
	if err := d.renderDescriptor(f); err != nil {
		return nil, err
	}
	if len(f) == 0 {
		return &backend.Report{Action: backend.ActionSpinup}, nil
	}

	s, err := d.dial(ctx, libvirtURI(f))
	if err != nil {
		return nil, err
	}
	defer d.closeSession(s)

	if err := s.sm.EnsurePools(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure storage pools: %w", err)
	}
	if err := ensureNetwork(s.lv, d.log); err != nil {
		return nil, err
	}
	if err := d.prefetch(ctx, s.sm, f.Distros()); err != nil {
		return nil, err
	}

	keys, err := readSSHKeys(f[0].Setting(KeySSHKeyFile))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		d.log.Warn().Msg("no SSH public key found; nodes will only accept password logins")
	}

	return d.dispatcher.Run(ctx, backend.ActionSpinup, d.machines(s, f, keys)), nil
}

// Teardown implements backend.Backend.
func (d *Driver) Teardown(ctx context.Context, f fleet.Fleet) (*backend.Report, error) {
	if err := d.renderDescriptor(f); err != nil {
		return nil, err
	}
	if len(f) == 0 {
		return &backend.Report{Action: backend.ActionTeardown}, nil
	}

	s, err := d.dial(ctx, libvirtURI(f))
	if err != nil {
		return nil, err
	}
	defer d.closeSession(s)

	return d.dispatcher.Run(ctx, backend.ActionTeardown, d.machines(s, f, nil)), nil
}

// Inventory implements backend.Backend. Records come from the domains
// themselves, so the inventory reflects what is actually running.
func (d *Driver) Inventory(ctx context.Context, f fleet.Fleet) (string, error) {
	if err := d.renderDescriptor(f); err != nil {
		return "", err
	}
	if len(f) == 0 {
		return backend.EnsureTrailingNewline(""), nil
	}

	s, err := d.dial(ctx, libvirtURI(f))
	if err != nil {
		return "", err
	}
	defer d.closeSession(s)

	records := collectRecords(s.lv, f, d.log)
	return backend.EnsureTrailingNewline(RenderInventory(records)), nil
}

func (d *Driver) machines(s *session, f fleet.Fleet, keys []string) []backend.Machine {
	machines := make([]backend.Machine, 0, len(f))
	for _, spec := range f {
		machines = append(machines, &machine{
			spec:            spec,
			lv:              s.lv,
			sm:              s.sm,
			sshKeys:         keys,
			shutdownTimeout: d.shutdownTimeout,
			log:             d.log.With().Str("vm", spec.Name).Logger(),
		})
	}
	return machines
}

// prefetch pulls the images of every distro the fleet uses that is not in
// the images pool yet.
func (d *Driver) prefetch(ctx context.Context, sm storageManager, distros []string) error {
	missing, err := sm.MissingImages(ctx, distros)
	if err != nil {
		return fmt.Errorf("failed to check distro images: %w", err)
	}

	for _, distro := range missing {
		url := storage.ImageURL(d.imageBaseURL, distro)
		d.log.Warn().Str("distro", distro).Str("url", url).Msg("fetching distro image")
		if err := sm.PullImage(ctx, url, distro); err != nil {
			return fmt.Errorf("failed to fetch distro %s: %w", distro, err)
		}
	}
	return nil
}

func (d *Driver) renderDescriptor(f fleet.Fleet) error {
	path := d.DescriptorPath()
	if path == "" {
		return fmt.Errorf("no working directory: ComputeVMs must run before any action")
	}

	data, err := fleet.MarshalDescriptor(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	return nil
}

func (d *Driver) dialLibvirt(ctx context.Context, uri string) (*session, error) {
	d.log.Debug().Str("uri", uri).Msg("connecting to libvirt")
	client, err := k93slibvirt.ConnectURI(ctx, uri, d.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	l := client.Libvirt()
	return &session{
		lv:    l,
		sm:    storage.NewManager(l),
		close: client.Close,
	}, nil
}

func (d *Driver) closeSession(s *session) {
	if s.close == nil {
		return
	}
	if err := s.close(); err != nil {
		d.log.Warn().Err(err).Msg("failed to close libvirt connection")
	}
}

// libvirtURI returns the connection URI from the backend-wide settings,
// which every VM of a fleet shares.
func libvirtURI(f fleet.Fleet) string {
	if uri := f[0].Setting(KeyLibvirtURI); uri != "" {
		return uri
	}
	return k93slibvirt.DefaultURI
}

// readSSHKeys reads the public keys in path. An unset path falls back to
// DefaultSSHKeyFile and tolerates it being absent.
func readSSHKeys(path string) ([]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultSSHKeyFile
	}

	resolved, err := config.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read SSH key file: %w", err)
	}

	var keys []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	return keys, nil
}
