package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/executor"
)

const (
	// MasterGroup is the inventory group the kubeconfig is fetched from.
	MasterGroup = "kubernetes_master"
	// KubeconfigFile is the fetched file's name inside the working directory.
	KubeconfigFile = "config"

	k3sKubeconfig = "/etc/rancher/k3s/k3s.yaml"
	backupPrefix  = "config-old.k93s."
	backupLayout  = "2006-01-02T15:04:05.000000"
)

// RemoteExecutor is an executor holding a connection.
type RemoteExecutor interface {
	executor.Executor
	Close() error
}

// Kubeconfig fetches the admin kubeconfig from the first master and
// installs it for the local user.
type Kubeconfig struct {
	// KeyFile is the private key used to log into the master.
	KeyFile string
	// RemoteUser is the account whose ~/.kube/config is read first.
	RemoteUser string
	// KubeDir is the local ~/.kube directory.
	KubeDir string
	Now     func() time.Time
	Dial    func(ctx context.Context, cfg executor.SSHConfig) (RemoteExecutor, error)
	Logger  zerolog.Logger
}

// NewKubeconfig derives the private key from the public key file the VMs
// were seeded with and targets the current user's ~/.kube.
func NewKubeconfig(sshKeyFile string, logger zerolog.Logger) (*Kubeconfig, error) {
	if sshKeyFile == "" {
		sshKeyFile = "~/.ssh/id_rsa.pub"
	}
	keyFile, err := config.ResolvePath(strings.TrimSuffix(sshKeyFile, ".pub"))
	if err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	remoteUser := os.Getenv("USER")
	if u, err := user.Current(); err == nil {
		remoteUser = u.Username
	}

	log := logger.With().Str("component", "kubeconfig").Logger()
	return &Kubeconfig{
		KeyFile:    keyFile,
		RemoteUser: remoteUser,
		KubeDir:    filepath.Join(home, ".kube"),
		Now:        time.Now,
		Dial: func(ctx context.Context, cfg executor.SSHConfig) (RemoteExecutor, error) {
			return executor.NewSSH(ctx, cfg, log)
		},
		Logger: log,
	}, nil
}

// Fetch reads the kubeconfig from the first master of inventory, points it
// at the master's address and writes it to <workDir>/config.
func (k *Kubeconfig) Fetch(ctx context.Context, workDir, inventory string) (string, error) {
	inv, err := ParseInventory(inventory)
	if err != nil {
		return "", err
	}
	master, err := inv.First(MasterGroup)
	if err != nil {
		return "", err
	}
	sshUser := master.User
	if sshUser == "" {
		sshUser = "root"
	}

	remote, err := k.Dial(ctx, executor.SSHConfig{Host: master.Address, User: sshUser, KeyPath: k.KeyFile})
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", master.Name, err)
	}
	defer func() {
		if err := remote.Close(); err != nil {
			k.Logger.Warn().Err(err).Msg("failed to close SSH connection")
		}
	}()

	data, src, err := k.read(ctx, remote)
	if err != nil {
		return "", err
	}
	k.Logger.Warn().Str("host", master.Name).Str("src", src).Msg("copied kubeconfig from master")

	data, err = RewriteServer(data, master.Address)
	if err != nil {
		return "", err
	}

	path := filepath.Join(workDir, KubeconfigFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write kubeconfig: %w", err)
	}
	return path, nil
}

func (k *Kubeconfig) read(ctx context.Context, remote executor.Executor) ([]byte, string, error) {
	var candidates []string
	if k.RemoteUser != "" {
		candidates = append(candidates, fmt.Sprintf("/home/%s/.kube/config", k.RemoteUser))
	}
	candidates = append(candidates, k3sKubeconfig)

	var errs []error
	for _, src := range candidates {
		res, err := executor.RunAndCapture(ctx, remote, "cat", src)
		if err == nil && res.Stdout != "" {
			return []byte(res.Stdout), src, nil
		}
		if err == nil {
			err = errors.New("empty file")
		}
		errs = append(errs, fmt.Errorf("%s: %w", src, err))
	}
	return nil, "", fmt.Errorf("failed to read kubeconfig from master: %w", errors.Join(errs...))
}

// RewriteServer points every cluster whose server is a loopback or
// unspecified address at address, keeping the port.
func RewriteServer(data []byte, address string) ([]byte, error) {
	cfg, err := clientcmd.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}
	if len(cfg.Clusters) == 0 {
		return nil, fmt.Errorf("kubeconfig has no clusters")
	}

	for _, cluster := range cfg.Clusters {
		u, err := url.Parse(cluster.Server)
		if err != nil {
			return nil, fmt.Errorf("failed to parse server URL %q: %w", cluster.Server, err)
		}
		if !isLocal(u.Hostname()) {
			continue
		}
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(address, port)
		} else {
			u.Host = address
		}
		cluster.Server = u.String()
	}

	out, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render kubeconfig: %w", err)
	}
	return out, nil
}

func isLocal(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// BackupName returns the file name an existing kubeconfig is saved as.
func BackupName(t time.Time) string {
	return backupPrefix + t.Format(backupLayout)
}

// Switch installs newPath as ~/.kube/config. An existing config is backed
// up first; the backup path is returned, or "" when there was nothing to
// back up.
func (k *Kubeconfig) Switch(newPath string) (string, error) {
	data, err := os.ReadFile(newPath)
	if err != nil {
		return "", fmt.Errorf("failed to read new kubeconfig: %w", err)
	}
	if err := os.MkdirAll(k.KubeDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", k.KubeDir, err)
	}

	current := filepath.Join(k.KubeDir, "config")
	backup := ""
	old, err := os.ReadFile(current)
	switch {
	case err == nil:
		backup = filepath.Join(k.KubeDir, BackupName(k.Now()))
		if err := os.WriteFile(backup, old, 0o600); err != nil {
			return "", fmt.Errorf("failed to back up kubeconfig: %w", err)
		}
		k.Logger.Warn().Str("backup", backup).Msg("old kubeconfig saved")
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read current kubeconfig: %w", err)
	}

	if err := os.WriteFile(current, data, 0o600); err != nil {
		return backup, fmt.Errorf("failed to install kubeconfig: %w", err)
	}
	k.Logger.Warn().Msg("run kubectl cluster-info to see the cluster status")
	return backup, nil
}
