package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/executor"
)

const (
	// AnsibleDir is the directory inside the working directory the
	// playbooks are copied to.
	AnsibleDir = "ansible_temp"
	// InventoryFile is written into AnsibleDir.
	InventoryFile = "inventory.ini"

	ansiblePlaybook = "ansible-playbook"
)

// Ansible runs the Kubernetes playbook against an inventory.
type Ansible struct {
	// PlaybooksDir is copied into the working directory before each run.
	PlaybooksDir string
	// Exec returns the executor that runs commands in dir.
	Exec   func(dir string) executor.Executor
	Stdout io.Writer
	Stderr io.Writer
	Logger zerolog.Logger
}

// NewAnsible returns an Ansible runner using local commands.
func NewAnsible(playbooksDir string, logger zerolog.Logger) *Ansible {
	log := logger.With().Str("component", "ansible").Logger()
	local := executor.NewLocal(log)
	return &Ansible{
		PlaybooksDir: playbooksDir,
		Exec:         func(dir string) executor.Executor { return local.WithDir(dir) },
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Logger:       log,
	}
}

// Args returns the ansible-playbook arguments for cfg.
func Args(cfg *config.ClusterConfig) []string {
	return []string{
		"-i", InventoryFile,
		"-vv",
		"-e", "k_93_flavor=" + cfg.FlavorOrDefault(),
		cfg.PlaybookOrDefault(),
	}
}

// Run copies the playbooks into workDir, writes the inventory next to them
// and runs the playbook there. The copy is removed afterwards.
func (a *Ansible) Run(ctx context.Context, workDir, inventory string, cfg *config.ClusterConfig) error {
	dir, cleanup, err := prepareAnsibleDir(a.PlaybooksDir, workDir, inventory, a.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	args := Args(cfg)
	a.Logger.Warn().Str("cmd", executor.CommandString(ansiblePlaybook, args)).Msg("running playbook")

	code, err := a.Exec(dir).Execute(ctx, a.Stdout, a.Stderr, ansiblePlaybook, args...)
	if err != nil {
		if code > 0 {
			return &ExitError{Command: ansiblePlaybook, Code: code, Err: err}
		}
		return fmt.Errorf("failed to run %s: %w", ansiblePlaybook, err)
	}
	return nil
}

// prepareAnsibleDir lays out <workDir>/ansible_temp and returns it together
// with a function removing it.
func prepareAnsibleDir(playbooksDir, workDir, inventory string, log zerolog.Logger) (string, func(), error) {
	src, err := config.ResolvePath(playbooksDir)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", nil, fmt.Errorf("failed to find playbooks directory: %w", err)
	}
	if !info.IsDir() {
		return "", nil, fmt.Errorf("playbooks path %s is not a directory", src)
	}

	dir := filepath.Join(workDir, AnsibleDir)
	cleanup := func() {
		log.Info().Str("dir", dir).Msg("done with Ansible, removing directory")
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove Ansible directory")
		}
	}

	if err := copyTree(src, dir); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to copy playbooks: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, InventoryFile), []byte(inventory), 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write inventory: %w", err)
	}

	return dir, cleanup, nil
}

// copyTree copies regular files and directories from src to dst. dst must
// not exist.
func copyTree(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s already exists", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// sockets, devices and links have no place in a playbook tree
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
