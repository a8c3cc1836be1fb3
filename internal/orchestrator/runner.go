// Package orchestrator runs fleet actions: it resolves the backend named by
// the cluster document, plans the fleet and invokes the action inside a
// working directory.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/fleet"
	"github.com/jbweber/k93s/internal/metrics"
)

// ParseAction resolves an action name.
func ParseAction(name string) (backend.Action, error) {
	switch action := backend.Action(strings.ToLower(strings.TrimSpace(name))); action {
	case backend.ActionSpinup, backend.ActionTeardown, backend.ActionInventory:
		return action, nil
	default:
		return "", fmt.Errorf("unknown action %q (valid: spinup, teardown, inventory)", name)
	}
}

// Outcome is the result of one action.
type Outcome struct {
	Action  backend.Action
	Backend string
	Fleet   fleet.Fleet
	// Report is set for spinup and teardown.
	Report *backend.Report
	// Inventory is set for inventory.
	Inventory string
}

// Runner invokes actions on the backend a cluster document selects.
type Runner struct {
	Registry *backend.Registry
	Logger   zerolog.Logger
	// RemoveWorkDir removes the working directory contents once the
	// actions have finished.
	RemoveWorkDir bool
	Metrics       *metrics.Recorder
}

// RunAction runs a single action. See RunActions.
func (r *Runner) RunAction(ctx context.Context, action backend.Action, workDir string, cfg *config.ClusterConfig) (*Outcome, error) {
	outcomes, err := r.RunActions(ctx, workDir, cfg, action)
	if err != nil {
		return nil, err
	}
	return outcomes[0], nil
}

// Plan computes the fleet without invoking any action.
func (r *Runner) Plan(ctx context.Context, workDir string, cfg *config.ClusterConfig) (*Outcome, error) {
	outcomes, err := r.RunActions(ctx, workDir, cfg)
	if err != nil {
		return nil, err
	}
	return outcomes[0], nil
}

// RunActions plans the fleet once and runs each action on it in order,
// inside workDir. The process working directory is restored afterwards.
// With no actions it returns a single outcome carrying only the fleet.
//
// A failing action stops the sequence; outcomes of the actions that ran are
// returned alongside the error.
func (r *Runner) RunActions(ctx context.Context, workDir string, cfg *config.ClusterConfig, actions ...backend.Action) (outcomes []*Outcome, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if r.Registry == nil {
		return nil, fmt.Errorf("backend registry is required")
	}

	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	restore, err := enterWorkDir(absWorkDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := restore(); rerr != nil {
			r.Logger.Warn().Err(rerr).Msg("failed to restore working directory")
		}
		if r.RemoveWorkDir {
			if cerr := clearDir(absWorkDir); cerr != nil {
				r.Logger.Warn().Err(cerr).Str("workdir", absWorkDir).Msg("failed to remove working directory contents")
			}
		}
		if r.Metrics != nil {
			r.Metrics.MarkRun(time.Now())
		}
	}()

	backendID := cfg.Backend
	if backendID == "" {
		backendID = config.DefaultBackend
	}
	b, err := r.Registry.Lookup(backendID)
	if err != nil {
		return nil, err
	}

	f, err := b.ComputeVMs(ctx, absWorkDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to compute VMs: %w", err)
	}
	if r.Metrics != nil {
		r.Metrics.ObserveFleet(b.Name(), len(f))
	}

	if len(actions) == 0 {
		r.logRoster("planned", f)
		return []*Outcome{{Backend: b.Name(), Fleet: f}}, nil
	}

	for _, action := range actions {
		r.logRoster(string(action), f)

		outcome, err := invoke(ctx, b, action, f)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)

		if outcome.Report != nil {
			if failed := outcome.Report.Failed(); len(failed) > 0 {
				r.Logger.Warn().
					Str("action", string(action)).
					Int("failed", len(failed)).
					Int("succeeded", outcome.Report.Succeeded()).
					Msg("action finished with failures")
			}
		}
	}

	return outcomes, nil
}

func invoke(ctx context.Context, b backend.Backend, action backend.Action, f fleet.Fleet) (*Outcome, error) {
	outcome := &Outcome{Action: action, Backend: b.Name(), Fleet: f}

	var err error
	switch action {
	case backend.ActionSpinup:
		outcome.Report, err = b.Spinup(ctx, f)
	case backend.ActionTeardown:
		outcome.Report, err = b.Teardown(ctx, f)
	case backend.ActionInventory:
		outcome.Inventory, err = b.Inventory(ctx, f)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", action, err)
	}
	return outcome, nil
}

func (r *Runner) logRoster(action string, f fleet.Fleet) {
	r.Logger.Warn().Str("action", action).Int("vms", len(f)).Msg("going to invoke action on VMs")
	for _, vm := range f {
		r.Logger.Info().
			Str("vm", vm.Name).
			Str("role", vm.Role.String()).
			Str("ipv4", vm.Network.IPv4).
			Str("distro", vm.Distro).
			Int("memory", vm.MemoryMB).
			Int("vcpus", vm.VCPUs).
			Msg("VM")
	}
}

// enterWorkDir changes into dir, creating it if needed, and returns a
// function that changes back.
func enterWorkDir(dir string) (func() error, error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("failed to enter working directory: %w", err)
	}
	return func() error { return os.Chdir(prev) }, nil
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
