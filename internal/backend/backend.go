// Package backend defines the contract between the orchestrator and the
// drivers that realize a fleet on some virtualization substrate.
package backend

import (
	"context"
	"strings"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/fleet"
)

// Action is a fleet-level operation.
type Action string

const (
	ActionSpinup    Action = "spinup"
	ActionTeardown  Action = "teardown"
	ActionInventory Action = "inventory"
)

// Backend realizes fleets. Implementations are selected by name through a
// Registry.
type Backend interface {
	// Name is the canonical identifier of the backend.
	Name() string

	// Properties describes the settings the config survey offers for this
	// backend, with their defaults.
	Properties() Properties

	// ComputeVMs plans the fleet for cfg. It does not touch the substrate.
	ComputeVMs(ctx context.Context, workDir string, cfg *config.ClusterConfig) (fleet.Fleet, error)

	// Spinup brings every VM of the fleet up. Per-VM failures are reported
	// in the Report; the error is reserved for failures that prevented the
	// batch from being dispatched at all.
	Spinup(ctx context.Context, f fleet.Fleet) (*Report, error)

	// Teardown removes every VM of the fleet, with the same error contract
	// as Spinup.
	Teardown(ctx context.Context, f fleet.Fleet) (*Report, error)

	// Inventory renders the grouped host list for the provisioning step.
	// The text always ends with a newline.
	Inventory(ctx context.Context, f fleet.Fleet) (string, error)
}

// Property is one survey question.
type Property struct {
	Key         string
	Default     string
	Description string
}

// Properties groups survey questions by where their answers are stored.
type Properties struct {
	// Common answers go to vms_backend_config.
	Common []Property
	// Master and Agent answers go to the masters and agents tiers.
	Master []Property
	Agent  []Property
}

// EnsureTrailingNewline appends a newline to s unless it already ends with
// one.
func EnsureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
