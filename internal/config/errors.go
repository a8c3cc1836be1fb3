package config

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// ValueError reports a field in the cluster document that cannot be used,
// such as a non-numeric vcpus value or a negative count.
type ValueError struct {
	Tier   string // masters, agents, vms_backend_config or empty for top-level keys
	Key    string
	Value  string
	Reason string
}

func (e *ValueError) Error() string {
	where := e.Key
	if e.Tier != "" {
		where = e.Tier + "." + e.Key
	}
	if e.Value != "" {
		return fmt.Sprintf("invalid value %q for %s: %s", e.Value, where, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", where, e.Reason)
}
