// Package survey asks the operator for a new cluster document, offering the
// chosen backend's defaults.
package survey

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/config"
)

// DefaultClusterName is offered as the cluster name.
const DefaultClusterName = "testcluster"

// Survey runs the interactive config questions.
type Survey struct {
	Registry *backend.Registry
	// Accessible switches huh to plain line prompts, for dumb terminals
	// and scripted input.
	Accessible bool
	In         io.Reader
	Out        io.Writer
}

// answer is one prompted property; value starts at the default.
type answer struct {
	backend.Property
	value string
}

// Answers hold everything the survey collects.
type Answers struct {
	Name    string
	Backend string
	Common  []answer
	Master  []answer
	Agent   []answer
}

// Run asks for the cluster identity, then for every property of the chosen
// backend, and returns the resulting document.
func (s *Survey) Run(ctx context.Context) (*config.ClusterConfig, error) {
	a := &Answers{Name: DefaultClusterName, Backend: config.DefaultBackend}

	if err := s.run(ctx, s.identityGroup(a)); err != nil {
		return nil, fmt.Errorf("cluster identity: %w", err)
	}

	b, err := s.Registry.Lookup(a.Backend)
	if err != nil {
		return nil, err
	}
	a.Prefill(b.Properties())

	if err := s.run(ctx,
		propertyGroup("Backend settings", "vms_backend_config", a.Common),
		propertyGroup("Master nodes", "masters", a.Master),
		propertyGroup("Agent nodes", "agents", a.Agent),
	); err != nil {
		return nil, fmt.Errorf("backend properties: %w", err)
	}

	return a.Config(), nil
}

func (s *Survey) run(ctx context.Context, groups ...*huh.Group) error {
	form := huh.NewForm(groups...).WithAccessible(s.Accessible)
	if s.In != nil {
		form = form.WithInput(s.In)
	}
	if s.Out != nil {
		form = form.WithOutput(s.Out)
	}
	return form.RunWithContext(ctx)
}

func (s *Survey) identityGroup(a *Answers) *huh.Group {
	var options []huh.Option[string]
	for _, name := range s.Registry.Names() {
		options = append(options, huh.NewOption(name, name))
	}

	return huh.NewGroup(
		huh.NewInput().
			Title("Cluster name").
			Description("Lowercase letters, digits and hyphens; prefixes every VM name").
			Value(&a.Name).
			Validate(validateName),
		huh.NewSelect[string]().
			Title("VM backend").
			Options(options...).
			Value(&a.Backend),
	).Title("Cluster")
}

func propertyGroup(title, section string, answers []answer) *huh.Group {
	fields := make([]huh.Field, 0, len(answers))
	for i := range answers {
		ans := &answers[i]
		fields = append(fields, huh.NewInput().
			Title(ans.Key).
			Description(ans.Description).
			Value(&ans.value).
			Validate(validateProperty(ans.Key)))
	}
	return huh.NewGroup(fields...).Title(title).Description("Values for " + section)
}

// Prefill seeds the answers with the backend's defaults.
func (a *Answers) Prefill(props backend.Properties) {
	seed := func(list []backend.Property) []answer {
		out := make([]answer, len(list))
		for i, p := range list {
			out[i] = answer{Property: p, value: p.Default}
		}
		return out
	}
	a.Common = seed(props.Common)
	a.Master = seed(props.Master)
	a.Agent = seed(props.Agent)
}

// Config renders the answers as a cluster document. Empty answers are left
// out so the backend defaults apply.
func (a *Answers) Config() *config.ClusterConfig {
	values := func(list []answer) config.Values {
		v := make(config.Values, len(list))
		for _, ans := range list {
			if val := strings.TrimSpace(ans.value); val != "" {
				v[ans.Key] = val
			}
		}
		return v
	}

	cfg := &config.ClusterConfig{
		Name:          a.Name,
		Backend:       a.Backend,
		BackendConfig: values(a.Common),
		Masters:       values(a.Master),
		Agents:        values(a.Agent),
	}
	cfg.Normalize()
	return cfg
}

func validateName(name string) error {
	cfg := &config.ClusterConfig{Name: name, Backend: config.DefaultBackend}
	cfg.Normalize()
	return cfg.Validate()
}

var integerKeys = map[string]bool{
	config.KeyCount:        true,
	config.KeyMemory:       true,
	config.KeyVCPUs:        true,
	config.KeyRootDiskSize: true,
}

func validateProperty(key string) func(string) error {
	return func(val string) error {
		val = strings.TrimSpace(val)
		if val == "" || !integerKeys[key] {
			return nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		if n < 0 || (n == 0 && key != config.KeyCount) {
			return fmt.Errorf("%s is out of range", key)
		}
		return nil
	}
}
