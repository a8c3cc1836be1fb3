package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/fleet"
	"github.com/jbweber/k93s/internal/lightning"
	"github.com/jbweber/k93s/internal/metrics"
)

// fakeBackend records the calls made to it and the directory they ran in.
type fakeBackend struct {
	fleet       fleet.Fleet
	computeErr  error
	spinupErr   error
	inventory   string
	failVM      string
	calls       []string
	computeDirs []string
	cwd         []string
}

func (b *fakeBackend) Name() string                   { return "fake" }
func (b *fakeBackend) Properties() backend.Properties { return backend.Properties{} }

func (b *fakeBackend) ComputeVMs(_ context.Context, workDir string, _ *config.ClusterConfig) (fleet.Fleet, error) {
	b.calls = append(b.calls, "compute")
	b.computeDirs = append(b.computeDirs, workDir)
	b.recordCwd()
	return b.fleet, b.computeErr
}

func (b *fakeBackend) Spinup(_ context.Context, f fleet.Fleet) (*backend.Report, error) {
	b.calls = append(b.calls, "spinup")
	b.recordCwd()
	if b.spinupErr != nil {
		return nil, b.spinupErr
	}
	return b.report(backend.ActionSpinup, f), nil
}

func (b *fakeBackend) Teardown(_ context.Context, f fleet.Fleet) (*backend.Report, error) {
	b.calls = append(b.calls, "teardown")
	b.recordCwd()
	return b.report(backend.ActionTeardown, f), nil
}

func (b *fakeBackend) Inventory(_ context.Context, _ fleet.Fleet) (string, error) {
	b.calls = append(b.calls, "inventory")
	b.recordCwd()
	return b.inventory, nil
}

func (b *fakeBackend) report(action backend.Action, f fleet.Fleet) *backend.Report {
	r := &backend.Report{Action: action}
	for _, vm := range f {
		res := backend.Result{VM: vm.Name, Action: action}
		if vm.Name == b.failVM {
			res.Err = errors.New("boom")
		}
		r.Results = append(r.Results, res)
	}
	return r
}

func (b *fakeBackend) recordCwd() {
	wd, _ := os.Getwd()
	b.cwd = append(b.cwd, wd)
}

func newRunner(t *testing.T, b backend.Backend) *Runner {
	t.Helper()
	reg := backend.NewRegistry()
	require.NoError(t, reg.Register(b, "fake.alias"))
	return &Runner{Registry: reg, Logger: zerolog.Nop()}
}

func testFleet() fleet.Fleet {
	return fleet.Fleet{
		{Name: "c-master-1", Role: fleet.RoleMaster, Network: fleet.NetworkAssignment{IPv4: "192.168.123.11"}},
		{Name: "c-agent-1", Role: fleet.RoleAgent, Network: fleet.NetworkAssignment{IPv4: "192.168.123.111"}},
	}
}

func testConfig(backendID string) *config.ClusterConfig {
	return &config.ClusterConfig{Name: "c", Backend: backendID}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    backend.Action
		wantErr bool
	}{
		{in: "spinup", want: backend.ActionSpinup},
		{in: "Teardown", want: backend.ActionTeardown},
		{in: " inventory ", want: backend.ActionInventory},
		{in: "reboot", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunAction_Spinup(t *testing.T) {
	b := &fakeBackend{fleet: testFleet()}
	r := newRunner(t, b)
	workDir := t.TempDir()
	before, err := os.Getwd()
	require.NoError(t, err)

	out, err := r.RunAction(context.Background(), backend.ActionSpinup, workDir, testConfig("fake"))
	require.NoError(t, err)

	assert.Equal(t, "fake", out.Backend)
	assert.Equal(t, backend.ActionSpinup, out.Action)
	assert.Len(t, out.Fleet, 2)
	require.NotNil(t, out.Report)
	assert.Equal(t, 2, out.Report.Succeeded())
	assert.Equal(t, []string{"compute", "spinup"}, b.calls)

	resolved, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)
	for _, wd := range b.cwd {
		got, err := filepath.EvalSymlinks(wd)
		require.NoError(t, err)
		assert.Equal(t, resolved, got, "backend must run inside the working directory")
	}

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, before, after, "working directory is restored")
}

func TestRunAction_Alias(t *testing.T) {
	b := &fakeBackend{fleet: testFleet(), inventory: "hosts\n"}
	r := newRunner(t, b)

	out, err := r.RunAction(context.Background(), backend.ActionInventory, t.TempDir(), testConfig("FAKE.alias"))
	require.NoError(t, err)
	assert.Equal(t, "hosts\n", out.Inventory)
	assert.Nil(t, out.Report)
}

func TestRunAction_BackendNotFound(t *testing.T) {
	r := newRunner(t, &fakeBackend{})
	before, _ := os.Getwd()

	_, err := r.RunAction(context.Background(), backend.ActionSpinup, t.TempDir(), testConfig("nope"))

	var notFound *backend.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.ID)
	after, _ := os.Getwd()
	assert.Equal(t, before, after)
}

func TestRunAction_ComputeError(t *testing.T) {
	b := &fakeBackend{computeErr: &config.ValueError{Tier: "masters", Key: "memory", Value: "x", Reason: "must be an integer"}}
	r := newRunner(t, b)

	_, err := r.RunAction(context.Background(), backend.ActionSpinup, t.TempDir(), testConfig("fake"))

	var valueErr *config.ValueError
	require.ErrorAs(t, err, &valueErr)
	assert.Equal(t, []string{"compute"}, b.calls, "no action after a planning failure")
}

func TestRunAction_PartialFailureIsNotAnError(t *testing.T) {
	b := &fakeBackend{fleet: testFleet(), failVM: "c-agent-1"}
	r := newRunner(t, b)

	out, err := r.RunAction(context.Background(), backend.ActionTeardown, t.TempDir(), testConfig("fake"))
	require.NoError(t, err)
	require.Len(t, out.Report.Failed(), 1)
	assert.Equal(t, "c-agent-1", out.Report.Failed()[0].VM)
}

func TestRunAction_RemoveWorkDir(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "leftover"), []byte("x"), 0o600))

	r := newRunner(t, &fakeBackend{fleet: testFleet()})
	r.RemoveWorkDir = true

	_, err := r.RunAction(context.Background(), backend.ActionSpinup, workDir, testConfig("fake"))
	require.NoError(t, err)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunAction_CreatesWorkDir(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "nested", "work")
	r := newRunner(t, &fakeBackend{fleet: testFleet()})

	_, err := r.RunAction(context.Background(), backend.ActionSpinup, workDir, testConfig("fake"))
	require.NoError(t, err)
	assert.DirExists(t, workDir)
}

func TestRunActions_ComputesOnce(t *testing.T) {
	b := &fakeBackend{fleet: testFleet(), inventory: "inv\n"}
	r := newRunner(t, b)

	outcomes, err := r.RunActions(context.Background(), t.TempDir(), testConfig("fake"),
		backend.ActionSpinup, backend.ActionInventory)
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{"compute", "spinup", "inventory"}, b.calls)
	assert.Equal(t, "inv\n", outcomes[1].Inventory)
}

func TestRunActions_StopsOnError(t *testing.T) {
	b := &fakeBackend{fleet: testFleet(), spinupErr: errors.New("libvirt down")}
	r := newRunner(t, b)

	outcomes, err := r.RunActions(context.Background(), t.TempDir(), testConfig("fake"),
		backend.ActionSpinup, backend.ActionInventory)
	require.ErrorContains(t, err, "libvirt down")
	assert.Empty(t, outcomes)
	assert.Equal(t, []string{"compute", "spinup"}, b.calls)
}

func TestPlan(t *testing.T) {
	b := &fakeBackend{fleet: testFleet()}
	r := newRunner(t, b)
	r.Metrics = metrics.NewRecorder()

	out, err := r.Plan(context.Background(), t.TempDir(), testConfig("fake"))
	require.NoError(t, err)
	assert.Equal(t, []string{"compute"}, b.calls)
	assert.Len(t, out.Fleet, 2)
	assert.Empty(t, out.Action)
}

func TestRunActions_RequiresConfig(t *testing.T) {
	r := newRunner(t, &fakeBackend{})
	_, err := r.RunActions(context.Background(), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	s := &config.Settings{ImageBaseURL: config.DefaultImageBaseURL}
	reg, err := DefaultRegistry(s, zerolog.Nop(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{lightning.Name}, reg.Names())
	for _, id := range []string{"lightning", "k93s.vms.lightning"} {
		b, err := reg.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, lightning.Name, b.Name())
	}
}

func TestDefaultRegistry_PlansWithoutLibvirt(t *testing.T) {
	reg, err := DefaultRegistry(&config.Settings{}, zerolog.Nop(), nil)
	require.NoError(t, err)
	r := &Runner{Registry: reg, Logger: zerolog.Nop()}

	cfg := &config.ClusterConfig{
		Name:    "testcluster",
		Backend: lightning.Alias,
		Masters: config.Values{config.KeyCount: "1"},
		Agents:  config.Values{config.KeyCount: "2"},
	}
	workDir := t.TempDir()

	out, err := r.Plan(context.Background(), workDir, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"testcluster-master-1", "testcluster-agent-1", "testcluster-agent-2"}, out.Fleet.Names())
}

func TestPrepareWorkDir(t *testing.T) {
	tmp, err := PrepareWorkDir("")
	require.NoError(t, err)
	defer os.RemoveAll(tmp)
	assert.DirExists(t, tmp)

	explicit := filepath.Join(t.TempDir(), "work")
	got, err := PrepareWorkDir(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
	assert.DirExists(t, explicit)
}
