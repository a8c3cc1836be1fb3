package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/digitalocean/go-libvirt"
)

func TestEnsurePools(t *testing.T) {
	client := newMockLibvirtClient()
	mgr := NewManager(client)

	if err := mgr.EnsurePools(context.Background()); err != nil {
		t.Fatalf("EnsurePools() error = %v", err)
	}

	for _, name := range []string{DefaultLayout.ImagesPool, DefaultLayout.VMsPool} {
		pool, ok := client.pools[name]
		if !ok {
			t.Fatalf("pool %s was not created", name)
		}
		if pool.state != libvirt.StoragePoolRunning {
			t.Errorf("pool %s state = %v, want running", name, pool.state)
		}
		if !pool.autostart {
			t.Errorf("pool %s is not autostarted", name)
		}
	}

	if !strings.Contains(client.pools[DefaultLayout.VMsPool].xmlDesc, DefaultLayout.VMsPath) {
		t.Errorf("VMs pool XML does not mention %s", DefaultLayout.VMsPath)
	}

	// a second call finds both pools and changes nothing
	if err := mgr.EnsurePools(context.Background()); err != nil {
		t.Fatalf("second EnsurePools() error = %v", err)
	}
	if len(client.pools) != 2 {
		t.Errorf("expected 2 pools, got %d", len(client.pools))
	}
}

func TestEnsurePools_CustomLayout(t *testing.T) {
	client := newMockLibvirtClient()
	layout := Layout{ImagesPool: "img", ImagesPath: "/srv/img", VMsPool: "vms", VMsPath: "/srv/vms"}
	mgr := NewManager(client, WithLayout(layout))

	if mgr.Layout() != layout {
		t.Errorf("Layout() = %+v, want %+v", mgr.Layout(), layout)
	}
	if err := mgr.EnsurePools(context.Background()); err != nil {
		t.Fatalf("EnsurePools() error = %v", err)
	}
	if _, ok := client.pools["img"]; !ok {
		t.Error("images pool not created")
	}
	if _, ok := client.pools["vms"]; !ok {
		t.Error("vms pool not created")
	}
}

func TestCreatePool_UnsupportedType(t *testing.T) {
	mgr := NewManager(newMockLibvirtClient())

	err := mgr.CreatePool(context.Background(), "p", PoolType("logical"), "/dev/vg")
	if err == nil || !strings.Contains(err.Error(), "unsupported pool type") {
		t.Errorf("expected unsupported pool type error, got %v", err)
	}
}

type failingBuildClient struct {
	*mockLibvirtClient
}

func (f failingBuildClient) StoragePoolBuild(libvirt.StoragePool, libvirt.StoragePoolBuildFlags) error {
	return errors.New("permission denied")
}

func TestCreatePool_BuildFailureUndefines(t *testing.T) {
	client := newMockLibvirtClient()
	mgr := NewManager(failingBuildClient{client})

	err := mgr.CreatePool(context.Background(), "p", PoolTypeDir, "/tmp/p")
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := client.pools["p"]; ok {
		t.Error("pool should have been undefined after the build failure")
	}
}

func TestGetPoolInfo(t *testing.T) {
	client := newMockLibvirtClient()
	client.addPool("k93s-vms", "/var/lib/libvirt/images/k93s/vms")
	mgr := NewManager(client)

	info, err := mgr.GetPoolInfo(context.Background(), "k93s-vms")
	if err != nil {
		t.Fatalf("GetPoolInfo() error = %v", err)
	}
	if info.Type != PoolTypeDir {
		t.Errorf("Type = %q, want dir", info.Type)
	}
	if info.Path != "/var/lib/libvirt/images/k93s/vms" {
		t.Errorf("Path = %q", info.Path)
	}
	if info.State != "running" {
		t.Errorf("State = %q, want running", info.State)
	}
	if info.UUID == "" {
		t.Error("UUID is empty")
	}

	if _, err := mgr.GetPoolInfo(context.Background(), "missing"); err == nil {
		t.Error("expected error for a missing pool")
	}
}

func TestRefreshPool(t *testing.T) {
	client := newMockLibvirtClient()
	client.addPool("k93s-images", "/images")
	mgr := NewManager(client)

	if err := mgr.RefreshPool(context.Background(), "k93s-images"); err != nil {
		t.Fatalf("RefreshPool() error = %v", err)
	}
	if len(client.refreshed) != 1 || client.refreshed[0] != "k93s-images" {
		t.Errorf("refreshed = %v", client.refreshed)
	}
	if err := mgr.RefreshPool(context.Background(), "missing"); err == nil {
		t.Error("expected error for a missing pool")
	}
}

func TestPoolStateString(t *testing.T) {
	tests := map[libvirt.StoragePoolState]string{
		libvirt.StoragePoolInactive:     "inactive",
		libvirt.StoragePoolBuilding:     "building",
		libvirt.StoragePoolRunning:      "running",
		libvirt.StoragePoolDegraded:     "degraded",
		libvirt.StoragePoolInaccessible: "inaccessible",
		libvirt.StoragePoolState(99):    "unknown",
	}
	for state, want := range tests {
		if got := poolStateString(state); got != want {
			t.Errorf("poolStateString(%d) = %q, want %q", state, got, want)
		}
	}
}
