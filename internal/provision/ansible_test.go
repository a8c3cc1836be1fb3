package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/executor"
)

func newTestAnsible(t *testing.T, fake *fakeExecutor) (*Ansible, string) {
	t.Helper()
	playbooks := t.TempDir()
	require.NoError(t, writePlaybooks(playbooks))

	return &Ansible{
		PlaybooksDir: playbooks,
		Exec: func(dir string) executor.Executor {
			fake.dir = dir
			return fake
		},
		Logger: zerolog.Nop(),
	}, t.TempDir()
}

func TestArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-i", "inventory.ini", "-vv", "-e", "k_93_flavor=k3s", "k8s.yml"},
		Args(&config.ClusterConfig{}))
	assert.Equal(t,
		[]string{"-i", "inventory.ini", "-vv", "-e", "k_93_flavor=rke2", "site.yml"},
		Args(&config.ClusterConfig{Flavor: "rke2", Playbook: "site.yml"}))
}

func TestAnsibleRun(t *testing.T) {
	var seen map[string]string
	fake := &fakeExecutor{onExecute: func(dir string) {
		seen = make(map[string]string)
		for _, name := range []string{InventoryFile, "k8s.yml", "roles/k3s/tasks/main.yml"} {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				seen[name] = string(data)
			}
		}
	}}
	a, workDir := newTestAnsible(t, fake)

	err := a.Run(context.Background(), workDir, testInventory, &config.ClusterConfig{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ansible-playbook -i inventory.ini -vv -e k_93_flavor=k3s k8s.yml"}, fake.commands)
	assert.Equal(t, filepath.Join(workDir, AnsibleDir), fake.dir)
	assert.Equal(t, testInventory, seen[InventoryFile])
	assert.Equal(t, "- hosts: all\n", seen["k8s.yml"])
	assert.Contains(t, seen, "roles/k3s/tasks/main.yml")
	assert.NoDirExists(t, filepath.Join(workDir, AnsibleDir), "the copy is removed after the run")
}

func TestAnsibleRun_ExitError(t *testing.T) {
	fake := &fakeExecutor{exitCode: 2}
	a, workDir := newTestAnsible(t, fake)

	err := a.Run(context.Background(), workDir, testInventory, &config.ClusterConfig{})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, "ansible-playbook", exitErr.Command)
	assert.NoDirExists(t, filepath.Join(workDir, AnsibleDir))
}

func TestAnsibleRun_MissingPlaybooks(t *testing.T) {
	fake := &fakeExecutor{}
	a, workDir := newTestAnsible(t, fake)
	a.PlaybooksDir = filepath.Join(t.TempDir(), "nope")

	err := a.Run(context.Background(), workDir, testInventory, &config.ClusterConfig{})
	assert.ErrorContains(t, err, "playbooks directory")
	assert.Empty(t, fake.commands)
}

func TestAnsibleRun_StaleDirectory(t *testing.T) {
	fake := &fakeExecutor{}
	a, workDir := newTestAnsible(t, fake)
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, AnsibleDir), 0o700))

	err := a.Run(context.Background(), workDir, testInventory, &config.ClusterConfig{})
	assert.ErrorContains(t, err, "already exists")
	assert.Empty(t, fake.commands)
}
