package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInventory = `testcluster-master-1 ansible_host=192.168.123.11 ansible_user=root
testcluster-agent-1 ansible_host=192.168.123.111 ansible_user=root

[kubernetes_master]
testcluster-master-1

[kubernetes_agent]
testcluster-agent-1
`

func TestParseInventory(t *testing.T) {
	inv, err := ParseInventory(testInventory)
	require.NoError(t, err)

	assert.Equal(t, Host{Name: "testcluster-master-1", Address: "192.168.123.11", User: "root"}, inv.Hosts["testcluster-master-1"])
	assert.Equal(t, []string{"testcluster-agent-1"}, inv.Groups["kubernetes_agent"])

	master, err := inv.First(MasterGroup)
	require.NoError(t, err)
	assert.Equal(t, "192.168.123.11", master.Address)
}

func TestParseInventory_HostWithoutVars(t *testing.T) {
	inv, err := ParseInventory("[kubernetes_master]\nmaster.lab ansible_port=2222\n")
	require.NoError(t, err)

	master, err := inv.First(MasterGroup)
	require.NoError(t, err)
	assert.Equal(t, "master.lab", master.Address)
	assert.Empty(t, master.User)
}

func TestParseInventory_Errors(t *testing.T) {
	_, err := ParseInventory("[kubernetes_master\n")
	assert.ErrorContains(t, err, "line 1")

	_, err = ParseInventory("host novalue\n")
	assert.ErrorContains(t, err, "malformed host variable")
}

func TestInventoryFirst_EmptyGroup(t *testing.T) {
	inv, err := ParseInventory("\n")
	require.NoError(t, err)
	_, err = inv.First(MasterGroup)
	assert.ErrorContains(t, err, MasterGroup)
}
