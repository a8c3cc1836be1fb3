// Package lightning is the libvirt backend of k93s.
//
// It plans a fleet with fleet.Planner on the fixed 192.168.123.0/24 network,
// writes the fleet descriptor into the working directory, and realizes each
// node as a libvirt domain:
//
//   - a qcow2 boot volume backed by the distro image (pulled on demand),
//   - a cloud-init ISO giving the node its hostname, root password, SSH key
//     and static address,
//   - the node's descriptor record in the domain metadata, which is where
//     the inventory is read back from.
//
// Nodes are brought up and down concurrently through backend.Dispatcher.
// Bringing up a node that already exists only starts it; tearing down a
// node that does not exist only removes leftover volumes.
package lightning
