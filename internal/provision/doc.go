// Package provision hands a running fleet to Ansible and installs the
// resulting cluster's kubeconfig locally.
package provision
