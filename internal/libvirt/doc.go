// Package libvirt connects to a local libvirt daemon and renders the domain
// and network XML k93s defines.
//
// The package wraps github.com/digitalocean/go-libvirt. It does not define
// interfaces of its own: consumers (internal/lightning, internal/storage,
// internal/metadata) declare the subset of *libvirt.Libvirt they call, which
// keeps them testable with hand-written mocks.
//
//	client, err := libvirt.ConnectURI(ctx, "qemu:///system", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	xml, err := libvirt.GenerateDomainXML(libvirt.DomainParams{...})
//	if err != nil {
//	    return err
//	}
//	dom, err := client.Libvirt().DomainDefineXML(xml)
package libvirt
