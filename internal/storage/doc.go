// Package storage manages the libvirt storage pools and volumes behind a
// k93s cluster.
//
// Two directory pools are kept (see Layout):
//   - k93s-images: one qcow2 base image per distro, named {distro}.qcow2
//   - k93s-vms: per-node volumes, named {vm}_boot.qcow2 and
//     {vm}_cloudinit.iso (see internal/naming)
//
// Boot volumes are qcow2 overlays backed by the distro image, so creating a
// node never copies the image. Images are imported from local files or
// pulled over HTTP; both paths check the qcow2 magic bytes before
// uploading.
//
//	mgr := storage.NewManager(client.Libvirt())
//	if err := mgr.EnsurePools(ctx); err != nil {
//	    return err
//	}
//	missing, err := mgr.MissingImages(ctx, []string{"centos-8"})
//	for _, distro := range missing {
//	    err = mgr.PullImage(ctx, storage.ImageURL(baseURL, distro), distro)
//	}
//
// The LibvirtClient interface lists the go-libvirt calls the manager makes;
// *libvirt.Libvirt satisfies it.
package storage
