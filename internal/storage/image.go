package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/jbweber/k93s/internal/naming"
)

// ImageURL returns where the image for distro is downloaded from.
// Format: {baseURL}/{distro}/{distro}.qcow2
func ImageURL(baseURL, distro string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(baseURL, "/"), distro, naming.ImageName(distro))
}

// ImportImage imports a local qcow2 file as the base image for distro.
func (m *Manager) ImportImage(ctx context.Context, filePath, distro string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat image file: %w", err)
	}

	format, err := DetectImageFormat(filePath)
	if err != nil {
		return fmt.Errorf("invalid image %s: %w", filePath, err)
	}
	if format != VolumeFormatQCOW2 {
		return fmt.Errorf("image %s is %s; node disks need a qcow2 base image", filePath, format)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() { _ = f.Close() }()

	name := naming.ImageName(distro)
	spec := VolumeSpec{
		Name:          name,
		Type:          VolumeTypeBaseImage,
		Format:        VolumeFormatQCOW2,
		CapacityBytes: uint64(info.Size()), // #nosec G115
	}

	if err := m.CreateVolume(ctx, m.layout.ImagesPool, spec); err != nil {
		return fmt.Errorf("failed to create image volume: %w", err)
	}

	if err := m.UploadVolume(ctx, m.layout.ImagesPool, name, f, spec.CapacityBytes); err != nil {
		_ = m.DeleteVolume(ctx, m.layout.ImagesPool, name)
		return fmt.Errorf("failed to upload image data: %w", err)
	}

	return nil
}

// PullImage downloads the image at url and imports it as the base image for
// distro.
func (m *Manager) PullImage(ctx context.Context, url, distro string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp("", "k93s-image-*.qcow2")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	return m.ImportImage(ctx, tmp.Name(), distro)
}

// ListImages returns the distros whose base image is in the images pool,
// sorted.
func (m *Manager) ListImages(ctx context.Context) ([]string, error) {
	// files dropped into the pool directory by hand only show up after a refresh
	_ = m.RefreshPool(ctx, m.layout.ImagesPool)

	volumes, err := m.ListVolumes(ctx, m.layout.ImagesPool)
	if err != nil {
		return nil, err
	}

	var distros []string
	for _, vol := range volumes {
		if distro, ok := naming.DistroFromImage(vol.Name); ok {
			distros = append(distros, distro)
		}
	}
	sort.Strings(distros)
	return distros, nil
}

// MissingImages returns the distros from wanted that have no base image yet,
// in the order given.
func (m *Manager) MissingImages(ctx context.Context, wanted []string) ([]string, error) {
	present, err := m.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	have := make(map[string]bool, len(present))
	for _, distro := range present {
		have[distro] = true
	}

	var missing []string
	for _, distro := range wanted {
		if !have[distro] {
			missing = append(missing, distro)
			have[distro] = true
		}
	}
	return missing, nil
}

// DeleteImage deletes the base image for distro.
func (m *Manager) DeleteImage(ctx context.Context, distro string) error {
	return m.DeleteVolume(ctx, m.layout.ImagesPool, naming.ImageName(distro))
}
