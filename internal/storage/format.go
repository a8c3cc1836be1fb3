package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

var (
	// qcow2Magic is "QFI" followed by 0xfb at offset 0.
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature sits at offset 510 of a bootable disk. GPT disks carry it
	// too, in their protective MBR.
	mbrSignature = []byte{0x55, 0xaa}
)

// DetectImageFormat reads the magic bytes of filePath. It returns
// VolumeFormatQCOW2 for qcow2 images, VolumeFormatRaw for raw images with a
// boot sector, and an error for anything else.
func DetectImageFormat(filePath string) (VolumeFormat, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return detectFormat(f)
}

func detectFormat(r io.ReadSeeker) (VolumeFormat, error) {
	magic := make([]byte, len(qcow2Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return "", fmt.Errorf("file too small to be valid image (< 4 bytes): %w", err)
	}
	if bytes.Equal(magic, qcow2Magic) {
		return VolumeFormatQCOW2, nil
	}

	if _, err := r.Seek(510, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek to boot sector signature: %w", err)
	}

	sig := make([]byte, len(mbrSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return "", fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}
	if bytes.Equal(sig, mbrSignature) {
		return VolumeFormatRaw, nil
	}

	return "", fmt.Errorf("unsupported or invalid image: not qcow2 and missing boot sector signature")
}
