package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectImageFormat(t *testing.T) {
	bootSector := func(size int) []byte {
		data := make([]byte, size)
		data[510] = 0x55
		data[511] = 0xaa
		return data
	}

	tests := []struct {
		name       string
		data       []byte
		wantFormat VolumeFormat
		wantErr    bool
	}{
		{
			name:       "qcow2 image with valid magic",
			data:       qcow2Bytes(),
			wantFormat: VolumeFormatQCOW2,
		},
		{
			name:       "qcow2 magic on a tiny file",
			data:       []byte{0x51, 0x46, 0x49, 0xfb},
			wantFormat: VolumeFormatQCOW2,
		},
		{
			name:       "bootable raw image",
			data:       bootSector(512),
			wantFormat: VolumeFormatRaw,
		},
		{
			name:       "bootable raw image larger than one sector",
			data:       bootSector(4096),
			wantFormat: VolumeFormatRaw,
		},
		{
			name:    "zeros without boot signature",
			data:    make([]byte, 512),
			wantErr: true,
		},
		{
			name: "reversed boot signature",
			data: func() []byte {
				data := make([]byte, 512)
				data[510], data[511] = 0xaa, 0x55
				return data
			}(),
			wantErr: true,
		},
		{
			name:    "file too small",
			data:    []byte{0x01, 0x02},
			wantErr: true,
		},
		{
			name:    "not qcow2 and shorter than a sector",
			data:    make([]byte, 100),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "image")
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatalf("write test file: %v", err)
			}

			got, err := DetectImageFormat(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectImageFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.wantFormat {
				t.Errorf("DetectImageFormat() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

func TestDetectImageFormat_MissingFile(t *testing.T) {
	if _, err := DetectImageFormat(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
