package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pblog.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
device: file
path: /var/lib/pblog/flash.img
regions:
  - offset: 0
    size: 4096
  - offset: 4096
    size: 4096
allow_clear_on_add: true
mirror_size: 8192
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device != DeviceFile {
		t.Fatalf("got device %q, want %q", cfg.Device, DeviceFile)
	}
	if len(cfg.Regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(cfg.Regions))
	}
	if !cfg.AllowClearOnAdd {
		t.Fatal("expected allow_clear_on_add true")
	}
}

func TestLoadDefaultsDeviceToFile(t *testing.T) {
	path := writeConfig(t, `
path: /tmp/flash.img
regions:
  - offset: 0
    size: 1024
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device != DeviceFile {
		t.Fatalf("got device %q, want default %q", cfg.Device, DeviceFile)
	}
}

func TestLoadRAMDeviceDoesNotRequirePath(t *testing.T) {
	path := writeConfig(t, `
device: ram
regions:
  - offset: 0
    size: 1024
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsMissingPathForFileDevice(t *testing.T) {
	path := writeConfig(t, `
device: file
regions:
  - offset: 0
    size: 1024
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing path")
	}
}

func TestLoadRejectsOverlappingRegions(t *testing.T) {
	path := writeConfig(t, `
device: ram
regions:
  - offset: 0
    size: 1024
  - offset: 512
    size: 1024
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for overlapping regions")
	}
}

func TestLoadRejectsUndersizedMirror(t *testing.T) {
	path := writeConfig(t, `
device: ram
regions:
  - offset: 0
    size: 4096
  - offset: 4096
    size: 4096
mirror_size: 2048
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for undersized mirror")
	}
}

func TestLoadRejectsUnknownDevice(t *testing.T) {
	path := writeConfig(t, `
device: floppy
regions:
  - offset: 0
    size: 1024
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown device")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pblog.yaml")

	cfg := &Config{
		Device: DeviceRAM,
		Regions: []RegionConfig{
			{Offset: 0, Size: 2048},
		},
		MirrorSize: 4096,
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if loaded.Device != DeviceRAM || len(loaded.Regions) != 1 || loaded.Regions[0].Size != 2048 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
