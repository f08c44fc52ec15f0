// Package config loads and validates the YAML configuration consumed by
// this module's CLI front-ends: which flash backend to use, the region
// layout, and the event log's reclamation and mirroring policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RegionConfig describes one record-layer region in the YAML config.
type RegionConfig struct {
	Offset int64 `yaml:"offset"`
	Size   int64 `yaml:"size"`
}

// Config is the top-level configuration for a pblog-backed daemon or
// CLI tool.
type Config struct {
	// Device selects the flash backend: "file" or "ram".
	Device string `yaml:"device"`

	// Path is the backing file path. Required when Device == "file".
	Path string `yaml:"path"`

	// Regions lays out the record layer's erase regions, in order.
	Regions []RegionConfig `yaml:"regions"`

	// AllowClearOnAdd enables the event log's single-region
	// reclaim-and-retry policy on NO_SPACE.
	AllowClearOnAdd bool `yaml:"allow_clear_on_add"`

	// MirrorSize is the size in bytes of the event log's RAM mirror.
	// 0 disables the mirror.
	MirrorSize int64 `yaml:"mirror_size"`
}

const (
	DeviceFile = "file"
	DeviceRAM  = "ram"
)

// Load reads the YAML file at path, unmarshals it into a Config, applies
// defaults, and validates it. It returns a wrapped error describing what
// failed; validation failures are all reported together in one joined
// error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Device == "" {
		cfg.Device = DeviceFile
	}
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Device {
	case DeviceFile:
		if cfg.Path == "" {
			errs = append(errs, errors.New("path is required when device is \"file\""))
		}
	case DeviceRAM:
		// no path required
	default:
		errs = append(errs, fmt.Errorf("device %q must be one of: file, ram", cfg.Device))
	}

	if len(cfg.Regions) == 0 {
		errs = append(errs, errors.New("at least one region is required"))
	}

	var totalRegionSize int64
	sorted := append([]RegionConfig(nil), cfg.Regions...)
	for i, r := range sorted {
		if r.Size <= 0 {
			errs = append(errs, fmt.Errorf("regions[%d]: size must be positive, got %d", i, r.Size))
			continue
		}
		totalRegionSize += r.Size
		for j, other := range sorted {
			if j <= i {
				continue
			}
			if overlaps(r, other) {
				errs = append(errs, fmt.Errorf("regions[%d] and regions[%d] overlap", i, j))
			}
		}
	}

	if cfg.MirrorSize > 0 && cfg.MirrorSize < totalRegionSize {
		errs = append(errs, fmt.Errorf("mirror_size %d is smaller than total region size %d", cfg.MirrorSize, totalRegionSize))
	}

	return errors.Join(errs...)
}

func overlaps(a, b RegionConfig) bool {
	aEnd := a.Offset + a.Size
	bEnd := b.Offset + b.Size
	return a.Offset < bEnd && b.Offset < aEnd
}

// Save atomically writes cfg to path as YAML: write to a temp file in
// the same directory, fsync it, rename it over path, then fsync the
// directory so the rename itself is durable. No CLI tool in this module
// currently writes its own config back out, but this is the natural,
// tiny companion to Load.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	tmpf, err := os.OpenFile(tmpPath, os.O_RDWR, 0o644)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: reopen temp file: %w", err)
	}
	if err := tmpf.Sync(); err != nil {
		_ = tmpf.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: sync temp file: %w", err)
	}
	if err := tmpf.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: rename into place: %w", err)
	}

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("config: open dir for sync: %w", err)
	}
	defer d.Close() // nolint:errcheck
	if err := d.Sync(); err != nil {
		return fmt.Errorf("config: sync dir: %w", err)
	}
	return nil
}
