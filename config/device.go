package config

import (
	"fmt"

	"github.com/google/pblog/flash"
	"github.com/google/pblog/record"
)

// OpenDevice constructs the flash.Device cfg describes: a file backend
// sized to AddressableSize so every configured region fits, or a RAM
// backend of the same size for throwaway/test configurations.
func (cfg *Config) OpenDevice() (flash.Device, error) {
	size := cfg.AddressableSize()

	switch cfg.Device {
	case DeviceFile:
		dev, err := flash.OpenFile(cfg.Path, size)
		if err != nil {
			return nil, fmt.Errorf("config: open device: %w", err)
		}
		return dev, nil
	case DeviceRAM:
		return flash.NewRAM(int(size)), nil
	default:
		return nil, fmt.Errorf("config: unknown device %q", cfg.Device)
	}
}

// AddressableSize returns the offset one past the end of the
// highest-addressed configured region: the minimum device size that
// can hold every region.
func (cfg *Config) AddressableSize() int64 {
	var total int64
	for _, r := range cfg.Regions {
		if end := r.Offset + r.Size; end > total {
			total = end
		}
	}
	return total
}

// RecordRegions converts cfg's YAML region list to the record package's
// type.
func (cfg *Config) RecordRegions() []record.Region {
	regions := make([]record.Region, len(cfg.Regions))
	for i, r := range cfg.Regions {
		regions[i] = record.Region{Offset: r.Offset, Size: r.Size}
	}
	return regions
}

// OpenMirror returns a RAM-backed record.Log sized to MirrorSize (or to
// AddressableSize, if that is larger) and laid out with the same regions
// as flash, or nil if mirroring is disabled (MirrorSize == 0).
func (cfg *Config) OpenMirror() (*record.Log, error) {
	if cfg.MirrorSize <= 0 {
		return nil, nil
	}
	size := cfg.MirrorSize
	if addressable := cfg.AddressableSize(); addressable > size {
		size = addressable
	}
	dev := flash.NewRAM(int(size))
	mirror, err := record.Mount(cfg.RecordRegions(), dev)
	if err != nil {
		return nil, fmt.Errorf("config: mount mirror: %w", err)
	}
	return mirror, nil
}
