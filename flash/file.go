package flash

import (
	"fmt"
	"os"
)

// File is a Device backed by a single on-disk file, addressed at fixed
// offsets with ReadAt/WriteAt. A flash image is randomly addressable
// from the start: every region offset must exist on disk before
// anything has been written there, so OpenFile pre-sizes the file with
// Truncate and always round-trips newly added bytes through a real
// write of 0xFF rather than assuming sparse reads return zeroes.
type File struct {
	f *os.File
}

// OpenFile opens (creating if necessary) the file at path and ensures it
// is at least size bytes long, erasing (0xFF) any newly added tail.
func OpenFile(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flash: open %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flash: stat %q: %w", path, err)
	}

	dev := &File{f: f}
	if info.Size() < size {
		if err := dev.growTo(info.Size(), size); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return dev, nil
}

// growTo extends the file from its current size to newSize, filling the
// new tail with 0xFF so it reads the same way real erased flash would.
func (d *File) growTo(oldSize, newSize int64) error {
	if err := d.f.Truncate(newSize); err != nil {
		return fmt.Errorf("flash: truncate to %d: %w", newSize, err)
	}
	return d.Erase(oldSize, newSize-oldSize)
}

func (d *File) Read(offset int64, p []byte) (int, error) {
	n, err := d.f.ReadAt(p, offset)
	if err != nil {
		return n, fmt.Errorf("%w: file read at %d: %v", ErrShortIO, offset, err)
	}
	return n, nil
}

func (d *File) Write(offset int64, p []byte) (int, error) {
	n, err := d.f.WriteAt(p, offset)
	if err != nil {
		return n, fmt.Errorf("%w: file write at %d: %v", ErrShortIO, offset, err)
	}
	return n, nil
}

// Erase writes 0xFF across [offset, offset+length), matching the
// original's file_erase, which builds an 0xFF buffer and routes it
// through the same write path rather than relying on any sparse-file or
// TRIM semantics.
func (d *File) Erase(offset int64, length int64) error {
	const chunkSize = 4096
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0xFF
	}

	for remaining := length; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := d.Write(offset, buf[:n]); err != nil {
			return fmt.Errorf("flash: erase at %d len %d: %w", offset, length, err)
		}
		offset += n
		remaining -= n
	}
	return nil
}

// Sync flushes the underlying file to stable storage.
func (d *File) Sync() error {
	return d.f.Sync()
}

// Close closes the underlying file handle.
func (d *File) Close() error {
	return d.f.Close()
}
