// Package flash defines the byte-addressable read/write/erase port that the
// record layer drives, along with a couple of concrete backends.
package flash

import "errors"

// ErrShortIO is wrapped around any read, write, or erase that did not
// transfer the requested number of bytes, or that otherwise failed at the
// device level.
var ErrShortIO = errors.New("flash: short i/o")

// Device is the minimal capability set the record layer needs from a
// backing medium: read, write, erase. Read and Write return the number
// of bytes actually transferred; Erase returns only an error. A negative
// count never appears in this Go
// rendition; failures are reported through the error return instead, but
// short transfers (n less than requested, err == nil) are still possible
// and callers must treat them the same as an error.
type Device interface {
	// Read copies len(p) bytes starting at offset into p.
	Read(offset int64, p []byte) (n int, err error)
	// Write copies len(p) bytes from p to offset.
	Write(offset int64, p []byte) (n int, err error)
	// Erase resets [offset, offset+length) to 0xFF.
	Erase(offset int64, length int64) error
}
