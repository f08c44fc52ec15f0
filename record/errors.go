package record

import "errors"

// Sentinel errors returned by the record layer. Callers should compare
// against these with errors.Is rather than matching on message text.
var (
	// ErrNoSpace means the requested write does not fit even after
	// advancing into every remaining region.
	ErrNoSpace = errors.New("record: no space")
	// ErrInvalid means a cursor, region count, or on-medium length field
	// did not make sense: a bad argument or corrupt framing.
	ErrInvalid = errors.New("record: invalid")
	// ErrChecksum means a record's framing was sound but its payload
	// checksum did not match.
	ErrChecksum = errors.New("record: checksum mismatch")
	// ErrIO wraps a failure reported by the underlying flash.Device.
	ErrIO = errors.New("record: i/o error")
)
