package kv

import "errors"

// ErrInvalidKey is returned by Set when key contains a NUL byte, which
// would collide with the key/value delimiter in the on-medium payload.
var ErrInvalidKey = errors.New("kv: key must not contain a NUL byte")

// errNothingToCompact is returned internally by compact when every
// record on the log is already live and distinct, so no free space
// could be recovered by rewriting. Set treats this as non-fatal and
// still attempts the append.
var errNothingToCompact = errors.New("kv: nothing to compact")
