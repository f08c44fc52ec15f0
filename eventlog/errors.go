package eventlog

import "errors"

// ErrEventTooLarge is returned by Encode when an event's wire form would
// exceed MaxEventSize.
var ErrEventTooLarge = errors.New("eventlog: encoded event exceeds MaxEventSize")

// ErrDecode is returned by Decode when a payload's wire framing doesn't
// parse as a valid event, independent of the record layer's own
// checksum: a record can pass its checksum and still fail to decode,
// or fail its checksum and still decode cleanly.
var ErrDecode = errors.New("eventlog: malformed event payload")
