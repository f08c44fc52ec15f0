// Package eventlog implements a structured event store on top of
// record.Log: events are encoded with the codec in this package and
// appended as opaque record payloads, with an optional RAM-backed
// mirror kept in step with the flash copy for fast iteration.
package eventlog

import (
	"errors"
	"fmt"

	"github.com/google/pblog/record"
)

// Log composes a flash-backed record.Log with an optional mirror
// record.Log (typically backed by flash.RAM). Reads prefer the mirror
// when one is configured; writes always go to flash first, then mirror.
//
// Log is not safe for concurrent use; callers that share one across
// goroutines must serialize access externally, same as record.Log.
type Log struct {
	flash  *record.Log
	mirror *record.Log

	allowClearOnAdd bool
	bootNumberFunc  func() uint32
	timeNowFunc     func() uint32
}

// Option configures a Log at construction.
type Option func(*Log)

// WithMirror attaches a RAM-backed record.Log that mirrors flash's
// content for faster reads. The mirror is resynced from flash during
// Open, since a RAM mirror carries no state across process restarts.
func WithMirror(mirror *record.Log) Option {
	return func(l *Log) { l.mirror = mirror }
}

// WithAllowClearOnAdd enables the single-region reclaim-and-retry policy
// on NO_SPACE during Add. It is off by default, matching the original's
// conservative default of surfacing NO_SPACE to the caller.
func WithAllowClearOnAdd(allow bool) Option {
	return func(l *Log) { l.allowClearOnAdd = allow }
}

// WithBootNumberFunc configures the hook Add uses to stamp an event's
// BootNumber when the caller didn't already set one.
func WithBootNumberFunc(f func() uint32) Option {
	return func(l *Log) { l.bootNumberFunc = f }
}

// WithTimeNowFunc configures the hook Add uses to stamp an event's
// Timestamp when the caller didn't already set one.
func WithTimeNowFunc(f func() uint32) Option {
	return func(l *Log) { l.timeNowFunc = f }
}

// Open wraps flashLog (and, if configured, a mirror) as an event log. If
// a mirror is configured, it is resynced from flash first. If the
// resulting scan yields zero valid events (a blank medium, or a mirror
// with nothing copied in), a LogCleared marker is appended so readers
// always see a defined origin.
func Open(flashLog *record.Log, opts ...Option) (*Log, error) {
	l := &Log{flash: flashLog}
	for _, opt := range opts {
		opt(l)
	}

	if l.mirror != nil {
		if err := resync(l.mirror, l.flash); err != nil {
			return nil, fmt.Errorf("eventlog: open: resync mirror: %w", err)
		}
	}

	validCount, err := l.countValid()
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	if validCount == 0 {
		if err := l.appendMarker(); err != nil {
			return nil, fmt.Errorf("eventlog: open: %w", err)
		}
	}
	return l, nil
}

func (l *Log) primary() *record.Log {
	if l.mirror != nil {
		return l.mirror
	}
	return l.flash
}

// Add encodes event, stamping BootNumber/Timestamp from the configured
// hooks when the caller left them nil, and appends it to flash then the
// mirror. If flash is out of space and allow-clear-on-add is enabled, it
// reclaims the oldest flash region, resyncs the mirror, appends a
// LogCleared marker, and retries the original append once.
func (l *Log) Add(event *Event) error {
	if event.BootNumber == nil && l.bootNumberFunc != nil {
		event.BootNumber = uint32ptr(l.bootNumberFunc())
	}
	if event.Timestamp == nil && l.timeNowFunc != nil {
		event.Timestamp = uint32ptr(l.timeNowFunc())
	}
	return l.appendEvent(event)
}

func (l *Log) appendEvent(event *Event) error {
	payload, err := Encode(event)
	if err != nil {
		return fmt.Errorf("eventlog: add: %w", err)
	}
	return l.appendPayload(payload)
}

func (l *Log) appendPayload(payload []byte) error {
	_, err := l.flash.Append(payload)
	if err != nil {
		if errors.Is(err, record.ErrNoSpace) && l.allowClearOnAdd {
			return l.reclaimAndRetry(payload)
		}
		return fmt.Errorf("eventlog: add: %w", err)
	}
	if l.mirror != nil {
		if _, err := l.mirror.Append(payload); err != nil {
			return fmt.Errorf("eventlog: mirror append: %w", err)
		}
	}
	return nil
}

// reclaimAndRetry implements the overflow recovery path: clear exactly
// one flash region, rebuild the mirror from the surviving flash content,
// append a LogCleared marker, then retry the original append.
func (l *Log) reclaimAndRetry(payload []byte) error {
	if _, err := l.flash.Clear(1); err != nil {
		return fmt.Errorf("eventlog: reclaim: clear flash region: %w", err)
	}

	if l.mirror != nil {
		if _, err := l.mirror.Clear(0); err != nil {
			return fmt.Errorf("eventlog: reclaim: clear mirror: %w", err)
		}
		if err := resync(l.mirror, l.flash); err != nil {
			return fmt.Errorf("eventlog: reclaim: resync mirror: %w", err)
		}
	}

	if err := l.appendMarker(); err != nil {
		return fmt.Errorf("eventlog: reclaim: %w", err)
	}

	if _, err := l.flash.Append(payload); err != nil {
		return fmt.Errorf("eventlog: reclaim: retry append: %w", err)
	}
	if l.mirror != nil {
		if _, err := l.mirror.Append(payload); err != nil {
			return fmt.Errorf("eventlog: reclaim: mirror retry append: %w", err)
		}
	}
	return nil
}

func (l *Log) appendMarker() error {
	return l.appendEvent(&Event{Type: EventLogCleared})
}

// Clear discards every record on flash and the mirror, then appends a
// fresh LogCleared marker.
func (l *Log) Clear() error {
	if _, err := l.flash.Clear(0); err != nil {
		return fmt.Errorf("eventlog: clear: %w", err)
	}
	if l.mirror != nil {
		if _, err := l.mirror.Clear(0); err != nil {
			return fmt.Errorf("eventlog: clear mirror: %w", err)
		}
	}
	return l.appendMarker()
}

// ForEach scans every record in the preferred log (mirror if configured,
// else flash), decoding each as an Event. valid is true only when both
// the record's checksum and its decode succeeded. A checksum failure
// still yields the decoded event with valid set to false; a decode
// failure yields an empty Event with valid set to false. Neither is
// skipped silently. fn returning a
// non-nil error aborts the scan and that error is returned.
func (l *Log) ForEach(fn func(valid bool, event *Event) error) error {
	src := l.primary()
	cursor := 0
	for {
		next, n, err := src.ReadRecord(cursor, nil)
		if err != nil {
			if errors.Is(err, record.ErrInvalid) {
				return nil
			}
			return fmt.Errorf("eventlog: scan: %w", err)
		}
		if next == 0 {
			return nil
		}

		buf := make([]byte, n)
		_, _, rerr := src.ReadRecord(cursor, buf)
		if rerr != nil && !errors.Is(rerr, record.ErrChecksum) {
			return fmt.Errorf("eventlog: scan: %w", rerr)
		}

		event, decErr := Decode(buf)
		valid := rerr == nil && decErr == nil
		if decErr != nil {
			event = &Event{}
		}

		if err := fn(valid, event); err != nil {
			return err
		}
		cursor = next
	}
}

func (l *Log) countValid() (int, error) {
	n := 0
	err := l.ForEach(func(valid bool, _ *Event) error {
		if valid {
			n++
		}
		return nil
	})
	return n, err
}

// resync copies every record from src to dst, stopping (without error)
// at the first record whose framing is invalid. A record with a
// checksum mismatch is still copied, since its framing (and therefore
// its length and position) is sound; only a record's payload content
// failed to verify.
func resync(dst, src *record.Log) error {
	cursor := 0
	for {
		next, n, err := src.ReadRecord(cursor, nil)
		if err != nil {
			if errors.Is(err, record.ErrInvalid) {
				return nil
			}
			return err
		}
		if next == 0 {
			return nil
		}

		buf := make([]byte, n)
		_, _, rerr := src.ReadRecord(cursor, buf)
		if rerr != nil && !errors.Is(rerr, record.ErrChecksum) {
			return rerr
		}

		if _, err := dst.Append(buf); err != nil {
			return err
		}
		cursor = next
	}
}
