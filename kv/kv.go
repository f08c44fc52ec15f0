// Package kv implements a last-write-wins key/value overlay on top of a
// record.Log: each Set appends a new key/value record rather than
// updating one in place, and in-memory compaction reclaims space once
// the log is carrying too much shadowed history.
package kv

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/google/pblog/record"
)

// Entry is one surviving key/value pair, as returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store wraps a record.Log by exclusive reference: nothing else should
// append to or clear the underlying log while a Store is in use.
//
// Store is not safe for concurrent use; callers that share one across
// goroutines must serialize access externally, same as record.Log.
type Store struct {
	log *record.Log
}

// Open wraps log as a key/value store. log is assumed to already be
// mounted.
func Open(log *record.Log) *Store {
	return &Store{log: log}
}

func validateKey(key string) error {
	if strings.IndexByte(key, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func encode(key string, value []byte) []byte {
	buf := make([]byte, 0, len(key)+1+len(value))
	buf = append(buf, key...)
	buf = append(buf, 0)
	buf = append(buf, value...)
	return buf
}

// decode splits a record payload back into key and value at the first
// NUL byte. Keys are validated NUL-free on the way in, so the first NUL
// in a well-formed payload is always the delimiter.
func decode(payload []byte) (key string, value []byte, ok bool) {
	i := bytes.IndexByte(payload, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(payload[:i]), payload[i+1:], true
}

// forEach decodes every record on the log in append order, calling fn
// with each key/value pair that decodes cleanly. A record that fails to
// decode (missing delimiter, so not a valid kv payload) is skipped rather
// than treated as an error; a record with a checksum mismatch is still
// passed through, best-effort, the same way eventlog surfaces corrupt
// events rather than hiding them.
func (s *Store) forEach(fn func(key string, value []byte) error) error {
	cursor := 0
	for {
		next, n, err := s.log.ReadRecord(cursor, nil)
		if err != nil {
			return fmt.Errorf("kv: scan: %w", err)
		}
		if next == 0 {
			return nil
		}

		buf := make([]byte, n)
		if _, _, err := s.log.ReadRecord(cursor, buf); err != nil && !errors.Is(err, record.ErrChecksum) {
			return fmt.Errorf("kv: scan: %w", err)
		}

		if key, value, ok := decode(buf); ok {
			if err := fn(key, value); err != nil {
				return err
			}
		}
		cursor = next
	}
}

// Lookup returns the latest value stored for key, scanning from the
// head. An empty stored value is a tombstone and reports not-found.
func (s *Store) Lookup(key string) (Entry, bool, error) {
	if err := validateKey(key); err != nil {
		return Entry{}, false, err
	}

	var found Entry
	var ok bool
	err := s.forEach(func(k string, v []byte) error {
		if k == key {
			found = Entry{Key: k, Value: append([]byte(nil), v...)}
			ok = true
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	if !ok || len(found.Value) == 0 {
		return Entry{}, false, nil
	}
	return found, true, nil
}

// Set appends a new record for key/value, running an in-memory
// compaction first if doing so would leave the log dangerously close to
// full. A failed compaction (nothing could be reclaimed) is not itself
// an error here: Set still attempts the append, which may then fail
// with record.ErrNoSpace if the log is genuinely out of room.
func (s *Store) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	entryLen := len(key) + 1 + len(value)
	if s.log.FreeSpace()-entryLen < 2*entryLen {
		if _, err := s.compact(key); err != nil && !errors.Is(err, errNothingToCompact) {
			return fmt.Errorf("kv: set %q: %w", key, err)
		}
	}

	if _, err := s.log.Append(encode(key, value)); err != nil {
		return fmt.Errorf("kv: set %q: %w", key, err)
	}
	return nil
}

// Unset tombstones key: equivalent to Set(key, nil).
func (s *Store) Unset(key string) error {
	return s.Set(key, nil)
}

type kvRecord struct {
	key   string
	value []byte
}

// compact rewrites the log keeping only each key's latest non-tombstoned
// record, excluding pendingKey (whose new value Set is about to append
// separately). It returns the number of records dropped, or
// errNothingToCompact if every record on the log was already live.
func (s *Store) compact(pendingKey string) (int, error) {
	var all []kvRecord
	if err := s.forEach(func(k string, v []byte) error {
		all = append(all, kvRecord{key: k, value: append([]byte(nil), v...)})
		return nil
	}); err != nil {
		return 0, err
	}

	lastIndex := make(map[string]int, len(all))
	for i, e := range all {
		lastIndex[e.key] = i
	}

	survivors := make([]kvRecord, 0, len(all))
	for i, e := range all {
		if i != lastIndex[e.key] {
			continue // shadowed by a later entry with the same key
		}
		if e.key == pendingKey {
			continue // shadowed by the key being written right now
		}
		if len(e.value) == 0 {
			continue // tombstoned
		}
		survivors = append(survivors, e)
	}

	removed := len(all) - len(survivors)
	if removed == 0 {
		return 0, errNothingToCompact
	}

	if _, err := s.log.Clear(0); err != nil {
		return 0, fmt.Errorf("kv: compact: %w", err)
	}
	for _, e := range survivors {
		if _, err := s.log.Append(encode(e.key, e.value)); err != nil {
			return 0, fmt.Errorf("kv: compact: re-append survivor %q: %w", e.key, err)
		}
	}
	return removed, nil
}

// List returns every live (non-tombstoned) key/value pair, ordered by
// each key's first appearance in the log, the same scan order
// nvram_enumerate preserves in the original implementation.
func (s *Store) List() ([]Entry, error) {
	order := make([]string, 0)
	latest := make(map[string]Entry)

	err := s.forEach(func(k string, v []byte) error {
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = Entry{Key: k, Value: append([]byte(nil), v...)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(order))
	for _, k := range order {
		e := latest[k]
		if len(e.Value) == 0 {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear discards every record on the underlying log.
func (s *Store) Clear() error {
	if _, err := s.log.Clear(0); err != nil {
		return fmt.Errorf("kv: clear: %w", err)
	}
	return nil
}

// Find scans a caller-supplied entry list (typically a cached List()
// result) for key, returning the last match: a direct port of
// nvram_list_find for repeated point lookups without re-scanning flash.
func Find(entries []Entry, key string) (Entry, bool) {
	var found Entry
	var ok bool
	for _, e := range entries {
		if e.Key == key {
			found = e
			ok = true
		}
	}
	return found, ok
}
