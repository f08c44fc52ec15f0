// Package record implements the append-only, log-structured layer that
// everything else in this module is built on: a fixed ring of flash
// erase-regions, each holding a sequence of checksummed records, with the
// oldest region reclaimed a whole erase-unit at a time.
//
// A Log is not safe for concurrent use. Callers that need to share one
// across goroutines must serialize access themselves (see
// internal/nvramrpc for the one place in this module that does).
package record

import (
	"errors"
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/zeebo/xxh3"

	"github.com/google/pblog/flash"
)

// Log is a mounted record store: a ring of regions on a flash.Device,
// recovered or (re)created by Mount.
type Log struct {
	dev flash.Device

	regions      []regionState
	headRegion   int
	usedRegions  int
	nextSequence uint32

	// live holds the indices of regions that carry a valid header, either
	// recovered or (re)created by Mount or re-created by Clear, for
	// diagnostics only (see Stats). A region
	// that failed catastrophically and was marked size 0 is absent from
	// this set but remains in regions so ring indexing stays stable.
	live mapset.Set[int]
}

// Mount recovers (or, for a never-before-used or corrupt region,
// initializes) a Log across regions on dev. At least one region is
// required.
//
// Mount is resilient by design: a region whose header can't be read, or
// whose magic doesn't match, is silently recreated rather than treated as
// a mount failure. Only a region that also fails to be recreated (e.g. an
// erase or write that itself errors) is dropped (marked size 0 and
// skipped) without aborting the mount.
func Mount(regions []Region, dev flash.Device) (*Log, error) {
	if len(regions) < 1 {
		return nil, fmt.Errorf("%w: mount requires at least one region", ErrInvalid)
	}

	l := &Log{
		dev:     dev,
		regions: make([]regionState, len(regions)),
		live:    mapset.NewThreadUnsafeSet[int](),
	}
	for i, r := range regions {
		if r.Size < regionHeaderLen {
			return nil, fmt.Errorf("%w: region %d of size %d smaller than header", ErrInvalid, i, r.Size)
		}
		l.regions[i] = regionState{offset: r.Offset, size: r.Size}
	}

	for i := range l.regions {
		if err := l.regionInit(&l.regions[i]); err != nil {
			l.regions[i].size = 0
			l.regions[i].usedSize = 0
			continue
		}
		l.live.Add(i)
	}

	l.initHeadRegion()
	l.initUsedRegions()

	return l, nil
}

func (l *Log) allocSequence() uint32 {
	seq := l.nextSequence
	l.nextSequence++
	return seq
}

// initHeadRegion picks the region with the smallest recovered sequence
// number as the logical head of the ring; ties favor the smaller index.
func (l *Log) initHeadRegion() {
	head := 0
	var minSeq uint32 = math.MaxUint32
	for i, r := range l.regions {
		if r.sequence < minSeq {
			minSeq = r.sequence
			head = i
		}
	}
	l.headRegion = head
}

// initUsedRegions counts how many regions, walked head-relative, hold
// more than just a bare header (i.e. are actually in active use), and
// stops at the first one that doesn't. At least one region is always
// considered in use.
func (l *Log) initUsedRegions() {
	used := 0
	for i := 0; i < len(l.regions); i++ {
		if l.regionAt(i).usedSize > regionHeaderLen {
			used++
		} else {
			break
		}
	}
	if used < 1 {
		used = 1
	}
	l.usedRegions = used
}

// regionAt returns the region at head-relative index i, wrapping around
// the ring.
func (l *Log) regionAt(i int) *regionState {
	idx := (l.headRegion + i) % len(l.regions)
	return &l.regions[idx]
}

// Append writes payload as a new record at the tail of the log, rolling
// over into the next region if it doesn't fit in the current tail and
// one is available. It returns the number of on-medium bytes the record
// occupied (payload length plus header).
func (l *Log) Append(payload []byte) (int, error) {
	recordSize := len(payload) + recordHeaderLen
	tail := l.regionAt(l.usedRegions - 1)

	if int64(recordSize) > tail.size-tail.usedSize {
		if l.usedRegions >= len(l.regions) {
			return 0, fmt.Errorf("%w: record of %d bytes exceeds remaining capacity", ErrNoSpace, recordSize)
		}
		l.usedRegions++
		tail = l.regionAt(l.usedRegions - 1)
	}

	return l.regionAppend(tail, payload)
}

// resolve walks the head-relative region ring to find which live region
// (and offset within it) the flat cursor value falls in. The walk
// mirrors the original record layer's cursor arithmetic exactly,
// including its edge case: on reaching the end of the in-use regions
// without finding the cursor, the last region visited is reused to
// decide whether cursor legitimately points one-past-the-end (a clean
// end-of-log) or somewhere invalid.
func (l *Log) resolve(cursor int) (reg *regionState, offsetInRegion int, endOfLog bool, ok bool) {
	offset := cursor
	i := 0
	for ; i < l.usedRegions; i++ {
		offset += regionHeaderLen
		reg = l.regionAt(i)
		if int64(offset) < reg.usedSize {
			break
		}
		offset -= int(reg.usedSize)
	}

	if i >= l.usedRegions {
		if offset == 0 || (reg != nil && int64(offset) == reg.usedSize) {
			return nil, 0, true, true
		}
		return nil, 0, false, false
	}
	return reg, offset, false, true
}

// ReadRecord reads the record at cursor (0 for the first record) into
// buf, returning the cursor of the following record, the payload length,
// and an error.
//
// A nil buf requests framing only: the returned length is still correct,
// but no payload bytes are copied or checksum-verified. If buf is
// non-nil but shorter than the record's payload, ReadRecord returns
// ErrNoSpace with the payload length so the caller can retry with a
// bigger buffer; the cursor still advances correctly in this case.
// Reaching the end of the log returns cursor 0, length 0, nil error.
func (l *Log) ReadRecord(cursor int, buf []byte) (nextCursor int, n int, err error) {
	if cursor < 0 {
		return 0, 0, fmt.Errorf("%w: negative cursor %d", ErrInvalid, cursor)
	}

	reg, offsetInRegion, endOfLog, ok := l.resolve(cursor)
	if !ok {
		return 0, 0, fmt.Errorf("%w: cursor %d does not land on a record boundary", ErrInvalid, cursor)
	}
	if endOfLog {
		return 0, 0, nil
	}

	length, dataLen, rerr := l.regionReadRecord(reg, offsetInRegion, buf)
	switch {
	case rerr != nil && !errors.Is(rerr, ErrNoSpace) && !errors.Is(rerr, ErrChecksum):
		return 0, 0, rerr
	case length == 0:
		return 0, 0, nil
	default:
		return cursor + length, dataLen, rerr
	}
}

// FreeSpace returns the raw bytes left in the current tail region plus
// every region beyond it, minus one record header, clamped at 0. Within
// a single region this is exactly the largest payload that still fits;
// across regions it is an upper bound, since a record cannot span two
// regions and each record needs its own header.
func (l *Log) FreeSpace() int {
	var free int64
	for i := l.usedRegions - 1; i < len(l.regions); i++ {
		reg := l.regionAt(i)
		free += reg.size - reg.usedSize
	}
	free -= recordHeaderLen
	if free < 0 {
		return 0
	}
	return int(free)
}

// Clear reclaims the oldest k regions as a unit, erasing and
// re-initializing each with a fresh sequence number and advancing the
// head of the ring past them. k == 0 (or k spanning the whole ring)
// reclaims everything except the log always keeps at least one region in
// use afterward. It returns the number of raw bytes reclaimed.
func (l *Log) Clear(k int) (int, error) {
	if k <= 0 || k > len(l.regions) {
		k = len(l.regions)
	}

	var freed int64
	for i := 0; i < k; i++ {
		reg := l.regionAt(i)
		freed += reg.size
		if err := l.createRegion(reg, l.allocSequence()); err != nil {
			return 0, fmt.Errorf("record: clear region %d: %w", i, err)
		}
		l.live.Add((l.headRegion + i) % len(l.regions))
	}

	l.headRegion = (l.headRegion + k) % len(l.regions)
	l.usedRegions -= k
	if l.usedRegions < 1 {
		l.usedRegions = 1
	}
	return int(freed), nil
}

// RegionStats is a snapshot of one region's runtime state, for
// diagnostics and the pblogdump tool.
type RegionStats struct {
	Offset   int64
	Size     int64
	UsedSize int64
	Sequence uint32
	Live     bool
}

// LogStats is a snapshot of a Log's runtime state.
type LogStats struct {
	HeadRegion   int
	UsedRegions  int
	NextSequence uint32
	Regions      []RegionStats
}

// Stats returns a snapshot of the log's current runtime state.
func (l *Log) Stats() LogStats {
	stats := LogStats{
		HeadRegion:   l.headRegion,
		UsedRegions:  l.usedRegions,
		NextSequence: l.nextSequence,
		Regions:      make([]RegionStats, len(l.regions)),
	}
	for i, r := range l.regions {
		stats.Regions[i] = RegionStats{
			Offset:   r.offset,
			Size:     r.size,
			UsedSize: r.usedSize,
			Sequence: r.sequence,
			Live:     l.live.Contains(i),
		}
	}
	return stats
}

// Digest returns an xxh3 hash over every record's payload, in log order.
// It's a diagnostic tool, not part of the on-medium format: two logs
// with the same records but different region layouts hash the same; two
// logs with a single differing byte don't.
func (l *Log) Digest() uint64 {
	h := xxh3.New()
	cursor := 0
	for {
		next, n, err := l.ReadRecord(cursor, nil)
		if err != nil || next == 0 {
			break
		}
		payload := make([]byte, n)
		_, _, err = l.ReadRecord(cursor, payload)
		if err != nil && !errors.Is(err, ErrChecksum) {
			break
		}
		_, _ = h.Write(payload)
		cursor = next
	}
	return h.Sum64()
}
