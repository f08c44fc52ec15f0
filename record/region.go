package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Region describes one erase-unit of backing storage: a fixed offset and
// size on the flash.Device passed to Mount. Regions are arranged as a
// logical ring; Mount discovers which one is oldest from the sequence
// numbers already written on the medium.
type Region struct {
	Offset int64
	Size   int64
}

// regionState is the mutable, in-memory bookkeeping Mount recovers (or
// recreates) for each configured Region.
type regionState struct {
	offset   int64
	size     int64
	usedSize int64
	sequence uint32
}

// regionInit recovers reg's runtime state from the medium: if the header
// is unreadable or doesn't carry the magic, the region is (re)created
// fresh with a brand new sequence number, exactly as if it had just been
// cleared. Otherwise its used_size is recovered by scanning forward from
// the header.
func (l *Log) regionInit(reg *regionState) error {
	var hdr [regionHeaderLen]byte
	n, err := l.dev.Read(reg.offset, hdr[:])
	if err != nil || n != regionHeaderLen {
		return l.createRegion(reg, l.allocSequence())
	}
	if !bytes.Equal(hdr[:4], regionMagic[:]) {
		return l.createRegion(reg, l.allocSequence())
	}

	seq := binary.LittleEndian.Uint32(hdr[4:])
	if seq >= l.nextSequence {
		l.nextSequence = seq + 1
	}
	reg.sequence = seq
	reg.usedSize = l.calcUsedSize(reg)
	return nil
}

// createRegion erases reg and writes a fresh region header carrying
// sequence, leaving reg's used_size at exactly the header length.
func (l *Log) createRegion(reg *regionState, sequence uint32) error {
	if reg.size < regionHeaderLen {
		return fmt.Errorf("%w: region of size %d too small for header", ErrNoSpace, reg.size)
	}
	if err := l.dev.Erase(reg.offset, reg.size); err != nil {
		return fmt.Errorf("%w: erase region at %d: %v", ErrIO, reg.offset, err)
	}

	var hdr [regionHeaderLen]byte
	copy(hdr[:4], regionMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:], sequence)
	if _, err := l.dev.Write(reg.offset, hdr[:]); err != nil {
		return fmt.Errorf("%w: write region header at %d: %v", ErrIO, reg.offset, err)
	}

	reg.usedSize = regionHeaderLen
	reg.sequence = sequence
	return nil
}

// calcUsedSize walks the record framing from the start of reg's payload
// area, summing lengths until it hits a sentinel length or a length that
// runs past the region's end. It never checks a payload checksum: a
// corrupt-but-well-framed record still counts as used space during
// recovery, the same trade-off the original recovery scan makes.
func (l *Log) calcUsedSize(reg *regionState) int64 {
	offset := int64(regionHeaderLen)
	for {
		length, _, err := l.regionReadRecord(reg, int(offset), nil)
		if err != nil || length == 0 {
			break
		}
		offset += int64(length)
	}
	return offset
}

// regionReadRecord reads the record header at offsetInRegion within reg
// and, if buf is non-nil, its payload too. It returns the total on-medium
// record length (0 at a sentinel / unwritten tail), the payload length,
// and an error describing what went wrong, if anything.
//
// A nil buf requests a framing-only scan: no payload read, no checksum
// verification. Used both by calcUsedSize during Mount and by the
// public ReadRecord when the caller only wants to learn a record's size.
func (l *Log) regionReadRecord(reg *regionState, offsetInRegion int, buf []byte) (length int, dataLen int, err error) {
	if offsetInRegion > int(reg.size)-recordHeaderLen {
		return 0, 0, ErrInvalid
	}

	var hdr [recordHeaderLen]byte
	n, rerr := l.dev.Read(reg.offset+int64(offsetInRegion), hdr[:])
	if rerr != nil || n != recordHeaderLen {
		return 0, 0, fmt.Errorf("%w: record header read at %d: %v", ErrIO, offsetInRegion, rerr)
	}

	rlen := int(hdr[0])<<8 | int(hdr[1])
	if isSentinelLength(rlen) {
		return 0, 0, nil
	}

	dataLen = rlen - recordHeaderLen
	if dataLen < 0 || rlen > int(reg.size)-offsetInRegion {
		return 0, 0, ErrInvalid
	}

	if buf == nil {
		return rlen, dataLen, nil
	}
	if len(buf) < dataLen {
		return rlen, dataLen, ErrNoSpace
	}

	if _, rerr := l.dev.Read(reg.offset+int64(offsetInRegion)+recordHeaderLen, buf[:dataLen]); rerr != nil {
		return rlen, dataLen, fmt.Errorf("%w: record payload read at %d: %v", ErrIO, offsetInRegion, rerr)
	}
	if sum := checksum(hdr[:]) + checksum(buf[:dataLen]); sum != 0 {
		return rlen, dataLen, ErrChecksum
	}
	return rlen, dataLen, nil
}

// regionAppend writes payload as a new record at reg's current used_size
// offset, advancing used_size by the record's total on-medium length.
func (l *Log) regionAppend(reg *regionState, payload []byte) (int, error) {
	recordSize := len(payload) + recordHeaderLen
	if int64(recordSize) > reg.size-reg.usedSize {
		return 0, ErrNoSpace
	}

	var hdr [recordHeaderLen]byte
	hdr[0] = byte(recordSize >> 8)
	hdr[1] = byte(recordSize)
	hdr[2] = byte(-(checksum(hdr[:2]) + checksum(payload)))

	off := reg.offset + reg.usedSize
	if _, err := l.dev.Write(off, hdr[:]); err != nil {
		return 0, fmt.Errorf("%w: write record header at %d: %v", ErrIO, off, err)
	}
	if len(payload) > 0 {
		if _, err := l.dev.Write(off+recordHeaderLen, payload); err != nil {
			return 0, fmt.Errorf("%w: write record payload at %d: %v", ErrIO, off+recordHeaderLen, err)
		}
	}

	reg.usedSize += int64(recordSize)
	return recordSize, nil
}
