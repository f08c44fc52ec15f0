package eventlog

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the wire-level Event schema. There is no generated
// message type here; like the original's nanopb callbacks
// (event_encode/event_decode in event.c), every field is hand-encoded
// and hand-decoded one at a time with the raw wire-format primitives.
const (
	fieldType       = 1
	fieldBootNumber = 2
	fieldTimestamp  = 3
	fieldData       = 4

	fieldKVKey   = 1
	fieldKVValue = 2
)

// Encode serializes event to its wire form. It enforces MaxEventSize the
// same way the original bounds event_encode's stack buffer.
func Encode(event *Event) ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(event.Type))

	if event.BootNumber != nil {
		buf = protowire.AppendTag(buf, fieldBootNumber, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(*event.BootNumber))
	}
	if event.Timestamp != nil {
		buf = protowire.AppendTag(buf, fieldTimestamp, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(*event.Timestamp))
	}
	for _, kv := range event.Data {
		var sub []byte
		sub = protowire.AppendTag(sub, fieldKVKey, protowire.BytesType)
		sub = protowire.AppendString(sub, kv.Key)
		sub = protowire.AppendTag(sub, fieldKVValue, protowire.BytesType)
		sub = protowire.AppendString(sub, kv.Value)

		buf = protowire.AppendTag(buf, fieldData, protowire.BytesType)
		buf = protowire.AppendBytes(buf, sub)
	}

	if len(buf) > MaxEventSize {
		return nil, fmt.Errorf("%w: encoded length %d exceeds %d", ErrEventTooLarge, len(buf), MaxEventSize)
	}
	return buf, nil
}

// Decode parses an event's wire form. Unknown fields are skipped rather
// than rejected, so the schema can grow new fields without breaking
// readers of older events.
func Decode(buf []byte) (*Event, error) {
	event := &Event{}

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag: %v", ErrDecode, protowire.ParseError(n))
		}
		buf = buf[n:]

		switch num {
		case fieldType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, fmt.Errorf("%w: type field: %v", ErrDecode, protowire.ParseError(n))
			}
			event.Type = EventType(v)
			buf = buf[n:]

		case fieldBootNumber:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, fmt.Errorf("%w: boot_number field: %v", ErrDecode, protowire.ParseError(n))
			}
			event.BootNumber = uint32ptr(uint32(v))
			buf = buf[n:]

		case fieldTimestamp:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, fmt.Errorf("%w: timestamp field: %v", ErrDecode, protowire.ParseError(n))
			}
			event.Timestamp = uint32ptr(uint32(v))
			buf = buf[n:]

		case fieldData:
			sub, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, fmt.Errorf("%w: data field: %v", ErrDecode, protowire.ParseError(n))
			}
			kv, err := decodeKV(sub)
			if err != nil {
				return nil, err
			}
			event.Data = append(event.Data, kv)
			buf = buf[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return event, nil
}

func decodeKV(buf []byte) (KV, error) {
	var kv KV
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return KV{}, fmt.Errorf("%w: bad kv tag: %v", ErrDecode, protowire.ParseError(n))
		}
		buf = buf[n:]

		switch num {
		case fieldKVKey:
			s, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return KV{}, fmt.Errorf("%w: kv key: %v", ErrDecode, protowire.ParseError(n))
			}
			kv.Key = string(s)
			buf = buf[n:]
		case fieldKVValue:
			s, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return KV{}, fmt.Errorf("%w: kv value: %v", ErrDecode, protowire.ParseError(n))
			}
			kv.Value = string(s)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return KV{}, fmt.Errorf("%w: unknown kv field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return kv, nil
}
