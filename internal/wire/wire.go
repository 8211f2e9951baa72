// Package wire frames order-store values for byte providers.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version     byte = 1
	kindRecord  byte = 1
	kindIndex   byte = 2
	recordHdr        = 4 + 1 + 1 + 8 + 8 + 4
	indexHdr         = 4 + 1 + 1 + 4
	maxIDLength      = 0xFFFF
)

var (
	ErrCorrupt = errors.New("wire: corrupt entry")
	ErrIDLen   = errors.New("wire: id length out of range")
	magic4     = [...]byte{'B', 'R', 'E', 'W'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record is one stored value with the generation it was written under.
type Record struct {
	Gen       uint64
	UpdatedAt time.Time
	Payload   []byte
}

// Record: magic(4) | ver(1) | kind(1=record) | gen(u64 be) | updated(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
func EncodeRecord(r Record) []byte {
	var buf bytes.Buffer
	buf.Grow(recordHdr + len(r.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], r.Gen)
	buf.Write(u8[:])

	var nanos int64
	if !r.UpdatedAt.IsZero() {
		nanos = r.UpdatedAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(nanos))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])

	buf.Write(r.Payload)
	return buf.Bytes()
}

// DecodeRecord returns a Record whose Payload aliases b.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < recordHdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return Record{}, ErrCorrupt
	}
	off := 6

	var r Record
	r.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	if nanos := int64(binary.BigEndian.Uint64(b[off : off+8])); nanos != 0 {
		r.UpdatedAt = time.Unix(0, nanos).UTC()
	}
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off { // no trailing bytes
		return Record{}, ErrCorrupt
	}
	r.Payload = b[off : off+vlen]
	return r, nil
}

// Index: magic(4) | ver(1) | kind(2=index) | n(u32 be) | (idLen(u16 be) | id(idLen)) * n
func EncodeIndex(ids []string) ([]byte, error) {
	total := indexHdr
	for _, id := range ids {
		if l := len(id); l == 0 || l > maxIDLength {
			return nil, ErrIDLen
		}
		total += 2 + len(id)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindIndex)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(ids)))
	buf.Write(u4[:])

	for _, id := range ids {
		binary.BigEndian.PutUint16(u2[:], uint16(len(id)))
		buf.Write(u2[:])
		buf.WriteString(id)
	}
	return buf.Bytes(), nil
}

func DecodeIndex(b []byte) ([]string, error) {
	if len(b) < indexHdr || !hasMagic(b) || b[4] != version || b[5] != kindIndex {
		return nil, ErrCorrupt
	}
	off := 6

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// every id takes at least 3 bytes
	if n < 0 || n > (len(b)-off)/3 {
		return nil, ErrCorrupt
	}

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		l := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if l <= 0 || l > len(b)-off {
			return nil, ErrCorrupt
		}
		ids = append(ids, string(b[off:off+l]))
		off += l
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return ids, nil
}
