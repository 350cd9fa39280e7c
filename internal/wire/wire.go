// Package wire frames the bytes swcache hands to a provider.
//
// Entry:   magic(4) | ver(1) | kind(1=entry) | gen(u64 be) | vlen(u32 be) | payload(vlen)
// Catalog: magic(4) | ver(1) | kind(2=catalog) | n(u32 be)
//
//	{ nameLen(u16 be) | name | gen(u64 be) | vlen(u32 be) | payload(vlen) } * n
//
// Decoders reject trailing bytes.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version     byte = 1
	kindEntry   byte = 1
	kindCatalog byte = 2
)

var (
	ErrCorrupt = errors.New("swcache: corrupt frame")
	magic4     = [...]byte{'S', 'W', 'C', 'E'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeEntry frames an encoded response with the generation of the store it
// was written to.
func EncodeEntry(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeEntry returns a payload slice aliasing b.
func DecodeEntry(b []byte) (gen uint64, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}
	off := 6

	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}
	return gen, b[off : off+vlen], nil
}

// Record is one store in the catalog frame.
type Record struct {
	Name    string
	Gen     uint64
	Payload []byte
}

func EncodeCatalog(recs []Record) ([]byte, error) {
	total := 4 + 1 + 1 + 4
	for _, r := range recs {
		if l := len(r.Name); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("swcache: invalid store name length %d", l)
		}
		total += 2 + len(r.Name) + 8 + 4 + len(r.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindCatalog)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(recs)))
	buf.Write(u4[:])

	for _, r := range recs {
		binary.BigEndian.PutUint16(u2[:], uint16(len(r.Name)))
		buf.Write(u2[:])
		buf.WriteString(r.Name)

		binary.BigEndian.PutUint64(u8[:], r.Gen)
		buf.Write(u8[:])

		binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
		buf.Write(u4[:])
		buf.Write(r.Payload)
	}
	return buf.Bytes(), nil
}

func DecodeCatalog(b []byte) ([]Record, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindCatalog {
		return nil, ErrCorrupt
	}
	off := 6

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// every record needs at least 2+1+8+4 bytes
	if n > (len(b)-off)/15 {
		return nil, ErrCorrupt
	}

	recs := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		nlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if nlen == 0 || nlen > len(b)-off {
			return nil, ErrCorrupt
		}
		name := string(b[off : off+nlen])
		off += nlen

		if off+8 > len(b) {
			return nil, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8

		if off+4 > len(b) {
			return nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen > len(b)-off {
			return nil, ErrCorrupt
		}
		payload := b[off : off+vlen]
		off += vlen

		recs = append(recs, Record{Name: name, Gen: gen, Payload: payload})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return recs, nil
}
