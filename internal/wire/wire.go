package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("flightcache: corrupt spill frame")
	magic4     = [...]byte{'F', 'L', 'T', 'C'}
)

const hdrLen = 4 + 1 + 8 + 8 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Frame: magic(4) | ver(1) | rev(u64 be) | exp(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
//
// rev is the spill keyspace revision the frame was written under; exp is the
// entry's absolute expiry. Both are validated by the reader, so a store with
// only coarse TTL support (or none) still cannot serve stale data.
func Encode(rev uint64, expiresAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], rev)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(expiresAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode validates the frame strictly: bad magic, wrong version, announced
// lengths beyond the buffer, and trailing junk are all ErrCorrupt. The
// returned payload aliases b (zero-copy).
func Decode(b []byte) (rev uint64, expiresAt time.Time, payload []byte, err error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return 0, time.Time{}, nil, ErrCorrupt
	}

	off := 5

	rev = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	expiresAt = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:off+8])))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || len(b)-off != vlen {
		return 0, time.Time{}, nil, ErrCorrupt
	}

	return rev, expiresAt, b[off : off+vlen], nil
}
