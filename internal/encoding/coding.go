// Package encoding provides the fixed-width binary primitives used by every
// on-disk and on-wire format in lsmkv. All multi-byte integers are
// little-endian; the width of each field is part of the file-format
// contract and must never change without a new magic/version tag.
package encoding

import (
	"encoding/binary"
	"errors"
)

// ErrBufferTooSmall is returned when the destination buffer cannot hold the
// value being encoded, or the source buffer is too short to decode from.
var ErrBufferTooSmall = errors.New("encoding: buffer too small")

// Fixed32Len is the width in bytes of a Fixed32 field.
const Fixed32Len = 4

// Fixed64Len is the width in bytes of a Fixed64 field.
const Fixed64Len = 8

// Fixed128Len is the width in bytes of a Fixed128 field.
const Fixed128Len = 16

// EncodeFixed32 writes v into dst as 4 little-endian bytes.
// REQUIRES: len(dst) >= Fixed32Len.
func EncodeFixed32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

// DecodeFixed32 reads a 4-byte little-endian uint32 from src.
func DecodeFixed32(src []byte) (uint32, error) {
	if len(src) < Fixed32Len {
		return 0, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint32(src), nil
}

// EncodeFixed64 writes v into dst as 8 little-endian bytes.
func EncodeFixed64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

// DecodeFixed64 reads an 8-byte little-endian uint64 from src.
func DecodeFixed64(src []byte) (uint64, error) {
	if len(src) < Fixed64Len {
		return 0, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint64(src), nil
}

// EncodeFixed128 writes v into dst as a 16-byte little-endian field. v is
// the low 64 bits; the high 64 bits are always zero. The field is declared
// 128 bits wide by the record format (spec's timestamp is a wall-clock
// nanosecond counter, which fits comfortably in 64 bits) so that the wire
// layout has headroom without another format revision.
func EncodeFixed128(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst[0:8], v)
	binary.LittleEndian.PutUint64(dst[8:16], 0)
}

// DecodeFixed128 reads a 16-byte little-endian field from src. It fails if
// the high 64 bits are nonzero: this writer never produces such a value, so
// a nonzero high word means the frame is not one of ours.
func DecodeFixed128(src []byte) (uint64, error) {
	if len(src) < Fixed128Len {
		return 0, ErrBufferTooSmall
	}
	lo := binary.LittleEndian.Uint64(src[0:8])
	hi := binary.LittleEndian.Uint64(src[8:16])
	if hi != 0 {
		return 0, errors.New("encoding: fixed128 high word is nonzero")
	}
	return lo, nil
}
