// Package record implements the on-disk frame for a single LogRecord: the
// unit of storage shared by the WAL and the SSTable data blocks.
//
// Wire format (all integers little-endian):
//
//	key_len   : Fixed32
//	key       : key_len bytes, valid UTF-8
//	value_len : Fixed32
//	value     : value_len bytes
//	timestamp : Fixed128
//	tombstone : 1 byte, 0 or 1
//
// Endianness and field width are contractual: they define on-disk
// compatibility across processes and across restarts.
package record

import (
	"errors"
	"unicode/utf8"

	"github.com/aalhour/lsmkv/internal/encoding"
)

// Errors mirror the decode-failure taxonomy: truncated frames, malformed
// UTF-8 keys, and out-of-range tombstone bytes are distinguished so callers
// (WAL replay, SSTable scan) can apply the right recovery policy.
var (
	ErrBadFrame = errors.New("record: truncated or malformed frame")
	ErrBadUTF8  = errors.New("record: key is not valid UTF-8")
	ErrBadFlag  = errors.New("record: tombstone byte out of range")
)

// trailerLen is the fixed trailer layout after key and value: 16 bytes of
// timestamp followed by 1 byte of tombstone flag.
const trailerLen = encoding.Fixed128Len + 1

// Record is the unit of storage. A tombstone's Value is meaningless and
// must be ignored by readers; Timestamp breaks ties between duplicate keys
// across layers (newest wins).
type Record struct {
	Key       string
	Value     []byte
	Timestamp uint64
	Tombstone bool
}

// EncodedLen returns the exact number of bytes Encode will produce for r.
func EncodedLen(r *Record) int {
	return encoding.Fixed32Len + len(r.Key) + encoding.Fixed32Len + len(r.Value) + trailerLen
}

// Encode appends the wire encoding of r to dst and returns the result.
func Encode(dst []byte, r *Record) []byte {
	keyBytes := []byte(r.Key)

	head := len(dst)
	dst = append(dst, make([]byte, EncodedLen(r))...)
	buf := dst[head:]

	encoding.EncodeFixed32(buf, uint32(len(keyBytes)))
	buf = buf[encoding.Fixed32Len:]
	copy(buf, keyBytes)
	buf = buf[len(keyBytes):]

	encoding.EncodeFixed32(buf, uint32(len(r.Value)))
	buf = buf[encoding.Fixed32Len:]
	copy(buf, r.Value)
	buf = buf[len(r.Value):]

	encoding.EncodeFixed128(buf, r.Timestamp)
	buf = buf[encoding.Fixed128Len:]

	if r.Tombstone {
		buf[0] = 1
	} else {
		buf[0] = 0
	}

	return dst
}

// Decode parses a Record from the front of src and returns it along with
// the number of bytes consumed. It fails with ErrBadFrame on truncation,
// ErrBadUTF8 on a malformed key, or ErrBadFlag on an out-of-range tombstone
// byte.
func Decode(src []byte) (*Record, int, error) {
	keyLen, err := encoding.DecodeFixed32(src)
	if err != nil {
		return nil, 0, ErrBadFrame
	}
	off := encoding.Fixed32Len
	if len(src) < off+int(keyLen) {
		return nil, 0, ErrBadFrame
	}
	keyBytes := src[off : off+int(keyLen)]
	off += int(keyLen)

	if !utf8.Valid(keyBytes) {
		return nil, 0, ErrBadUTF8
	}

	valLen, err := encoding.DecodeFixed32(src[off:])
	if err != nil {
		return nil, 0, ErrBadFrame
	}
	off += encoding.Fixed32Len
	if len(src) < off+int(valLen) {
		return nil, 0, ErrBadFrame
	}
	value := make([]byte, valLen)
	copy(value, src[off:off+int(valLen)])
	off += int(valLen)

	if len(src) < off+trailerLen {
		return nil, 0, ErrBadFrame
	}
	ts, err := encoding.DecodeFixed128(src[off:])
	if err != nil {
		return nil, 0, ErrBadFrame
	}
	off += encoding.Fixed128Len

	flag := src[off]
	off++
	if flag != 0 && flag != 1 {
		return nil, 0, ErrBadFlag
	}

	return &Record{
		Key:       string(keyBytes),
		Value:     value,
		Timestamp: ts,
		Tombstone: flag == 1,
	}, off, nil
}
