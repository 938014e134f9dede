// Package block implements the Block: a contiguous byte region packing a
// sorted batch of encoded records plus an intra-block offset table. Blocks
// are small (one per BlockMeta entry in the sparse index), so search is a
// linear scan over the offset table rather than a binary search over
// variable-length records.
//
// Wire format (uncompressed):
//
//	payload       : concatenated record.Encode() frames
//	offsets[N]    : one Fixed32 absolute offset into payload per record
//	count         : Fixed32, number of offsets
package block

import (
	"errors"
	"math"

	"github.com/aalhour/lsmkv/internal/encoding"
	"github.com/aalhour/lsmkv/internal/record"
)

// MaxSize is the largest block size this format can address: offsets are
// Fixed32, so payload bytes beyond math.MaxUint32 are unreachable. A writer
// configuration requesting a larger cap must be rejected at Open, not
// discovered later as silent truncation (spec's "16-bit offset table is a
// latent overflow and forbidden" note, generalized to the declared width).
const MaxSize = math.MaxUint32

var (
	// ErrBlockFull is returned by Append when the record would not fit
	// within the block's configured size budget and the block already
	// holds at least one record.
	ErrBlockFull = errors.New("block: full")

	// ErrInvalidBlockSize is returned when a builder is configured with a
	// size cap the offset width cannot address.
	ErrInvalidBlockSize = errors.New("block: invalid size, exceeds 32-bit offset addressing")

	// ErrCorrupt is returned by Decode when the offset table is malformed
	// or an offset does not point at a decodable record.
	ErrCorrupt = errors.New("block: corrupt offset table or record")
)

// Builder accumulates encoded records into one block.
type Builder struct {
	targetSize int
	payload    []byte
	offsets    []uint32
}

// NewBuilder creates a Builder targeting targetSize bytes of uncompressed
// payload. targetSize must not exceed MaxSize.
func NewBuilder(targetSize int) (*Builder, error) {
	if targetSize <= 0 || targetSize > MaxSize {
		return nil, ErrInvalidBlockSize
	}
	return &Builder{targetSize: targetSize}, nil
}

// Empty reports whether any record has been appended yet.
func (b *Builder) Empty() bool {
	return len(b.offsets) == 0
}

// Len returns the number of records appended so far.
func (b *Builder) Len() int {
	return len(b.offsets)
}

// Size returns the current uncompressed payload size in bytes (not
// counting the offset trailer).
func (b *Builder) Size() int {
	return len(b.payload)
}

// Append encodes r and adds it to the block. It fails with ErrBlockFull if
// adding the record would exceed the builder's target size and the block
// is non-empty; a record larger than the target size is always accepted
// into its own otherwise-empty block, so a single oversize record still
// gets a home.
func (b *Builder) Append(r *record.Record) error {
	size := record.EncodedLen(r)
	if !b.Empty() && len(b.payload)+size > b.targetSize {
		return ErrBlockFull
	}

	offset := uint32(len(b.payload))
	b.payload = record.Encode(b.payload, r)
	b.offsets = append(b.offsets, offset)
	return nil
}

// FirstKey returns the key of the first appended record. It panics if
// called on an empty builder; callers must check Empty first.
func (b *Builder) FirstKey() string {
	r, _, err := record.Decode(b.payload[b.offsets[0]:])
	if err != nil {
		panic("block: first record failed to decode: " + err.Error())
	}
	return r.Key
}

// Encode returns the block's uncompressed wire form: payload, offset
// table, and trailing count.
func (b *Builder) Encode() []byte {
	out := make([]byte, 0, len(b.payload)+len(b.offsets)*encoding.Fixed32Len+encoding.Fixed32Len)
	out = append(out, b.payload...)

	var tmp [encoding.Fixed32Len]byte
	for _, off := range b.offsets {
		encoding.EncodeFixed32(tmp[:], off)
		out = append(out, tmp[:]...)
	}
	encoding.EncodeFixed32(tmp[:], uint32(len(b.offsets)))
	out = append(out, tmp[:]...)
	return out
}

// Block is a decoded, immutable view over a block's uncompressed bytes.
type Block struct {
	payload []byte
	offsets []uint32
}

// Decode parses data (as produced by Builder.Encode) into a Block. It
// validates that the offset table is well-formed and that every offset
// addresses a decodable record.
func Decode(data []byte) (*Block, error) {
	if len(data) < encoding.Fixed32Len {
		return nil, ErrCorrupt
	}
	count, err := encoding.DecodeFixed32(data[len(data)-encoding.Fixed32Len:])
	if err != nil {
		return nil, ErrCorrupt
	}

	trailerLen := int(count)*encoding.Fixed32Len + encoding.Fixed32Len
	if trailerLen > len(data) {
		return nil, ErrCorrupt
	}
	payloadLen := len(data) - trailerLen
	payload := data[:payloadLen]

	offsets := make([]uint32, count)
	offsetTable := data[payloadLen : len(data)-encoding.Fixed32Len]
	for i := range offsets {
		off, err := encoding.DecodeFixed32(offsetTable[i*encoding.Fixed32Len:])
		if err != nil {
			return nil, ErrCorrupt
		}
		if int(off) > payloadLen {
			return nil, ErrCorrupt
		}
		offsets[i] = off
	}

	blk := &Block{payload: payload, offsets: offsets}
	// Validate each offset actually decodes a record, catching a corrupt
	// but well-formed-looking offset table up front rather than failing
	// lazily on the first Search call.
	for i := range offsets {
		if _, err := blk.decodeAt(i); err != nil {
			return nil, ErrCorrupt
		}
	}
	return blk, nil
}

func (blk *Block) decodeAt(i int) (*record.Record, error) {
	start := blk.offsets[i]
	if int(start) > len(blk.payload) {
		return nil, ErrCorrupt
	}
	r, _, err := record.Decode(blk.payload[start:])
	if err != nil {
		return nil, ErrCorrupt
	}
	return r, nil
}

// Search performs a linear scan over the block's records and returns the
// one matching key, if any.
func (blk *Block) Search(key string) (*record.Record, bool) {
	for i := range blk.offsets {
		r, err := blk.decodeAt(i)
		if err != nil {
			continue
		}
		if r.Key == key {
			return r, true
		}
	}
	return nil, false
}

// All returns every record in the block in on-disk (ascending key) order.
func (blk *Block) All() ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(blk.offsets))
	for i := range blk.offsets {
		r, err := blk.decodeAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
