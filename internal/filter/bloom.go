// Package filter implements the Bloom filter carried in every SSTable's
// MetaBlock. The design is the teacher's FastLocalBloom: one XXH3 hash per
// key, split into a cache-line selector and an in-line probe sequence, so
// every probe for a key touches exactly one 64-byte cache line.
package filter

import (
	"math"

	"github.com/aalhour/lsmkv/internal/checksum"
)

const (
	cacheLineSize = 64
	cacheLineBits = cacheLineSize * 8
)

// Builder accumulates keys and produces a serialized filter sized for a
// target false-positive rate once the caller knows the final key count.
type Builder struct {
	fpRate float64
	hashes []uint64
}

// NewBuilder creates a Builder targeting the given false-positive rate,
// which must be in (0, 1).
func NewBuilder(fpRate float64) *Builder {
	return &Builder{fpRate: fpRate}
}

// Add records a key for inclusion in the filter.
func (b *Builder) Add(key string) {
	b.hashes = append(b.hashes, checksum.HashString64(key))
}

// Len returns the number of keys added so far.
func (b *Builder) Len() int {
	return len(b.hashes)
}

// bitsPerKey converts a target false-positive rate into RocksDB's standard
// bits-per-key sizing heuristic: bits = -log2(fpRate) / ln(2), clamped to a
// sane minimum so a filter is never degenerate.
func bitsPerKey(fpRate float64) int {
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	// bits = -ln(p) / (ln(2))^2
	bits := -math.Log(fpRate) / (math.Ln2 * math.Ln2)
	if bits < 2 {
		bits = 2
	}
	if bits > 32 {
		bits = 32
	}
	return int(bits + 0.5)
}

// Serialize builds the filter's on-disk bytes: the raw bit array (rounded
// up to whole cache lines) followed by a 5-byte metadata trailer
// (marker, sub-implementation, num-probes, reserved, reserved).
func (b *Builder) Serialize() []byte {
	bpk := bitsPerKey(b.fpRate)
	n := len(b.hashes)
	if n == 0 {
		return []byte{0xff, 0x00, 0x00, 0x00, 0x00}
	}

	totalBits := n * bpk
	numCacheLines := (totalBits + cacheLineBits - 1) / cacheLineBits
	if numCacheLines == 0 {
		numCacheLines = 1
	}
	filterLen := numCacheLines * cacheLineSize

	data := make([]byte, filterLen+5)
	numProbes := chooseNumProbes(bpk)
	for _, h := range b.hashes {
		addHash(h, uint32(filterLen), numProbes, data)
	}

	data[filterLen+0] = 0xff // new-bloom marker
	data[filterLen+1] = 0x00 // FastLocalBloom sub-implementation
	data[filterLen+2] = byte(numProbes)
	data[filterLen+3] = 0
	data[filterLen+4] = 0
	return data
}

// Reader answers membership queries against a serialized filter.
type Reader struct {
	data      []byte
	filterLen uint32
	numProbes int
}

// NewReader parses a serialized filter. It never fails on malformed input:
// a filter too short to be valid degrades to "always report present" so a
// corrupt filter block costs performance, never correctness (the spec's
// Bloom soundness property only requires no false negatives).
func NewReader(data []byte) *Reader {
	if len(data) < 5 {
		return &Reader{}
	}
	filterLen := len(data) - 5
	numProbes := int(data[filterLen+2])
	if data[filterLen] != 0xff || numProbes == 0 {
		return &Reader{}
	}
	return &Reader{data: data, filterLen: uint32(filterLen), numProbes: numProbes}
}

// MightContain reports whether key may be present. A false return is a
// guarantee of absence; a true return may be a false positive.
func (r *Reader) MightContain(key string) bool {
	if r.numProbes == 0 || r.filterLen == 0 {
		// Degenerate/empty filter: conservatively say "maybe" so callers
		// fall through to the sparse index rather than wrongly skip a
		// block. An empty builder (zero keys) also lands here, which is
		// the only case where this constant "maybe" is not a safety net
		// but a literal statement about an empty set; either reading is
		// sound because the caller's index search still returns nothing.
		return true
	}
	h := checksum.HashString64(key)
	return hashMayMatch(h, r.filterLen, r.numProbes, r.data)
}

func fastRange32(h, n uint32) uint32 {
	return uint32((uint64(h) * uint64(n)) >> 32)
}

func addHash(hash uint64, lenBytes uint32, numProbes int, data []byte) {
	h1 := uint32(hash)
	h2 := uint32(hash >> 32)
	numCacheLines := lenBytes / cacheLineSize
	offset := fastRange32(h1, numCacheLines) * cacheLineSize
	line := data[offset : offset+cacheLineSize]

	h := h2
	for range numProbes {
		bitpos := h >> (32 - 9)
		line[bitpos>>3] |= 1 << (bitpos & 7)
		h *= 0x9e3779b9
	}
}

func hashMayMatch(hash uint64, lenBytes uint32, numProbes int, data []byte) bool {
	h1 := uint32(hash)
	h2 := uint32(hash >> 32)
	numCacheLines := lenBytes / cacheLineSize
	offset := fastRange32(h1, numCacheLines) * cacheLineSize
	line := data[offset : offset+cacheLineSize]

	h := h2
	for range numProbes {
		bitpos := h >> (32 - 9)
		if line[bitpos>>3]&(1<<(bitpos&7)) == 0 {
			return false
		}
		h *= 0x9e3779b9
	}
	return true
}

// chooseNumProbes mirrors RocksDB's FastLocalBloomImpl::ChooseNumProbes
// table, expressed in millibits-per-key.
func chooseNumProbes(bitsPerKey int) int {
	millibits := bitsPerKey * 1000
	switch {
	case millibits <= 2080:
		return 1
	case millibits <= 3580:
		return 2
	case millibits <= 5100:
		return 3
	case millibits <= 6640:
		return 4
	case millibits <= 8300:
		return 5
	case millibits <= 10070:
		return 6
	case millibits <= 11720:
		return 7
	case millibits <= 14001:
		return 8
	case millibits <= 16050:
		return 9
	case millibits <= 18300:
		return 10
	case millibits <= 22001:
		return 11
	case millibits <= 25501:
		return 12
	case millibits > 50000:
		return 24
	default:
		return (millibits-1)/2000 - 1
	}
}
