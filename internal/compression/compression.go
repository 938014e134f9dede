// Package compression wraps the LZ4 block codec used to compress sealed
// SSTable data blocks and the MetaBlock. lsmkv's on-disk format is
// bit-exact for one algorithm (spec §4.6/§6: "Compressed frames use LZ4
// (block mode...)"), so unlike a general-purpose store this package does
// not expose a pluggable Type — it compresses and decompresses, full stop.
//
// The format has no per-block "stored uncompressed" flag, so a block that
// LZ4 can't shrink is stored as-is: Compress falls back to returning data
// verbatim, and Decompress recognizes that case by comparing lengths
// rather than calling into LZ4 on bytes it never produced.
package compression

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Compress returns the LZ4 block-mode compression of data, or data itself
// when LZ4 gives no benefit: CompressBlock's n==0 return (not a failure),
// or an output that is not shorter than data. Every LZ4 payload it returns
// is therefore strictly shorter than the input.
func Compress(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("compression: lz4 compress block: %w", err)
	}
	if n == 0 || n >= len(data) {
		return data, nil
	}
	return dst[:n], nil
}

// Decompress decompresses an LZ4 block given the exact uncompressed size
// (required by LZ4's block-mode decoder, which has no embedded length). A
// payload already equal to uncompressedSize was stored verbatim by
// Compress and is returned as-is.
func Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if len(data) == uncompressedSize {
		return data, nil
	}
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("compression: lz4 uncompress block: %w", err)
	}
	return dst[:n], nil
}
