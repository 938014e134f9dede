// Package sstable implements the SSTable Writer and Reader: the
// block-based, compressed, immutable sorted-run format that anchors
// every on-disk layer above the MemTable.
//
// File layout (bit-exact, all multi-byte integers little-endian):
//
//	MAGIC (8 bytes, ASCII)
//	compressed_block_0
//	...
//	compressed_block_N-1
//	meta_size (Fixed32, uncompressed MetaBlock length) ‖ compressed MetaBlock
//	meta_offset (Fixed64)                                          <- last 8 bytes
//
// MetaBlock and BlockMeta are internal serialization details private to
// this package; the spec only constrains the outer file shape above.
package sstable

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/aalhour/lsmkv/internal/block"
	"github.com/aalhour/lsmkv/internal/cache"
	"github.com/aalhour/lsmkv/internal/checksum"
	"github.com/aalhour/lsmkv/internal/compression"
	"github.com/aalhour/lsmkv/internal/encoding"
	"github.com/aalhour/lsmkv/internal/filter"
	"github.com/aalhour/lsmkv/internal/record"
)

// Magic declares the on-disk format version. Readers reject any other
// 8-byte tag with ErrInvalidFormat.
const Magic = "LSMKV002"

const footerLen = encoding.Fixed64Len

var (
	// ErrOutOfOrder is returned by Writer.Add when a key does not sort
	// strictly after the previously added key.
	ErrOutOfOrder = errors.New("sstable: records must be added in strictly ascending key order")
	// ErrEmptyTable is returned by Writer.Finish when no records were added.
	ErrEmptyTable = errors.New("sstable: finish called with zero records")
	// ErrInvalidFormat is returned by Open when the magic tag is unknown
	// or the footer/meta_offset is structurally impossible.
	ErrInvalidFormat = errors.New("sstable: invalid or unrecognized file format")
)

// BlockMeta describes one data block's place in the file.
type BlockMeta struct {
	FirstKey         string
	Offset           uint64
	Size             uint32
	UncompressedSize uint32
}

// MetaBlock is the SSTable trailer descriptor: the sparse index plus the
// table-wide Bloom filter and summary statistics.
type MetaBlock struct {
	Blocks    []BlockMeta
	BloomData []byte
	MinKey    string
	MaxKey    string
	Count     uint64
	Timestamp uint64
}

// ---- Writer (C6) ----------------------------------------------------

// Writer buffers records into blocks, compresses them, and emits the
// sparse index, Bloom filter, and footer on Finish.
type Writer struct {
	path        string
	file        *os.File
	blockTarget int
	bloomRate   float64

	cur      *block.Builder
	bloom    *filter.Builder
	blocks   []BlockMeta
	minKey   string
	maxKey   string
	count    uint64
	writeOff uint64
	haveKey  bool
	lastKey  string
	finished bool
}

// NewWriter creates the target file and prepares an empty table.
func NewWriter(path string, blockTargetSize int, bloomFPRate float64) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", path, err)
	}
	if _, err := f.Write([]byte(Magic)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sstable: write magic: %w", err)
	}
	cur, err := block.NewBuilder(blockTargetSize)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sstable: %w", err)
	}
	return &Writer{
		path:        path,
		file:        f,
		blockTarget: blockTargetSize,
		bloomRate:   bloomFPRate,
		cur:         cur,
		bloom:       filter.NewBuilder(bloomFPRate),
		writeOff:    uint64(len(Magic)),
	}, nil
}

// Add appends a record. Keys must arrive in strictly ascending order.
func (w *Writer) Add(r *record.Record) error {
	if w.haveKey && r.Key <= w.lastKey {
		w.abort()
		return ErrOutOfOrder
	}

	if !w.cur.Empty() {
		if err := w.cur.Append(r); err == block.ErrBlockFull {
			if err := w.sealCurrent(); err != nil {
				w.abort()
				return err
			}
			w.cur, _ = block.NewBuilder(w.blockTarget)
			if err := w.cur.Append(r); err != nil {
				w.abort()
				return fmt.Errorf("sstable: append to fresh block: %w", err)
			}
		} else if err != nil {
			w.abort()
			return fmt.Errorf("sstable: append: %w", err)
		}
	} else if err := w.cur.Append(r); err != nil {
		w.abort()
		return fmt.Errorf("sstable: append: %w", err)
	}

	if !w.haveKey {
		w.minKey = r.Key
	}
	w.maxKey = r.Key
	w.haveKey = true
	w.lastKey = r.Key
	w.bloom.Add(r.Key)
	w.count++
	return nil
}

func (w *Writer) sealCurrent() error {
	firstKey := w.cur.FirstKey()
	uncompressed := w.cur.Encode()
	compressed, err := compression.Compress(uncompressed)
	if err != nil {
		return fmt.Errorf("sstable: compress block: %w", err)
	}
	if _, err := w.file.Write(compressed); err != nil {
		return fmt.Errorf("sstable: write block: %w", err)
	}
	w.blocks = append(w.blocks, BlockMeta{
		FirstKey:         firstKey,
		Offset:           w.writeOff,
		Size:             uint32(len(compressed)),
		UncompressedSize: uint32(len(uncompressed)),
	})
	w.writeOff += uint64(len(compressed))
	return nil
}

func (w *Writer) abort() {
	w.file.Close()
	os.Remove(w.path)
	w.finished = true
}

// Finish seals the last block, writes the MetaBlock and footer, fsyncs,
// and returns the final path. On any I/O error the partial file is
// removed; Finish is all-or-nothing.
func (w *Writer) Finish(timestamp uint64) (string, error) {
	if w.finished {
		return "", fmt.Errorf("sstable: finish called on an aborted or already-finished writer")
	}
	if w.count == 0 {
		w.abort()
		return "", ErrEmptyTable
	}
	if !w.cur.Empty() {
		if err := w.sealCurrent(); err != nil {
			w.abort()
			return "", err
		}
	}

	meta := MetaBlock{
		Blocks:    w.blocks,
		BloomData: w.bloom.Serialize(),
		MinKey:    w.minKey,
		MaxKey:    w.maxKey,
		Count:     w.count,
		Timestamp: timestamp,
	}
	encodedMeta := encodeMetaBlock(&meta)
	compressedMeta, err := compression.Compress(encodedMeta)
	if err != nil {
		w.abort()
		return "", fmt.Errorf("sstable: compress metablock: %w", err)
	}

	metaOffset := w.writeOff
	var sizeBuf [encoding.Fixed32Len]byte
	encoding.EncodeFixed32(sizeBuf[:], uint32(len(encodedMeta)))
	if _, err := w.file.Write(sizeBuf[:]); err != nil {
		w.abort()
		return "", fmt.Errorf("sstable: write metablock size: %w", err)
	}
	if _, err := w.file.Write(compressedMeta); err != nil {
		w.abort()
		return "", fmt.Errorf("sstable: write metablock: %w", err)
	}

	var footer [footerLen]byte
	encoding.EncodeFixed64(footer[:], metaOffset)
	if _, err := w.file.Write(footer[:]); err != nil {
		w.abort()
		return "", fmt.Errorf("sstable: write footer: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		w.abort()
		return "", fmt.Errorf("sstable: fsync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.path)
		return "", fmt.Errorf("sstable: close: %w", err)
	}
	w.finished = true
	return w.path, nil
}

func encodeMetaBlock(m *MetaBlock) []byte {
	buf := make([]byte, 0, 256+len(m.BloomData))

	var u32 [encoding.Fixed32Len]byte
	encoding.EncodeFixed32(u32[:], uint32(len(m.Blocks)))
	buf = append(buf, u32[:]...)
	for _, b := range m.Blocks {
		buf = appendString(buf, b.FirstKey)
		var u64 [encoding.Fixed64Len]byte
		encoding.EncodeFixed64(u64[:], b.Offset)
		buf = append(buf, u64[:]...)
		encoding.EncodeFixed32(u32[:], b.Size)
		buf = append(buf, u32[:]...)
		encoding.EncodeFixed32(u32[:], b.UncompressedSize)
		buf = append(buf, u32[:]...)
	}

	buf = appendString(buf, m.MinKey)
	buf = appendString(buf, m.MaxKey)

	var u64 [encoding.Fixed64Len]byte
	encoding.EncodeFixed64(u64[:], m.Count)
	buf = append(buf, u64[:]...)

	var u128 [encoding.Fixed128Len]byte
	encoding.EncodeFixed128(u128[:], m.Timestamp)
	buf = append(buf, u128[:]...)

	encoding.EncodeFixed32(u32[:], uint32(len(m.BloomData)))
	buf = append(buf, u32[:]...)
	buf = append(buf, m.BloomData...)
	return buf
}

func appendString(dst []byte, s string) []byte {
	var u32 [encoding.Fixed32Len]byte
	encoding.EncodeFixed32(u32[:], uint32(len(s)))
	dst = append(dst, u32[:]...)
	return append(dst, s...)
}

func decodeMetaBlock(data []byte) (*MetaBlock, error) {
	readU32 := func() (uint32, error) {
		if len(data) < encoding.Fixed32Len {
			return 0, ErrInvalidFormat
		}
		v, _ := encoding.DecodeFixed32(data)
		data = data[encoding.Fixed32Len:]
		return v, nil
	}
	readString := func() (string, error) {
		n, err := readU32()
		if err != nil {
			return "", err
		}
		if len(data) < int(n) {
			return "", ErrInvalidFormat
		}
		s := string(data[:n])
		data = data[n:]
		return s, nil
	}
	readU64 := func() (uint64, error) {
		if len(data) < encoding.Fixed64Len {
			return 0, ErrInvalidFormat
		}
		v, _ := encoding.DecodeFixed64(data)
		data = data[encoding.Fixed64Len:]
		return v, nil
	}
	readU128 := func() (uint64, error) {
		if len(data) < encoding.Fixed128Len {
			return 0, ErrInvalidFormat
		}
		v, err := encoding.DecodeFixed128(data)
		if err != nil {
			return 0, ErrInvalidFormat
		}
		data = data[encoding.Fixed128Len:]
		return v, nil
	}

	numBlocks, err := readU32()
	if err != nil {
		return nil, err
	}
	blocks := make([]BlockMeta, 0, numBlocks)
	for i := uint32(0); i < numBlocks; i++ {
		firstKey, err := readString()
		if err != nil {
			return nil, err
		}
		offset, err := readU64()
		if err != nil {
			return nil, err
		}
		size, err := readU32()
		if err != nil {
			return nil, err
		}
		uncompressed, err := readU32()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, BlockMeta{FirstKey: firstKey, Offset: offset, Size: size, UncompressedSize: uncompressed})
	}

	minKey, err := readString()
	if err != nil {
		return nil, err
	}
	maxKey, err := readString()
	if err != nil {
		return nil, err
	}
	count, err := readU64()
	if err != nil {
		return nil, err
	}
	timestamp, err := readU128()
	if err != nil {
		return nil, err
	}
	bloomLen, err := readU32()
	if err != nil {
		return nil, err
	}
	if len(data) < int(bloomLen) {
		return nil, ErrInvalidFormat
	}
	bloomData := append([]byte{}, data[:bloomLen]...)

	return &MetaBlock{
		Blocks:    blocks,
		BloomData: bloomData,
		MinKey:    minKey,
		MaxKey:    maxKey,
		Count:     count,
		Timestamp: timestamp,
	}, nil
}

// ---- Reader (C7) ------------------------------------------------------

// Reader opens an SSTable and serves point reads and scans via the Bloom
// filter, sparse index, and the shared Block Cache. Safe for concurrent
// use by multiple goroutines; the file descriptor mutex is held only
// around seek+read on a cache miss.
type Reader struct {
	path   string
	file   *os.File
	fdMu   sync.Mutex
	meta   *MetaBlock
	bloom  *filter.Reader
	cache  *cache.Cache
	fileID uint64
}

// Open opens path, verifies the magic, and loads the MetaBlock. Data
// blocks are not read at open time.
func Open(path string, blockCache *cache.Cache) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}

	magic := make([]byte, len(Magic))
	if _, err := f.ReadAt(magic, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read magic: %w", err)
	}
	if string(magic) != Magic {
		f.Close()
		return nil, ErrInvalidFormat
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: stat: %w", err)
	}
	if info.Size() < int64(len(Magic)+footerLen) {
		f.Close()
		return nil, ErrInvalidFormat
	}

	footer := make([]byte, footerLen)
	if _, err := f.ReadAt(footer, info.Size()-int64(footerLen)); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read footer: %w", err)
	}
	metaOffset, _ := encoding.DecodeFixed64(footer)
	if metaOffset < uint64(len(Magic)) || metaOffset > uint64(info.Size())-footerLen {
		f.Close()
		return nil, ErrInvalidFormat
	}

	sizeBuf := make([]byte, encoding.Fixed32Len)
	if _, err := f.ReadAt(sizeBuf, int64(metaOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read metablock size: %w", err)
	}
	uncompressedSize, _ := encoding.DecodeFixed32(sizeBuf)

	compressedMetaLen := int64(info.Size()) - int64(footerLen) - int64(metaOffset) - int64(encoding.Fixed32Len)
	if compressedMetaLen < 0 {
		f.Close()
		return nil, ErrInvalidFormat
	}
	compressedMeta := make([]byte, compressedMetaLen)
	if _, err := f.ReadAt(compressedMeta, int64(metaOffset)+int64(encoding.Fixed32Len)); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: read metablock: %w", err)
	}
	encodedMeta, err := compression.Decompress(compressedMeta, int(uncompressedSize))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: decompress metablock: %w", err)
	}
	meta, err := decodeMetaBlock(encodedMeta)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: decode metablock: %w", err)
	}

	return &Reader{
		path:   path,
		file:   f,
		meta:   meta,
		bloom:  filter.NewReader(meta.BloomData),
		cache:  blockCache,
		fileID: checksum.HashString64(path),
	}, nil
}

// Path returns the file path this Reader serves.
func (r *Reader) Path() string { return r.path }

// MinKey returns the first key of the first block.
func (r *Reader) MinKey() string { return r.meta.MinKey }

// MaxKey returns the last key of the last block.
func (r *Reader) MaxKey() string { return r.meta.MaxKey }

// Count returns the table's record count, including tombstones.
func (r *Reader) Count() uint64 { return r.meta.Count }

// Timestamp returns the table's creation timestamp.
func (r *Reader) Timestamp() uint64 { return r.meta.Timestamp }

// MightContain reports whether key could be present, per the Bloom
// filter. False means absent for certain; true means maybe.
func (r *Reader) MightContain(key string) bool {
	return r.bloom.MightContain(key)
}

// Get looks up key. ok is false if the key is absent from this table;
// when ok is true the returned record may itself be a tombstone.
func (r *Reader) Get(key string) (rec *record.Record, ok bool, err error) {
	if !r.bloom.MightContain(key) {
		return nil, false, nil
	}

	idx := partitionPoint(r.meta.Blocks, key)
	if idx < 0 {
		return nil, false, nil
	}

	blk, err := r.readBlock(idx)
	if err != nil {
		return nil, false, err
	}
	found, ok := blk.Search(key)
	if !ok {
		return nil, false, nil
	}
	return found, true, nil
}

// Scan returns every record in the table in ascending key order.
func (r *Reader) Scan() ([]*record.Record, error) {
	var out []*record.Record
	for i := range r.meta.Blocks {
		blk, err := r.readBlock(i)
		if err != nil {
			return nil, err
		}
		recs, err := blk.All()
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// partitionPoint finds the last block whose FirstKey <= key, returning
// -1 if key precedes every block's first key.
func partitionPoint(blocks []BlockMeta, key string) int {
	i := sort.Search(len(blocks), func(i int) bool {
		return blocks[i].FirstKey > key
	})
	return i - 1
}

func (r *Reader) readBlock(idx int) (*block.Block, error) {
	meta := r.meta.Blocks[idx]
	key := cache.Key{FileID: r.fileID, BlockOffset: meta.Offset}

	if h, ok := r.cache.Get(key); ok {
		defer h.Release()
		return block.Decode(h.Bytes())
	}

	compressed := make([]byte, meta.Size)
	r.fdMu.Lock()
	_, err := r.file.ReadAt(compressed, int64(meta.Offset))
	r.fdMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sstable: read block at offset %d: %w", meta.Offset, err)
	}

	decompressed, err := compression.Decompress(compressed, int(meta.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("sstable: decompress block at offset %d: %w", meta.Offset, err)
	}

	h := r.cache.Insert(key, decompressed)
	defer h.Release()
	return block.Decode(decompressed)
}

// Close closes the underlying file descriptor.
func (r *Reader) Close() error {
	return r.file.Close()
}
