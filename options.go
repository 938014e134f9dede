package lsmkv

import (
	"fmt"

	"github.com/aalhour/lsmkv/internal/block"
	"github.com/aalhour/lsmkv/internal/logging"
	"github.com/aalhour/lsmkv/internal/wal"
)

// Options configures an Engine. Open does not fill in zero-value fields
// from DefaultOptions: an empty DataDir and a zero MemtableMaxSize,
// BlockSize, BlockCacheSizeMiB, SparseIndexInterval or
// BloomFalsePositiveRate are rejected. Only a nil Logger is replaced, with
// the no-op logger.
type Options struct {
	// DataDir holds the WAL and SSTable files for this engine.
	DataDir string

	// MemtableMaxSize is the byte threshold (approximate encoded size)
	// that triggers a flush.
	MemtableMaxSize int

	// BlockSize is the writer's target uncompressed block size in bytes.
	// Must be >= 256 and <= 2^32-1.
	BlockSize int

	// BlockCacheSizeMiB is the Global Block Cache's total budget across
	// all readers.
	BlockCacheSizeMiB int

	// SparseIndexInterval is checked to be positive at Open and is
	// otherwise unused: every block carries a BlockMeta entry (so the
	// sparse index's granularity is always "one block"), and blocks are
	// sized by BlockSize alone. It is not surfaced in the on-disk index.
	SparseIndexInterval int

	// BloomFalsePositiveRate is the target Bloom filter false-positive
	// rate, in (0, 1).
	BloomFalsePositiveRate float64

	// WalSyncMode selects when WAL writes become durable.
	WalSyncMode wal.SyncMode

	// MaxWalRecordSize refuses WAL appends of encoded records larger
	// than this, in bytes. Zero disables the check.
	MaxWalRecordSize int

	// Logger receives structured diagnostic messages. Defaults to a
	// no-op logger when nil.
	Logger logging.Logger
}

// DefaultOptions returns an Options with every field set to a reasonable
// default except DataDir, which the caller must still supply.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:                dataDir,
		MemtableMaxSize:        4 << 20, // 4 MiB
		BlockSize:              4096,
		BlockCacheSizeMiB:      64,
		SparseIndexInterval:    1,
		BloomFalsePositiveRate: 0.01,
		WalSyncMode:            wal.SyncAlways,
		MaxWalRecordSize:       0,
		Logger:                 logging.Discard,
	}
}

// validate rejects out-of-range configuration at Open time, per spec §6/§7.
func (o *Options) validate() error {
	if o.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrConfigValidation)
	}
	if o.MemtableMaxSize <= 0 {
		return fmt.Errorf("%w: memtable_max_size must be positive", ErrInvalidMemtableSize)
	}
	if o.BlockSize < 256 {
		return fmt.Errorf("%w: block_size must be >= 256", ErrInvalidBlockSize)
	}
	if o.BlockSize > block.MaxSize {
		return fmt.Errorf("%w: block_size must be <= %d", ErrInvalidBlockSize, block.MaxSize)
	}
	if o.BlockCacheSizeMiB <= 0 {
		return fmt.Errorf("%w: block_cache_size_mib must be positive", ErrInvalidCacheSize)
	}
	if o.SparseIndexInterval <= 0 {
		return fmt.Errorf("%w: sparse_index_interval must be positive", ErrInvalidIndexInterval)
	}
	if o.BloomFalsePositiveRate <= 0 || o.BloomFalsePositiveRate >= 1 {
		return fmt.Errorf("%w: bloom_false_positive_rate must be in (0,1)", ErrInvalidBloomRate)
	}
	if o.Logger == nil {
		o.Logger = logging.Discard
	}
	return nil
}

func (o *Options) cacheCapacity() int {
	capacity := (o.BlockCacheSizeMiB << 20) / o.BlockSize
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}
